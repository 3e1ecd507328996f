package models

import "time"

// PocketBaseTimeLayout is the datetime format PocketBase stores and filters on.
const PocketBaseTimeLayout = "2006-01-02 15:04:05.000Z"

// ActivityRecord is one row of the request collection.
type ActivityRecord struct {
	ID        string `json:"id"`
	Requester string `json:"requester"`
	Created   string `json:"created"`
}

// CreatedAt parses Created, returning the zero time when it is malformed.
func (r ActivityRecord) CreatedAt() time.Time {
	for _, layout := range []string{PocketBaseTimeLayout, time.RFC3339Nano} {
		if t, err := time.Parse(layout, r.Created); err == nil {
			return t
		}
	}
	return time.Time{}
}

// CountByActor groups records by requester. Records without a requester are skipped.
func CountByActor(records []ActivityRecord) map[string]int {
	counts := make(map[string]int)
	for _, rec := range records {
		if rec.Requester == "" {
			continue
		}
		counts[rec.Requester]++
	}
	return counts
}

// Credential is a backend admin token. It is obtained fresh for every run.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}
