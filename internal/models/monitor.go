package models

import (
	"time"

	"github.com/google/uuid"
)

// Per-actor outcomes of a monitor run
const (
	OutcomeUnchanged = "unchanged"
	OutcomeUpdated   = "updated"
	OutcomeFailed    = "failed"
)

// Monitor triggers
const (
	TriggerScheduled = "scheduled"
	TriggerHTTP      = "http"
)

type ActorResult struct {
	ActorID        string `json:"actor_id"`
	Count          int    `json:"count"`
	PreviousStatus string `json:"previous_status,omitempty"`
	NewStatus      string `json:"new_status,omitempty"`
	Outcome        string `json:"outcome"`
	Error          string `json:"error,omitempty"`
}

type MonitorReport struct {
	RunID          uuid.UUID     `json:"run_id"`
	Trigger        string        `json:"trigger"`
	Since          time.Time     `json:"since"`
	StartedAt      time.Time     `json:"started_at"`
	FinishedAt     time.Time     `json:"finished_at"`
	RecordsScanned int           `json:"records_scanned"`
	Results        []ActorResult `json:"results"`
}

func (r *MonitorReport) count(outcome string) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == outcome {
			n++
		}
	}
	return n
}

func (r *MonitorReport) Updated() int { return r.count(OutcomeUpdated) }

func (r *MonitorReport) Failed() int { return r.count(OutcomeFailed) }

// Result returns the entry for actorID, if the actor was counted in this run.
func (r *MonitorReport) Result(actorID string) (ActorResult, bool) {
	for _, res := range r.Results {
		if res.ActorID == actorID {
			return res, true
		}
	}
	return ActorResult{}, false
}
