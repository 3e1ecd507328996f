package models

// Actor statuses, ordered by severity.
const (
	ActorStatusNormal    = "normal"
	ActorStatusFlagged   = "flagged"
	ActorStatusSuspended = "suspended"
)

var actorStatusRank = map[string]int{
	ActorStatusNormal:    0,
	ActorStatusFlagged:   1,
	ActorStatusSuspended: 2,
}

// Actor is the projection of a backend user record the monitor cares about.
type Actor struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// NormalizeStatus maps empty or unknown values to normal.
func NormalizeStatus(status string) string {
	if _, ok := actorStatusRank[status]; ok {
		return status
	}
	return ActorStatusNormal
}

// IsEscalation reports whether moving from -> to raises severity.
func IsEscalation(from, to string) bool {
	return actorStatusRank[NormalizeStatus(to)] > actorStatusRank[NormalizeStatus(from)]
}

// NextStatus computes the status an actor should have after making count
// requests within one window. The result is never less severe than current.
func NextStatus(current string, count, threshold int) string {
	current = NormalizeStatus(current)

	next := current
	switch {
	case count > threshold*2:
		next = ActorStatusSuspended
	case count > threshold:
		if current == ActorStatusFlagged {
			next = ActorStatusSuspended
		} else {
			next = ActorStatusFlagged
		}
	}

	if actorStatusRank[next] < actorStatusRank[current] {
		return current
	}
	return next
}
