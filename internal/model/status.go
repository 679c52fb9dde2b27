package model

import (
	"fmt"
	"strconv"
)

// AccountStatus is encoded as a small integer so the state array stays
// compatible with observers that read account_status as numbers.
type AccountStatus int

const (
	StatusPending AccountStatus = iota
	StatusRunning
	StatusSucceeded
	StatusFailed
)

var statusNames = map[AccountStatus]string{
	StatusPending:   "pending",
	StatusRunning:   "running",
	StatusSucceeded: "succeeded",
	StatusFailed:    "failed",
}

var allowedTransitions = map[AccountStatus]map[AccountStatus]bool{
	StatusPending: {
		StatusPending: true,
		StatusRunning: true,
	},
	StatusRunning: {
		StatusRunning:   true,
		StatusSucceeded: true,
		StatusFailed:    true,
	},
	StatusSucceeded: {
		StatusSucceeded: true,
	},
	StatusFailed: {
		StatusFailed: true,
	},
}

func (s AccountStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown(" + strconv.Itoa(int(s)) + ")"
}

func (s AccountStatus) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func IsKnownStatus(status AccountStatus) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to AccountStatus) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// TransitionStatus moves statuses[index] to toStatus. Entries never move
// backwards: pending -> running -> succeeded|failed.
func TransitionStatus(statuses []AccountStatus, index int, toStatus AccountStatus) error {
	if index < 0 || index >= len(statuses) {
		return fmt.Errorf("account index %d out of range (total=%d)", index, len(statuses))
	}
	from := statuses[index]
	if !CanTransition(from, toStatus) {
		return fmt.Errorf("invalid account status transition: %s -> %s (index=%d)", from, toStatus, index)
	}
	statuses[index] = toStatus
	return nil
}
