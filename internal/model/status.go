package model

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// ErrInvalidTransition is wrapped by every transition rejected by ValidateTransition.
var ErrInvalidTransition = errors.New("invalid status transition")

var knownStatuses = map[Status]bool{
	StatusPending: true,
	StatusSuccess: true,
	StatusFailed:  true,
}

var terminalStatuses = map[Status]bool{
	StatusSuccess: true,
	StatusFailed:  true,
}

// Record status transitions: pending → terminal, exactly once.
var validRecordTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusSuccess: true,
		StatusFailed:  true,
	},
}

func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

func IsKnown(s Status) bool {
	return knownStatuses[s]
}

// ParseStatus accepts only the exact lower-case spellings written to the store.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	if !knownStatuses[st] {
		return "", fmt.Errorf("unknown status %q", s)
	}
	return st, nil
}

func ValidateTransition(from, to Status) error {
	if IsTerminal(from) {
		return fmt.Errorf("%w: cannot transition from terminal status %q", ErrInvalidTransition, from)
	}
	allowed, ok := validRecordTransitions[from]
	if !ok {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, from)
	}
	if !allowed[to] {
		return fmt.Errorf("%w: %q → %q", ErrInvalidTransition, from, to)
	}
	return nil
}
