package ride

import "fmt"

// RideStatus represents the current state of an offered ride.
type RideStatus string

const (
	StatusActive    RideStatus = "active"
	StatusCompleted RideStatus = "completed"
	StatusCancelled RideStatus = "cancelled"
)

var validTransitions = map[RideStatus][]RideStatus{
	StatusActive:    {StatusCompleted, StatusCancelled},
	StatusCompleted: {},
	StatusCancelled: {},
}

// IsValid returns true if the status is a recognized ride status.
func (s RideStatus) IsValid() bool {
	_, exists := validTransitions[s]
	return exists
}

// CanTransitionTo returns true if a transition from this status to the target is allowed.
func (s RideStatus) CanTransitionTo(target RideStatus) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// IsTerminal returns true if no further transitions are possible from this status.
func (s RideStatus) IsTerminal() bool {
	return len(validTransitions[s]) == 0
}

func (s RideStatus) String() string {
	return string(s)
}

// ParseRideStatus converts a string to a RideStatus, returning an error if invalid.
func ParseRideStatus(s string) (RideStatus, error) {
	status := RideStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid ride status: %s", s)
	}
	return status, nil
}
