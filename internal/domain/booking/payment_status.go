package booking

import "fmt"

// PaymentStatus tracks the money side of a booking, independently of seats.
type PaymentStatus string

const (
	PaymentUnpaid     PaymentStatus = "unpaid"
	PaymentAuthorized PaymentStatus = "authorized"
	PaymentCaptured   PaymentStatus = "captured"
	PaymentRefunded   PaymentStatus = "refunded"
	PaymentFailed     PaymentStatus = "failed"
)

var validPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentUnpaid:     {PaymentAuthorized, PaymentFailed},
	PaymentFailed:     {PaymentAuthorized, PaymentFailed},
	PaymentAuthorized: {PaymentCaptured, PaymentRefunded, PaymentFailed},
	PaymentCaptured:   {PaymentRefunded},
	PaymentRefunded:   {},
}

func (s PaymentStatus) IsValid() bool {
	_, exists := validPaymentTransitions[s]
	return exists
}

func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	for _, t := range validPaymentTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

func (s PaymentStatus) String() string {
	return string(s)
}

// ParsePaymentStatus converts a string to a PaymentStatus, returning an error if invalid.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid payment status: %s", s)
	}
	return status, nil
}
