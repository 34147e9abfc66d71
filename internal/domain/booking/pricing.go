package booking

import (
	"fmt"
	"math"
)

// PricingStrategy defines the interface for calculating booking prices.
type PricingStrategy interface {
	// Calculate returns the total price in cents for the given parameters.
	Calculate(params PricingParams) (int64, error)
}

// PricingParams holds the inputs for price calculation.
type PricingParams struct {
	Seats             int
	PricePerSeatCents int64
}

// PerSeatPricingStrategy charges the ride's seat price for every requested seat.
type PerSeatPricingStrategy struct{}

// NewPerSeatPricingStrategy creates a new PerSeatPricingStrategy.
func NewPerSeatPricingStrategy() *PerSeatPricingStrategy {
	return &PerSeatPricingStrategy{}
}

// Calculate computes seats x price per seat, in cents (sen for MYR).
func (s *PerSeatPricingStrategy) Calculate(params PricingParams) (int64, error) {
	if params.Seats < 1 {
		return 0, fmt.Errorf("seats must be at least 1")
	}
	if params.PricePerSeatCents <= 0 {
		return 0, fmt.Errorf("price per seat must be positive")
	}
	if params.PricePerSeatCents > math.MaxInt64/int64(params.Seats) {
		return 0, fmt.Errorf("price overflow for %d seats", params.Seats)
	}
	return int64(params.Seats) * params.PricePerSeatCents, nil
}
