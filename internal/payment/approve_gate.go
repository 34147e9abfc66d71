package payment

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ApproveGate approves every request. It is meant for local development.
type ApproveGate struct {
	logger *zap.Logger
}

// NewApproveGate creates a new ApproveGate.
func NewApproveGate(logger *zap.Logger) *ApproveGate {
	return &ApproveGate{logger: logger}
}

func (g *ApproveGate) Authorize(ctx context.Context, charge Charge) (Authorization, error) {
	if err := ctx.Err(); err != nil {
		return Authorization{}, err
	}
	ref := "auth_" + uuid.NewString()
	g.logger.Debug("payment authorized",
		zap.String("booking_id", charge.BookingID.String()),
		zap.String("reference", ref),
		zap.Int64("amount_cents", charge.AmountCents),
	)
	return Authorization{Reference: ref}, nil
}

func (g *ApproveGate) Capture(ctx context.Context, reference string, amountCents int64) error {
	g.logger.Debug("payment captured", zap.String("reference", reference), zap.Int64("amount_cents", amountCents))
	return ctx.Err()
}

func (g *ApproveGate) Release(ctx context.Context, reference string) error {
	g.logger.Debug("authorization released", zap.String("reference", reference))
	return ctx.Err()
}

func (g *ApproveGate) Refund(ctx context.Context, reference string, amountCents int64) error {
	g.logger.Debug("payment refunded", zap.String("reference", reference), zap.Int64("amount_cents", amountCents))
	return ctx.Err()
}
