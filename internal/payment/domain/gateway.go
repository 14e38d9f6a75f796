package domain

import (
	"context"
	"errors"
)

// TransferRequest describes one idempotent fund transfer to a destination
// account. Repeated calls with the same IdempotencyKey and the same logical
// transfer must not create duplicate payments.
type TransferRequest struct {
	AmountCents          int64
	Currency             string
	DestinationAccountID string
	IdempotencyKey       string
	TransferGroup        string
	Metadata             map[string]string
}

type Transfer struct {
	ID string
}

// Gateway is the payment provider boundary consumed by the payout executor.
type Gateway interface {
	CreateTransfer(ctx context.Context, req TransferRequest) (*Transfer, error)
}

var (
	ErrInvalidSignature = errors.New("invalid webhook signature")
	ErrInvalidPayload   = errors.New("invalid webhook payload")
	ErrTransferFailed   = errors.New("transfer failed")
)
