package billing

import (
	"context"
	"errors"
)

// ChargeRequest asks the payment collaborator to charge a driver once.
// The idempotency key makes a retried request safe: the collaborator must
// return the original result instead of charging again.
type ChargeRequest struct {
	DriverRef      string // collaborator's customer reference
	AmountCents    int64
	IdempotencyKey string
	Description    string
}

// ChargeResult is the collaborator's answer.
type ChargeResult struct {
	Ref  string // opaque charge reference
	Paid bool
}

// PaymentClient is the payment collaborator boundary. Implementations are
// external; RetrieveCharge exists so an interrupted run can learn a
// charge's fate before deciding whether to retry it.
type PaymentClient interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	RetrieveCharge(ctx context.Context, idempotencyKey string) (ChargeResult, error)
}

// ErrChargeNotFound should be wrapped by RetrieveCharge when no charge
// exists under the key: the interrupted attempt never reached the
// collaborator and may be retried.
var ErrChargeNotFound = errors.New("billing: charge not found")
