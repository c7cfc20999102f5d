package ledger

import (
	"errors"
	"fmt"

	"github.com/axomx/reward-ledger/internal/app/storage"
)

var (
	// ErrValidation marks malformed input: unknown plans, amounts below the
	// plan minimum, bad addresses.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks an unknown wallet, position or membership.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyProcessed marks a lost compare-and-set or a reused tx hash.
	ErrAlreadyProcessed = errors.New("already processed")
	// ErrPaymentRequired is returned when a balance-affecting operation
	// arrives without a tx hash and on-chain payment is mandatory.
	ErrPaymentRequired = errors.New("payment required")
	// ErrPaymentFailed is returned when the payment collaborator refused or
	// could not complete a payment. Nothing was recorded.
	ErrPaymentFailed = errors.New("payment failed")
)

// PartialFailureError reports a payment that went through on chain but could
// not be recorded in the ledger. TxHash must be shown to the user.
type PartialFailureError struct {
	Op     string
	TxHash string
	Err    error
}

func (e *PartialFailureError) Error() string {
	return fmt.Sprintf("%s: payment %s succeeded but was not recorded: %v", e.Op, e.TxHash, e.Err)
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

func validationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// translate maps storage errors onto the service's error classes.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrAlreadyProcessed),
		errors.Is(err, ErrPaymentRequired), errors.Is(err, ErrPaymentFailed):
		return err
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, storage.ErrConflict), errors.Is(err, storage.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrAlreadyProcessed, err)
	}
	return err
}

// outcome labels err for metrics.
func outcome(err error) string {
	var partial *PartialFailureError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &partial):
		return "partial_failure"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyProcessed):
		return "conflict"
	case errors.Is(err, ErrPaymentRequired):
		return "payment_required"
	case errors.Is(err, ErrPaymentFailed):
		return "payment_failed"
	}
	return "error"
}
