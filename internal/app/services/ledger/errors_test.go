package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/axomx/reward-ledger/internal/app/storage"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, translate(nil))

	err := translate(fmt.Errorf("position 7: %w", storage.ErrNotFound))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, translate(storage.ErrConflict), ErrAlreadyProcessed)
	assert.ErrorIs(t, translate(storage.ErrDuplicate), ErrAlreadyProcessed)

	other := errors.New("boom")
	assert.Equal(t, other, translate(other))
}

func TestOutcome(t *testing.T) {
	cases := map[string]error{
		"ok":               nil,
		"validation":       validationf("bad"),
		"not_found":        translate(storage.ErrNotFound),
		"conflict":         translate(storage.ErrConflict),
		"payment_required": ErrPaymentRequired,
		"payment_failed":   fmt.Errorf("%w: down", ErrPaymentFailed),
		"partial_failure":  &PartialFailureError{Op: OpDeposit, TxHash: "0x1", Err: errors.New("db")},
		"error":            errors.New("boom"),
	}
	for want, err := range cases {
		assert.Equal(t, want, outcome(err), want)
	}
}

func TestPartialFailureError(t *testing.T) {
	cause := errors.New("db down")
	err := &PartialFailureError{Op: OpVip, TxHash: "0xbeef", Err: cause}
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "0xbeef")
}
