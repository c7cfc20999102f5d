package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructorsCarryStatus(t *testing.T) {
	cases := []struct {
		err    *ServiceError
		status int
		code   ErrorCode
	}{
		{Validation("bad", nil), http.StatusBadRequest, CodeValidation},
		{NotFound("missing", nil), http.StatusNotFound, CodeNotFound},
		{Conflict("again", nil), http.StatusConflict, CodeConflict},
		{PaymentRequired("pay"), http.StatusPaymentRequired, CodePaymentRequired},
		{PaymentFailed(nil), http.StatusBadGateway, CodePaymentFailed},
		{PartialFailure("0x1", nil), http.StatusBadGateway, CodePartialFailure},
		{Unauthorized(""), http.StatusUnauthorized, CodeUnauthorized},
		{Forbidden(""), http.StatusForbidden, CodeForbidden},
		{InvalidToken(nil), http.StatusUnauthorized, CodeInvalidToken},
		{RateLimitExceeded(10, "1s"), http.StatusTooManyRequests, CodeRateLimited},
		{Unavailable("down", nil), http.StatusServiceUnavailable, CodeServiceUnavailable},
		{Internal("boom", nil), http.StatusInternalServerError, CodeInternal},
	}
	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.status, tc.err.HTTPStatus)
			assert.Equal(t, tc.code, tc.err.Code)
			assert.NotEmpty(t, tc.err.Message)
		})
	}
}

func TestPartialFailureDetails(t *testing.T) {
	err := PartialFailure("0xabc", stderrors.New("db down"))
	assert.Equal(t, "0xabc", err.Details["tx_hash"])
	assert.Contains(t, err.Message, "contact support")
}

func TestGetServiceErrorUnwraps(t *testing.T) {
	cause := stderrors.New("root")
	wrapped := fmt.Errorf("handler: %w", NotFound("wallet not found", cause))

	se := GetServiceError(wrapped)
	require.NotNil(t, se)
	assert.Equal(t, CodeNotFound, se.Code)
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, se.Error(), "wallet not found")

	assert.Nil(t, GetServiceError(cause))
}
