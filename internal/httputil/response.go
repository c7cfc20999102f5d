package httputil

import (
	"encoding/json"
	"net/http"

	svcerrors "github.com/axomx/reward-ledger/internal/errors"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	TxHash  string                 `json:"tx_hash,omitempty"`
	Support string                 `json:"support,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SupportDirective accompanies every reply for a payment that was taken but
// not recorded.
const SupportDirective = "contact support and quote tx_hash; the payment will be reconciled"

// WriteJSON writes data with status.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteServiceError renders a ServiceError.
func WriteServiceError(w http.ResponseWriter, err *svcerrors.ServiceError) {
	body := ErrorResponse{
		Error:   err.Message,
		Code:    string(err.Code),
		Details: err.Details,
	}
	if err.Code == svcerrors.CodePartialFailure {
		body.TxHash, _ = err.Details["tx_hash"].(string)
		body.Support = SupportDirective
	}
	WriteJSON(w, err.HTTPStatus, body)
}

// Unauthorized writes a 401 reply.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteServiceError(w, svcerrors.Unauthorized(message))
}
