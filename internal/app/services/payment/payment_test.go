package payment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPGateway_DisabledWithoutURL(t *testing.T) {
	gw := NewHTTPGateway(Config{})
	_, err := gw.Pay(context.Background(), Request{AmountUSD: decimal.NewFromInt(1)})
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestHTTPGateway_Pay(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payments", r.URL.Path)
		var req Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "0xtreasury", req.Destination)
		assert.Equal(t, "500", req.AmountUSD.String())
		w.Write([]byte(`{"tx_hash":"0xfeed","status":"confirmed"}`))
	}))
	defer srv.Close()

	gw := NewHTTPGateway(Config{BaseURL: srv.URL, Destination: "0xtreasury"})
	hash, err := gw.Pay(context.Background(), Request{AmountUSD: decimal.NewFromInt(500), Reference: "deposit"})
	require.NoError(t, err)
	assert.Equal(t, "0xfeed", hash)
}

func TestHTTPGateway_PayFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"failed status", http.StatusOK, `{"status":"failed","error":"insufficient balance"}`},
		{"missing hash", http.StatusOK, `{"status":"pending"}`},
		{"client error", http.StatusBadRequest, `{"error":"bad request"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			gw := NewHTTPGateway(Config{BaseURL: srv.URL})
			_, err := gw.Pay(context.Background(), Request{AmountUSD: decimal.NewFromInt(1)})
			assert.ErrorIs(t, err, ErrRejected)
		})
	}
}

func TestHTTPGateway_HonorsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	gw := NewHTTPGateway(Config{BaseURL: srv.URL, Timeout: 20 * time.Millisecond, MaxRetries: -1})
	_, err := gw.Pay(context.Background(), Request{AmountUSD: decimal.NewFromInt(1)})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrRejected)
}

func TestHTTPGateway_RejectsNonPositiveAmount(t *testing.T) {
	gw := NewHTTPGateway(Config{BaseURL: "http://127.0.0.1:1"})
	_, err := gw.Pay(context.Background(), Request{AmountUSD: decimal.Zero})
	assert.ErrorIs(t, err, ErrRejected)
}
