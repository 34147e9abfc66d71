package payment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHTTPGate_AuthorizeAndCapture(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v1/authorizations":
			var req authorizeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, int64(3000), req.AmountCents)
			_ = json.NewEncoder(w).Encode(authorizeResponse{Reference: "auth_123"})
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	gate := NewHTTPGate(srv.URL+"/", "key", time.Second, zap.NewNop())
	auth, err := gate.Authorize(context.Background(), Charge{
		BookingID: uuid.New(), PassengerID: uuid.New(), AmountCents: 3000, Currency: "MYR",
	})
	require.NoError(t, err)
	assert.Equal(t, "auth_123", auth.Reference)

	require.NoError(t, gate.Capture(context.Background(), auth.Reference, 3000))
	assert.Equal(t, []string{"/v1/authorizations", "/v1/authorizations/auth_123/capture"}, paths)
}

func TestHTTPGate_DeclineIsErrDeclined(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"message":"insufficient funds"}`))
	}))
	defer srv.Close()

	gate := NewHTTPGate(srv.URL, "", time.Second, zap.NewNop())
	err := gate.Capture(context.Background(), "auth_1", 100)
	assert.True(t, errors.Is(err, ErrDeclined))
	assert.Contains(t, err.Error(), "insufficient funds")
}

func TestHTTPGate_RepeatedCaptureIsAlreadyCaptured(t *testing.T) {
	var keys []string
	captured := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		if captured {
			w.WriteHeader(http.StatusConflict)
			_, _ = w.Write([]byte(`{"message":"authorization already captured"}`))
			return
		}
		captured = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	gate := NewHTTPGate(srv.URL, "", time.Second, zap.NewNop())
	require.NoError(t, gate.Capture(context.Background(), "auth_9", 500))

	err := gate.Capture(context.Background(), "auth_9", 500)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAlreadyCaptured))
	assert.False(t, errors.Is(err, ErrDeclined))
	assert.Equal(t, []string{"capture-auth_9", "capture-auth_9"}, keys)
}

func TestHTTPGate_TimeoutIsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	gate := NewHTTPGate(srv.URL, "", 5*time.Second, zap.NewNop())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := gate.Release(ctx, "auth_1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestApproveGate(t *testing.T) {
	gate := NewApproveGate(zap.NewNop())
	auth, err := gate.Authorize(context.Background(), Charge{AmountCents: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, auth.Reference)
	assert.NoError(t, gate.Capture(context.Background(), auth.Reference, 1))
}
