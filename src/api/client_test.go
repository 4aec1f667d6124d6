package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/agroscan/agroscan-core/src/config"
	"github.com/agroscan/agroscan-core/src/mocks"
	"github.com/agroscan/agroscan-core/src/models"
)

func newTestClient(backendURL string, tokens models.TokenSource) *Client {
	cfg := &config.APIConfig{BaseURL: backendURL, Timeout: 5 * time.Second}
	return NewClient(cfg, tokens, "device-1")
}

func TestClient_AttachesBearerAndDeviceID(t *testing.T) {
	var gotAuth, gotDevice string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotDevice = r.Header.Get("X-Device-ID")
		json.NewEncoder(w).Encode(models.UserProfile{Email: "a@b.com"})
	}))
	defer backend.Close()

	tokens := new(mocks.MockTokenSource)
	tokens.On("AccessToken", mock.Anything).Return("t1", nil)

	var profile models.UserProfile
	err := newTestClient(backend.URL, tokens).Get(context.Background(), "/api/auth/verify", &profile)

	require.NoError(t, err)
	assert.Equal(t, "Bearer t1", gotAuth)
	assert.Equal(t, "device-1", gotDevice)
	assert.Equal(t, "a@b.com", profile.Email)
	tokens.AssertExpectations(t)
}

func TestClient_NoTokenSendsBareRequest(t *testing.T) {
	var gotAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("{}"))
	}))
	defer backend.Close()

	tokens := new(mocks.MockTokenSource)
	tokens.On("AccessToken", mock.Anything).Return("", nil)

	err := newTestClient(backend.URL, tokens).Get(context.Background(), "/ping", nil)

	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestClient_SingleRetryAfterRefresh(t *testing.T) {
	var calls atomic.Int32
	var retryAuth string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		retryAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(models.UserProfile{Email: "a@b.com"})
	}))
	defer backend.Close()

	tokens := new(mocks.MockTokenSource)
	tokens.On("AccessToken", mock.Anything).Return("stale", nil)
	tokens.On("Refresh", mock.Anything).Return("fresh", nil).Once()

	var profile models.UserProfile
	err := newTestClient(backend.URL, tokens).Get(context.Background(), "/api/auth/verify", &profile)

	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load(), "exactly one resend")
	assert.Equal(t, "Bearer fresh", retryAuth)
	assert.Equal(t, "a@b.com", profile.Email)
	tokens.AssertExpectations(t)
}

func TestClient_SecondUnauthorizedIsTerminal(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	tokens := new(mocks.MockTokenSource)
	tokens.On("AccessToken", mock.Anything).Return("stale", nil)
	tokens.On("Refresh", mock.Anything).Return("fresh", nil).Once()

	err := newTestClient(backend.URL, tokens).Get(context.Background(), "/api/auth/verify", nil)

	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.Equal(t, int32(2), calls.Load(), "no retry loop beyond the single resend")
	tokens.AssertNumberOfCalls(t, "Refresh", 1)
}

func TestClient_RefreshFailurePropagatesWithoutResend(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer backend.Close()

	tokens := new(mocks.MockTokenSource)
	tokens.On("AccessToken", mock.Anything).Return("stale", nil)
	tokens.On("Refresh", mock.Anything).Return("", models.ErrRefreshFailed)

	err := newTestClient(backend.URL, tokens).Get(context.Background(), "/api/auth/verify", nil)

	assert.ErrorIs(t, err, models.ErrRefreshFailed)
	assert.Equal(t, int32(1), calls.Load(), "original request must not be resent")
}

func TestClient_PostBodyIsReplayedOnRetry(t *testing.T) {
	var calls atomic.Int32
	bodies := make([]string, 0, 2)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(data))
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte("{}"))
	}))
	defer backend.Close()

	tokens := new(mocks.MockTokenSource)
	tokens.On("AccessToken", mock.Anything).Return("stale", nil)
	tokens.On("Refresh", mock.Anything).Return("fresh", nil).Once()

	in := map[string]string{"plant": "tomato"}
	err := newTestClient(backend.URL, tokens).Post(context.Background(), "/api/submissions", in, nil)

	require.NoError(t, err)
	require.Len(t, bodies, 2)
	assert.Equal(t, bodies[0], bodies[1], "retry must carry the same body")
	assert.Contains(t, bodies[1], "tomato")
}

func TestClient_NonAuthFailurePassesThrough(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	tokens := new(mocks.MockTokenSource)
	tokens.On("AccessToken", mock.Anything).Return("t1", nil)

	err := newTestClient(backend.URL, tokens).Get(context.Background(), "/api/auth/verify", nil)

	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrUnauthorized)
	tokens.AssertNotCalled(t, "Refresh", mock.Anything)
}

func TestClient_NetworkErrorIsBackendUnavailable(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	backend.Close() // unreachable on purpose

	tokens := new(mocks.MockTokenSource)
	tokens.On("AccessToken", mock.Anything).Return("t1", nil)

	err := newTestClient(backend.URL, tokens).Get(context.Background(), "/ping", nil)

	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
}

func TestTransport_InterceptorErrorAborts(t *testing.T) {
	var calls atomic.Int32
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer backend.Close()

	boom := errors.New("store offline")
	transport := &Transport{
		Interceptors: []RequestInterceptor{
			func(req *http.Request) error { return boom },
		},
	}

	req, err := http.NewRequest(http.MethodGet, backend.URL, nil)
	require.NoError(t, err)

	_, err = transport.RoundTrip(req)

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, int32(0), calls.Load())
}

func TestTransport_DoesNotMutateCallerRequest(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer backend.Close()

	transport := &Transport{
		Interceptors: []RequestInterceptor{DeviceID("device-1")},
	}

	req, err := http.NewRequest(http.MethodGet, backend.URL, nil)
	require.NoError(t, err)

	resp, err := transport.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Empty(t, req.Header.Get("X-Device-ID"))
}
