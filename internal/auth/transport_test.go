package auth

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestTransportAnonymousUsesAnonKey(t *testing.T) {
	service, _, _, _ := setupService(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testAnonKey, r.Header.Get("apikey"))
		assert.Equal(t, "Bearer "+testAnonKey, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := &http.Client{Transport: &Transport{Service: service, AnonKey: testAnonKey}}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTransportRefreshesOnUnauthorized(t *testing.T) {
	service, gateway, backend, _ := setupService(t)
	signedIn(t, service, gateway, testSession("abc", "xyz", "1"))
	gateway.On("Refresh", mock.Anything, "xyz").Return(testSession("def", "uvw", "1"), nil).Once()

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, `{"mood":7}`, string(body))

		if r.Header.Get("Authorization") != "Bearer def" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := &http.Client{Transport: &Transport{Service: service, AnonKey: testAnonKey}}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, server.URL,
		bytes.NewReader([]byte(`{"mood":7}`)))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "def", persisted(t, backend).AccessToken)
}

func TestTransportFailedRefreshReturnsUnauthorized(t *testing.T) {
	service, gateway, backend, sub := setupService(t)
	signedIn(t, service, gateway, testSession("abc", "xyz", "1"))
	drain(sub)
	gateway.On("Refresh", mock.Anything, "xyz").
		Return(nil, &RequestError{Op: "refresh session", StatusCode: 400, Kind: ErrUnknown})

	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := &http.Client{Transport: &Transport{Service: service, AnonKey: testAnonKey}}
	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, service.State().Authenticated())
	assert.Nil(t, persisted(t, backend))
	assert.Equal(t, EventSignedOut, nextEvent(t, sub).Kind)
}
