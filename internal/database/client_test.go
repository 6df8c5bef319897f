package database

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, server.Client())
	require.NoError(t, err)
	return client
}

func respond(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestNewClientRejectsInvalidURL(t *testing.T) {
	_, err := NewClient("not a url", nil)
	assert.Error(t, err)
}

func TestClientSelectEncodesFilters(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/rest/v1/mood_journals", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "eq.user-1", q.Get("user_id"))
		assert.Equal(t, "created_at.desc", q.Get("order"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Equal(t, "*", q.Get("select"))
		respond(w, http.StatusOK, `[{"id":"a"}]`)
	})

	var rows []map[string]any
	err := client.Select(context.Background(), "mood_journals",
		Query{Filters: []Filter{Eq("user_id", "user-1")}, Order: "created_at.desc", Limit: 5}, &rows)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestClientUpsertHeaders(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "user_id,kind", r.URL.Query().Get("on_conflict"))
		assert.Equal(t, "resolution=merge-duplicates,return=representation", r.Header.Get("Prefer"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "user-1", body["user_id"])
		respond(w, http.StatusCreated, `[]`)
	})

	err := client.Upsert(context.Background(), "user_settings", "user_id,kind",
		map[string]string{"user_id": "user-1"}, nil)
	require.NoError(t, err)
}

func TestClientUpdateAndDelete(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "eq.1", r.URL.Query().Get("id"))
		assert.Empty(t, r.URL.Query().Get("select"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		respond(w, http.StatusOK, `[{"id":"1"}]`)
	})

	var rows []map[string]any
	require.NoError(t, client.Update(context.Background(), "mood_journals", []Filter{Eq("id", "1")},
		map[string]int{"mood": 5}, &rows))
	require.NoError(t, client.Delete(context.Background(), "mood_journals", []Filter{Eq("id", "1")}, &rows))
	assert.Len(t, rows, 1)
}

func TestClientStatusClassification(t *testing.T) {
	testCases := []struct {
		name     string
		status   int
		expected error
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, expected: ErrUnauthorized},
		{name: "forbidden", status: http.StatusForbidden, expected: ErrUnauthorized},
		{name: "not found", status: http.StatusNotFound, expected: ErrNotFound},
		{name: "conflict", status: http.StatusConflict, expected: ErrConflict},
		{name: "bad request", status: http.StatusBadRequest, expected: ErrInvalidEntry},
		{name: "unavailable", status: http.StatusServiceUnavailable, expected: ErrUnavailable},
		{name: "server error", status: http.StatusInternalServerError, expected: ErrRequestFailed},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				respond(w, tc.status, `{"message":"nope"}`)
			})

			err := client.Select(context.Background(), "user_settings", Query{}, nil)
			assert.ErrorIs(t, err, tc.expected)

			var reqErr *RequestError
			require.ErrorAs(t, err, &reqErr)
			assert.Equal(t, tc.status, reqErr.StatusCode)
			assert.Equal(t, "user_settings", reqErr.Table)
		})
	}
}

func TestClientUnreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	client, err := NewClient(server.URL, server.Client())
	require.NoError(t, err)
	server.Close()

	err = client.Select(context.Background(), "user_settings", Query{}, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}
