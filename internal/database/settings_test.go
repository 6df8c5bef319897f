package database

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"easierfocus/internal/model"
)

func TestSettingsStoreGetCaches(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/rest/v1/user_settings", r.URL.Path)
		assert.Equal(t, "eq.user-1", r.URL.Query().Get("user_id"))
		assert.Equal(t, "eq.notifications", r.URL.Query().Get("kind"))
		respond(w, http.StatusOK, `[{"user_id":"user-1","kind":"notifications","data":{"daily":true}}]`)
	})
	store := NewSettingsStore(client, 8, time.Minute)

	for i := 0; i < 3; i++ {
		doc, err := store.Get(context.Background(), "user-1", model.SettingsNotifications)
		require.NoError(t, err)
		assert.JSONEq(t, `{"daily":true}`, string(doc.Data))
	}
	assert.Equal(t, int32(1), calls.Load())

	store.Purge()
	_, err := store.Get(context.Background(), "user-1", model.SettingsNotifications)
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSettingsStoreGetMissing(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		respond(w, http.StatusOK, `[]`)
	})
	store := NewSettingsStore(client, 8, time.Minute)

	_, err := store.Get(context.Background(), "user-1", model.SettingsFocusTimer)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSettingsStorePut(t *testing.T) {
	testCases := []struct {
		name        string
		kind        string
		data        string
		expectedErr error
	}{
		{name: "whole document replaced", kind: model.SettingsDistractionBlocker, data: `{"sites":["news.example.com"],"enabled":true}`},
		{name: "unknown kind", kind: "theme", data: `{}`, expectedErr: ErrInvalidEntry},
		{name: "invalid json", kind: model.SettingsNotifications, data: `{"daily":`, expectedErr: ErrInvalidEntry},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var calls atomic.Int32
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				require.Equal(t, http.MethodPost, r.Method)

				var doc model.SettingsDocument
				require.NoError(t, json.NewDecoder(r.Body).Decode(&doc))
				assert.Equal(t, "user-1", doc.UserID)
				assert.Equal(t, tc.kind, doc.Kind)
				assert.False(t, doc.UpdatedAt.IsZero())

				out, _ := json.Marshal([]model.SettingsDocument{doc})
				respond(w, http.StatusCreated, string(out))
			})
			store := NewSettingsStore(client, 8, time.Minute)

			doc, err := store.Put(context.Background(), "user-1", tc.kind, json.RawMessage(tc.data))
			if tc.expectedErr != nil {
				assert.ErrorIs(t, err, tc.expectedErr)
				assert.Equal(t, int32(0), calls.Load())
				return
			}
			require.NoError(t, err)
			assert.JSONEq(t, tc.data, string(doc.Data))

			cached, err := store.Get(context.Background(), "user-1", tc.kind)
			require.NoError(t, err)
			assert.JSONEq(t, tc.data, string(cached.Data))
			assert.Equal(t, int32(1), calls.Load())
		})
	}
}
