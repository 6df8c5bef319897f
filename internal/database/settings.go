package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/bluele/gcache"

	"easierfocus/internal/model"
)

const settingsTable = "user_settings"

type SettingsRepository interface {
	Get(ctx context.Context, userID, kind string) (*model.SettingsDocument, error)
	Put(ctx context.Context, userID, kind string, data json.RawMessage) (*model.SettingsDocument, error)
}

// SettingsStore reads and writes whole settings documents. Reads are served
// from an LRU cache until they expire or the document is written again.
type SettingsStore struct {
	client *Client
	cache  gcache.Cache
	now    func() time.Time
}

var _ SettingsRepository = (*SettingsStore)(nil)

func NewSettingsStore(client *Client, size int, ttl time.Duration) *SettingsStore {
	if size <= 0 {
		size = 64
	}
	builder := gcache.New(size).LRU()
	if ttl > 0 {
		builder = builder.Expiration(ttl)
	}
	return &SettingsStore{
		client: client,
		cache:  builder.Build(),
		now:    time.Now,
	}
}

func settingsKey(userID, kind string) string {
	return userID + "/" + kind
}

func validKind(kind string) bool {
	switch kind {
	case model.SettingsDistractionBlocker, model.SettingsNotifications, model.SettingsFocusTimer:
		return true
	}
	return false
}

func (s *SettingsStore) Get(ctx context.Context, userID, kind string) (*model.SettingsDocument, error) {
	if !validKind(kind) {
		return nil, fmt.Errorf("%w: unknown settings kind %q", ErrInvalidEntry, kind)
	}

	key := settingsKey(userID, kind)
	if cached, err := s.cache.Get(key); err == nil {
		doc := cached.(model.SettingsDocument)
		return &doc, nil
	}

	var rows []model.SettingsDocument
	q := Query{Filters: []Filter{Eq("user_id", userID), Eq("kind", kind)}, Limit: 1}
	if err := s.client.Select(ctx, settingsTable, q, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}

	_ = s.cache.Set(key, rows[0])
	return &rows[0], nil
}

// Put replaces the whole document for userID and kind.
func (s *SettingsStore) Put(ctx context.Context, userID, kind string, data json.RawMessage) (*model.SettingsDocument, error) {
	if !validKind(kind) {
		return nil, fmt.Errorf("%w: unknown settings kind %q", ErrInvalidEntry, kind)
	}
	if len(data) == 0 || !json.Valid(data) {
		return nil, fmt.Errorf("%w: settings data must be valid json", ErrInvalidEntry)
	}

	doc := model.SettingsDocument{
		UserID:    userID,
		Kind:      kind,
		Data:      data,
		UpdatedAt: s.now().UTC(),
	}

	var rows []model.SettingsDocument
	if err := s.client.Upsert(ctx, settingsTable, "user_id,kind", doc, &rows); err != nil {
		s.cache.Remove(settingsKey(userID, kind))
		return nil, err
	}
	if len(rows) > 0 {
		doc = rows[0]
	}

	_ = s.cache.Set(settingsKey(userID, kind), doc)
	return &doc, nil
}

// Purge drops every cached document, e.g. after the user signs out.
func (s *SettingsStore) Purge() {
	s.cache.Purge()
}
