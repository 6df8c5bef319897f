package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"easierfocus/internal/model"
)

const (
	journalTable = "mood_journals"

	defaultJournalLimit = 30
	maxJournalLimit     = 200
)

type JournalRepository interface {
	List(ctx context.Context, userID string, limit int) ([]model.MoodEntry, error)
	Create(ctx context.Context, entry *model.MoodEntry) (*model.MoodEntry, error)
	Delete(ctx context.Context, userID, id string) error
}

type JournalStore struct {
	client *Client
	now    func() time.Time
}

var _ JournalRepository = (*JournalStore)(nil)

func NewJournalStore(client *Client) *JournalStore {
	return &JournalStore{client: client, now: time.Now}
}

// List returns the newest entries first.
func (s *JournalStore) List(ctx context.Context, userID string, limit int) ([]model.MoodEntry, error) {
	if limit <= 0 {
		limit = defaultJournalLimit
	}
	if limit > maxJournalLimit {
		limit = maxJournalLimit
	}

	entries := []model.MoodEntry{}
	q := Query{Filters: []Filter{Eq("user_id", userID)}, Order: "created_at.desc", Limit: limit}
	if err := s.client.Select(ctx, journalTable, q, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *JournalStore) Create(ctx context.Context, entry *model.MoodEntry) (*model.MoodEntry, error) {
	if err := validateEntry(entry); err != nil {
		return nil, err
	}

	row := *entry
	row.ID = uuid.NewString()
	row.Note = strings.TrimSpace(row.Note)
	row.CreatedAt = s.now().UTC()

	var rows []model.MoodEntry
	if err := s.client.Insert(ctx, journalTable, row, &rows); err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return &rows[0], nil
	}
	return &row, nil
}

func (s *JournalStore) Delete(ctx context.Context, userID, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: invalid entry id", ErrInvalidEntry)
	}

	var rows []model.MoodEntry
	err := s.client.Delete(ctx, journalTable, []Filter{Eq("id", id), Eq("user_id", userID)}, &rows)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrNotFound
	}
	return nil
}

func validateEntry(entry *model.MoodEntry) error {
	if entry == nil || entry.UserID == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidEntry)
	}
	for name, v := range map[string]int{"mood": entry.Mood, "sleep_quality": entry.Sleep, "energy_level": entry.Energy} {
		if v < 1 || v > 10 {
			return fmt.Errorf("%w: %s must be between 1 and 10", ErrInvalidEntry, name)
		}
	}
	return nil
}
