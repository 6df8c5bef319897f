package auth

import (
	"encoding/json"
	"time"

	"easierfocus/internal/model"
)

// RefreshPolicy names how expired access tokens are renewed.
type RefreshPolicy string

// RefreshReactive renews only after an authenticated call answers 401.
// Nothing refreshes in the background.
const RefreshReactive RefreshPolicy = "reactive"

type SignUpResult struct {
	Session              *model.Session `json:"-"`
	User                 model.User     `json:"user"`
	ConfirmationRequired bool           `json:"confirmation_required"`
}

type State struct {
	User        *model.User    `json:"user"`
	Session     *model.Session `json:"-"`
	Loading     bool           `json:"loading"`
	AuthLoading bool           `json:"auth_loading"`
}

func (s State) Authenticated() bool {
	return s.Session.Valid()
}

// MarshalJSON adds session_present; the tokens themselves never leave the
// process.
func (s State) MarshalJSON() ([]byte, error) {
	type state State
	return json.Marshal(struct {
		state
		SessionPresent bool `json:"session_present"`
	}{state(s), s.Authenticated()})
}

type EventKind string

const (
	EventInitialSession       EventKind = "initial_session"
	EventSignedIn             EventKind = "signed_in"
	EventConfirmationRequired EventKind = "confirmation_required"
	EventSignedOut            EventKind = "signed_out"
	EventTokenRefreshed       EventKind = "token_refreshed"
	EventPasswordResetSent    EventKind = "password_reset_sent"
	EventAuthError            EventKind = "auth_error"
)

type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeError   NoticeLevel = "error"
)

// Notice is the user-facing message attached to an event.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	Error   string      `json:"error,omitempty"`
}

type Event struct {
	Kind   EventKind `json:"kind"`
	State  State     `json:"state"`
	Notice *Notice   `json:"notice,omitempty"`
	At     time.Time `json:"at"`
}
