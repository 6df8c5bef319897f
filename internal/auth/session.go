package auth

import (
	"net/http"

	"github.com/antonlindstrom/pgstore"
	"github.com/gorilla/sessions"
	"github.com/markbates/goth/gothic"
)

const oauthStateMaxAge = 600

// NewStateStore returns the gorilla store gothic keeps OAuth state in. A
// database URL selects a postgres-backed store; otherwise state lives in the
// signed cookie itself.
func NewStateStore(dbURL string, secure bool, keyPairs ...[]byte) (sessions.Store, error) {
	opts := &sessions.Options{
		Path:     "/",
		MaxAge:   oauthStateMaxAge,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}

	if dbURL == "" {
		store := sessions.NewCookieStore(keyPairs...)
		store.Options = opts
		return store, nil
	}

	store, err := pgstore.NewPGStore(dbURL, keyPairs...)
	if err != nil {
		return nil, err
	}
	store.Options = opts
	return store, nil
}

// GetSession returns the gothic session that carries OAuth state between the
// authorize redirect and the callback.
func GetSession(store sessions.Store, r *http.Request) (*sessions.Session, error) {
	return store.Get(r, gothic.SessionName)
}
