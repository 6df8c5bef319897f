package auth

import (
	"net/http"
	"time"

	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"

	"easierfocus/internal/model"
)

// ProviderSignIn finishes an external provider sign-in from its callback
// request and returns the session the identity service issued.
type ProviderSignIn interface {
	Complete(w http.ResponseWriter, r *http.Request) (*model.Session, error)
}

type GothicSignIn struct {
	completeUserAuth func(w http.ResponseWriter, r *http.Request) (goth.User, error)
}

func NewGothicSignIn() *GothicSignIn {
	return &GothicSignIn{completeUserAuth: gothic.CompleteUserAuth}
}

func (g *GothicSignIn) Complete(w http.ResponseWriter, r *http.Request) (*model.Session, error) {
	user, err := g.completeUserAuth(w, r)
	if err != nil {
		return nil, err
	}

	session := SessionFromGothUser(user)
	if !session.Valid() {
		return nil, ErrOAuthNotAuthorized
	}
	return session, nil
}

// SessionFromGothUser rebuilds the Session from a completed provider sign-in.
func SessionFromGothUser(u goth.User) *model.Session {
	session := &model.Session{
		AccessToken:  u.AccessToken,
		RefreshToken: u.RefreshToken,
		TokenType:    "bearer",
		User: model.User{
			ID:       u.UserID,
			Email:    u.Email,
			Metadata: u.RawData,
		},
	}
	if !u.ExpiresAt.IsZero() {
		session.ExpiresAt = u.ExpiresAt.Unix()
		if remaining := time.Until(u.ExpiresAt); remaining > 0 {
			session.ExpiresIn = int64(remaining / time.Second)
		}
	}
	return session
}
