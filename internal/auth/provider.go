package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/markbates/goth"
	"golang.org/x/oauth2"

	"easierfocus/internal/model"
)

const exchangeTimeout = 15 * time.Second

// Provider signs in through an external identity provider (google, github,
// ...) brokered by the identity service, using the PKCE code flow. It is
// registered with goth under the external provider's name.
type Provider struct {
	name        string
	external    string
	callbackURL string
	gateway     *HTTPGateway
	debug       bool
}

var _ goth.Provider = (*Provider)(nil)

func NewProvider(gateway *HTTPGateway, external, callbackURL string) *Provider {
	return &Provider{
		name:        external,
		external:    external,
		callbackURL: callbackURL,
		gateway:     gateway,
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) SetName(name string) { p.name = name }

func (p *Provider) Debug(debug bool) { p.debug = debug }

func (p *Provider) RefreshTokenAvailable() bool { return true }

// BeginAuth creates the PKCE verifier and the authorize URL. The state
// travels inside redirect_to and is checked again in Authorize.
func (p *Provider) BeginAuth(state string) (goth.Session, error) {
	verifier, err := newCodeVerifier()
	if err != nil {
		return nil, err
	}

	redirectTo, err := url.Parse(p.callbackURL)
	if err != nil {
		return nil, fmt.Errorf("parse oauth callback url: %w", err)
	}
	q := redirectTo.Query()
	q.Set("state", state)
	redirectTo.RawQuery = q.Encode()

	return &ProviderSession{
		AuthURL:      p.gateway.AuthorizeURL(p.external, redirectTo.String(), codeChallenge(verifier)),
		CodeVerifier: verifier,
		State:        state,
	}, nil
}

func (p *Provider) UnmarshalSession(data string) (goth.Session, error) {
	sess := &ProviderSession{}
	err := json.NewDecoder(strings.NewReader(data)).Decode(sess)
	return sess, err
}

func (p *Provider) FetchUser(session goth.Session) (goth.User, error) {
	sess, ok := session.(*ProviderSession)
	if !ok {
		return goth.User{}, fmt.Errorf("%s: unexpected session type %T", p.name, session)
	}

	user := goth.User{
		Provider:     p.name,
		AccessToken:  sess.AccessToken,
		RefreshToken: sess.RefreshToken,
		ExpiresAt:    sess.ExpiresAt,
	}
	if user.AccessToken == "" {
		return user, fmt.Errorf("%s: %w", p.name, ErrOAuthNotAuthorized)
	}

	user.UserID = sess.User.ID
	user.Email = sess.User.Email
	user.RawData = sess.User.Metadata
	if name, ok := sess.User.Metadata["full_name"].(string); ok {
		user.Name = name
	}
	if avatar, ok := sess.User.Metadata["avatar_url"].(string); ok {
		user.AvatarURL = avatar
	}
	return user, nil
}

func (p *Provider) RefreshToken(refreshToken string) (*oauth2.Token, error) {
	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()

	session, err := p.gateway.Refresh(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return session.Token(), nil
}

// ProviderSession is the goth session persisted by gothic between the
// authorize redirect and the callback.
type ProviderSession struct {
	AuthURL      string     `json:"auth_url"`
	CodeVerifier string     `json:"code_verifier"`
	State        string     `json:"state"`
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time  `json:"expires_at,omitempty"`
	ExpiresIn    int64      `json:"expires_in,omitempty"`
	User         model.User `json:"user"`
}

func (s *ProviderSession) GetAuthURL() (string, error) {
	if s.AuthURL == "" {
		return "", errors.New(goth.NoAuthUrlErrorMessage)
	}
	return s.AuthURL, nil
}

func (s *ProviderSession) Marshal() string {
	b, _ := json.Marshal(s)
	return string(b)
}

// Authorize exchanges the callback's auth code for a session.
func (s *ProviderSession) Authorize(provider goth.Provider, params goth.Params) (string, error) {
	p, ok := provider.(*Provider)
	if !ok {
		return "", fmt.Errorf("unexpected provider type %T", provider)
	}
	if s.State != "" && params.Get("state") != s.State {
		return "", ErrOAuthStateMismatch
	}
	code := params.Get("code")
	if code == "" {
		return "", ErrOAuthMissingCode
	}

	ctx, cancel := context.WithTimeout(context.Background(), exchangeTimeout)
	defer cancel()

	session, err := p.gateway.ExchangeCode(ctx, code, s.CodeVerifier)
	if err != nil {
		return "", err
	}

	s.AccessToken = session.AccessToken
	s.RefreshToken = session.RefreshToken
	s.ExpiresAt = session.Expiry()
	s.ExpiresIn = session.ExpiresIn
	s.User = session.User
	return s.AccessToken, nil
}

func newCodeVerifier() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func codeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
