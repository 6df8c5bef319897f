package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"easierfocus/internal/model"
)

// Service is the single session service of the companion. It owns the Store,
// calls the Gateway and publishes every state change on the Broadcaster.
//
// All operations return errors; failures are also published as
// EventAuthError so subscribers can show them without the caller's help.
type Service struct {
	store   *Store
	gateway Gateway
	events  *Broadcaster
	log     *zap.Logger
	now     func() time.Time

	loading  atomic.Bool
	inflight atomic.Int32

	// refreshMu collapses concurrent 401 recoveries into one refresh call.
	refreshMu sync.Mutex
}

func NewService(store *Store, gateway Gateway, events *Broadcaster, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if events == nil {
		events = NewBroadcaster(log)
	}
	s := &Service{
		store:   store,
		gateway: gateway,
		events:  events,
		log:     log,
		now:     time.Now,
	}
	s.loading.Store(true)
	return s
}

func (s *Service) Policy() RefreshPolicy {
	return RefreshReactive
}

// Start rehydrates the persisted session and ends the loading window.
func (s *Service) Start(ctx context.Context) State {
	session := s.store.Restore(ctx)
	s.loading.Store(false)

	if session != nil {
		s.log.Info("session restored", zap.String("user_id", session.User.ID))
	} else {
		s.log.Info("no session restored")
	}

	state := s.State()
	s.publish(EventInitialSession, nil)
	return state
}

func (s *Service) State() State {
	session := s.store.Current()
	state := State{
		Session:     session,
		Loading:     s.loading.Load(),
		AuthLoading: s.inflight.Load() > 0,
	}
	if session != nil {
		user := session.User
		state.User = &user
	}
	return state
}

func (s *Service) Subscribe(buffer int) *Subscription {
	return s.events.Subscribe(buffer)
}

func (s *Service) Unsubscribe(sub *Subscription) {
	s.events.Unsubscribe(sub)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return nil, s.fail("sign in", err)
	}

	var session *model.Session
	err = s.track(func() (err error) {
		session, err = s.gateway.SignIn(ctx, email, password)
		if err != nil {
			return err
		}
		return s.store.Set(ctx, session)
	})
	if err != nil {
		return nil, s.fail("sign in", err)
	}

	s.log.Info("signed in", zap.String("user_id", session.User.ID))
	s.publish(EventSignedIn, &Notice{Level: NoticeSuccess, Message: "Signed in"})
	return session.Clone(), nil
}

// SignUp registers a user. When the identity service confirms immediately the
// returned session is stored; otherwise ConfirmationRequired is set and the
// store is left alone.
func (s *Service) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	email, err := validateCredentials(email, password)
	if err != nil {
		return nil, s.fail("sign up", err)
	}

	var result *SignUpResult
	err = s.track(func() (err error) {
		result, err = s.gateway.SignUp(ctx, email, password, metadata)
		if err != nil {
			return err
		}
		if result.Session.Valid() {
			return s.store.Set(ctx, result.Session)
		}
		return nil
	})
	if err != nil {
		return nil, s.fail("sign up", err)
	}

	if result.Session.Valid() {
		s.log.Info("signed up", zap.String("user_id", result.User.ID))
		s.publish(EventSignedIn, &Notice{Level: NoticeSuccess, Message: "Account created"})
		return result, nil
	}

	result.ConfirmationRequired = true
	s.log.Info("sign up awaiting confirmation", zap.String("user_id", result.User.ID))
	s.publish(EventConfirmationRequired, &Notice{
		Level:   NoticeInfo,
		Message: "Check your email to confirm your account",
	})
	return result, nil
}

// SignOut revokes the session remotely when possible and always clears it
// locally. Only a failed local clear is returned.
func (s *Service) SignOut(ctx context.Context) error {
	clearErr := s.track(func() error {
		if current := s.store.Current(); current != nil {
			if err := s.gateway.SignOut(ctx, current.AccessToken); err != nil {
				s.log.Warn("remote sign out failed", zap.String("kind", Kind(err)), zap.Error(err))
			}
		}
		return s.store.Clear(ctx)
	})
	if clearErr != nil {
		s.log.Error("clear session", zap.Error(clearErr))
	}

	s.publish(EventSignedOut, &Notice{Level: NoticeInfo, Message: "Signed out"})
	return clearErr
}

func (s *Service) ResetPassword(ctx context.Context, email, redirectTo string) error {
	email, err := normalizeEmail(email)
	if err != nil {
		return s.fail("reset password", err)
	}

	err = s.track(func() error {
		return s.gateway.ResetPassword(ctx, email, redirectTo)
	})
	if err != nil {
		return s.fail("reset password", err)
	}

	s.publish(EventPasswordResetSent, &Notice{
		Level:   NoticeSuccess,
		Message: "Password reset instructions sent",
	})
	return nil
}

// Refresh exchanges the current refresh token for a new session. Any failure
// signs the user out locally.
func (s *Service) Refresh(ctx context.Context) (*model.Session, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	return s.refreshLocked(ctx)
}

// HandleUnauthorized is called after an authenticated request answered 401.
// When another caller already replaced staleAccessToken the current session
// is returned without a second refresh.
func (s *Service) HandleUnauthorized(ctx context.Context, staleAccessToken string) (*model.Session, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	current := s.store.Current()
	if current == nil {
		return nil, ErrNoSession
	}
	if staleAccessToken != "" && current.AccessToken != staleAccessToken {
		return current, nil
	}
	return s.refreshLocked(ctx)
}

func (s *Service) refreshLocked(ctx context.Context) (*model.Session, error) {
	current := s.store.Current()
	if current == nil {
		return nil, ErrNoSession
	}

	var (
		session  *model.Session
		replaced bool
	)
	err := s.track(func() (err error) {
		session, err = s.gateway.Refresh(ctx, current.RefreshToken)
		if err != nil {
			return err
		}
		replaced, err = s.store.Replace(ctx, current.AccessToken, session)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrRefreshFailed) {
			err = fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		cleared, clearErr := s.store.ClearIf(ctx, current.AccessToken)
		if clearErr != nil {
			s.log.Error("clear session after refresh failure", zap.Error(clearErr))
		}
		if !cleared {
			s.log.Info("refresh failed for a session that is no longer current",
				zap.String("user_id", current.User.ID), zap.Error(err))
			return nil, err
		}
		s.log.Warn("refresh failed, signing out", zap.String("user_id", current.User.ID), zap.Error(err))
		s.publish(EventSignedOut, &Notice{
			Level:   NoticeError,
			Message: "Your session expired, please sign in again",
			Error:   Kind(err),
		})
		return nil, err
	}

	if !replaced {
		s.log.Info("discarding refresh for a session that is no longer current",
			zap.String("user_id", current.User.ID))
		if latest := s.store.Current(); latest != nil {
			return latest, nil
		}
		return nil, ErrNoSession
	}

	s.log.Debug("session refreshed", zap.String("user_id", session.User.ID))
	s.publish(EventTokenRefreshed, nil)
	return session.Clone(), nil
}

// CompleteOAuth stores a session obtained through an external provider.
func (s *Service) CompleteOAuth(ctx context.Context, session *model.Session) error {
	if err := s.store.Set(ctx, session); err != nil {
		return s.fail("oauth sign in", err)
	}
	s.log.Info("signed in with provider", zap.String("user_id", session.User.ID))
	s.publish(EventSignedIn, &Notice{Level: NoticeSuccess, Message: "Signed in"})
	return nil
}

// User fetches the remote user record, recovering once from a 401.
func (s *Service) User(ctx context.Context) (*model.User, error) {
	current := s.store.Current()
	if current == nil {
		return nil, ErrNoSession
	}

	user, err := s.gateway.User(ctx, current.AccessToken)
	if errors.Is(err, ErrUnauthorized) {
		refreshed, refreshErr := s.HandleUnauthorized(ctx, current.AccessToken)
		if refreshErr != nil {
			return nil, refreshErr
		}
		user, err = s.gateway.User(ctx, refreshed.AccessToken)
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}

// TokenSource exposes the current access token. It never refreshes; see
// RefreshReactive.
func (s *Service) TokenSource() oauth2.TokenSource {
	return tokenSource{s}
}

type tokenSource struct {
	s *Service
}

func (t tokenSource) Token() (*oauth2.Token, error) {
	current := t.s.store.Current()
	if current == nil {
		return nil, ErrNoSession
	}
	return current.Token(), nil
}

// track marks fn as an in-flight auth action for the AuthLoading flag.
func (s *Service) track(fn func() error) error {
	s.inflight.Add(1)
	defer s.inflight.Add(-1)
	return fn()
}

func (s *Service) fail(op string, err error) error {
	s.log.Warn(op+" failed", zap.String("kind", Kind(err)), zap.Error(err))
	s.publish(EventAuthError, &Notice{Level: NoticeError, Message: noticeMessage(err), Error: Kind(err)})
	return err
}

func (s *Service) publish(kind EventKind, notice *Notice) {
	s.events.Publish(Event{Kind: kind, State: s.State(), Notice: notice, At: s.now()})
}

func noticeMessage(err error) string {
	switch Kind(err) {
	case "invalid_credentials":
		return "Invalid email or password"
	case "network":
		return "Network error, please try again"
	case "invalid_input":
		return "Please check the form and try again"
	case "refresh_failed":
		return "Your session expired, please sign in again"
	default:
		return "Something went wrong, please try again"
	}
}

var validate = validator.New()

// validateCredentials returns the normalized email.
func validateCredentials(email, password string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}
	if err := validate.Var(password, "required"); err != nil {
		return "", fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	return email, nil
}

// normalizeEmail accepts only a bare address, never a display-name form.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := validate.Var(email, "required,email"); err != nil {
		return "", fmt.Errorf("%w: email format is invalid", ErrInvalidInput)
	}
	return email, nil
}
