package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"easierfocus/internal/model"
)

// Gateway issues calls to the remote identity endpoints. Implementations do
// not retry.
type Gateway interface {
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	ResetPassword(ctx context.Context, email, redirectTo string) error
	Refresh(ctx context.Context, refreshToken string) (*model.Session, error)
	User(ctx context.Context, accessToken string) (*model.User, error)
	ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*model.Session, error)
}

type HTTPGateway struct {
	baseURL    string
	anonKey    string
	httpClient *http.Client
	now        func() time.Time
}

var _ Gateway = (*HTTPGateway)(nil)

func NewGateway(baseURL, anonKey string, httpClient *http.Client) (*HTTPGateway, error) {
	trimmed := strings.TrimSpace(baseURL)
	if trimmed == "" || strings.TrimSpace(anonKey) == "" {
		return nil, &RequestError{
			Op:   "create identity gateway",
			Kind: ErrInvalidInput,
			Err:  errors.New("identity url or anon key is empty"),
		}
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, &RequestError{Op: "parse identity url", Kind: ErrInvalidInput, Err: err}
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, &RequestError{
			Op:   "validate identity url",
			Kind: ErrInvalidInput,
			Err:  fmt.Errorf("invalid identity url: %s", trimmed),
		}
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &HTTPGateway{
		baseURL:    strings.TrimRight(trimmed, "/"),
		anonKey:    strings.TrimSpace(anonKey),
		httpClient: httpClient,
		now:        time.Now,
	}, nil
}

type credentials struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data,omitempty"`
}

type signUpResponse struct {
	model.Session
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
}

func (g *HTTPGateway) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	var session model.Session
	err := g.do(ctx, "sign in", http.MethodPost, "/auth/v1/token", grant("password"), "",
		credentials{Email: email, Password: password}, &session)
	if err != nil {
		return nil, err
	}
	return g.completeSession(&session)
}

func (g *HTTPGateway) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*SignUpResult, error) {
	var resp signUpResponse
	err := g.do(ctx, "sign up", http.MethodPost, "/auth/v1/signup", nil, "",
		credentials{Email: email, Password: password, Data: metadata}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.AccessToken != "" {
		session, err := g.completeSession(&resp.Session)
		if err != nil {
			return nil, err
		}
		return &SignUpResult{Session: session, User: session.User}, nil
	}

	user := resp.User
	if user.ID == "" {
		user = model.User{ID: resp.ID, Email: resp.Email, Metadata: resp.Metadata}
	}
	return &SignUpResult{User: user, ConfirmationRequired: true}, nil
}

func (g *HTTPGateway) SignOut(ctx context.Context, accessToken string) error {
	return g.do(ctx, "sign out", http.MethodPost, "/auth/v1/logout", nil, accessToken, nil, nil)
}

func (g *HTTPGateway) ResetPassword(ctx context.Context, email, redirectTo string) error {
	var query url.Values
	if redirectTo != "" {
		query = url.Values{"redirect_to": {redirectTo}}
	}
	return g.do(ctx, "reset password", http.MethodPost, "/auth/v1/recover", query, "",
		map[string]string{"email": email}, nil)
}

func (g *HTTPGateway) Refresh(ctx context.Context, refreshToken string) (*model.Session, error) {
	if strings.TrimSpace(refreshToken) == "" {
		return nil, fmt.Errorf("%w: empty refresh token", ErrRefreshFailed)
	}

	var session model.Session
	err := g.do(ctx, "refresh session", http.MethodPost, "/auth/v1/token", grant("refresh_token"), "",
		map[string]string{"refresh_token": refreshToken}, &session)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	completed, err := g.completeSession(&session)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}
	return completed, nil
}

func (g *HTTPGateway) User(ctx context.Context, accessToken string) (*model.User, error) {
	var user model.User
	if err := g.do(ctx, "get user", http.MethodGet, "/auth/v1/user", nil, accessToken, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (g *HTTPGateway) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*model.Session, error) {
	var session model.Session
	err := g.do(ctx, "exchange auth code", http.MethodPost, "/auth/v1/token", grant("pkce"), "",
		map[string]string{"auth_code": authCode, "code_verifier": codeVerifier}, &session)
	if err != nil {
		return nil, err
	}
	return g.completeSession(&session)
}

// AuthorizeURL is where the browser is sent to start an external provider
// sign-in with a PKCE challenge.
func (g *HTTPGateway) AuthorizeURL(provider, redirectTo, codeChallenge string) string {
	q := url.Values{}
	q.Set("provider", provider)
	q.Set("redirect_to", redirectTo)
	q.Set("code_challenge", codeChallenge)
	q.Set("code_challenge_method", "s256")
	return g.baseURL + "/auth/v1/authorize?" + q.Encode()
}

func (g *HTTPGateway) completeSession(s *model.Session) (*model.Session, error) {
	if !s.Valid() {
		return nil, &RequestError{Op: "decode session", Kind: ErrUnknown, Err: errors.New("response has no access token")}
	}
	if s.ExpiresAt == 0 && s.ExpiresIn > 0 {
		s.ExpiresAt = g.now().Add(time.Duration(s.ExpiresIn) * time.Second).Unix()
	}
	if s.TokenType == "" {
		s.TokenType = "bearer"
	}
	return s, nil
}

func grant(kind string) url.Values {
	return url.Values{"grant_type": {kind}}
}

func (g *HTTPGateway) do(ctx context.Context, op, method, path string, query url.Values, bearer string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &RequestError{Op: op, Kind: ErrUnknown, Err: fmt.Errorf("marshal request body: %w", err)}
		}
		body = bytes.NewReader(payload)
	}

	fullURL := g.baseURL + path
	if len(query) > 0 {
		fullURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return &RequestError{Op: op, Kind: ErrUnknown, Err: err}
	}
	req.Header.Set("apikey", g.anonKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &RequestError{Op: op, Kind: classifyTransportError(err), Err: err}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Kind: ErrNetwork, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(op, resp.StatusCode, respBytes)
	}

	if out == nil || len(bytes.TrimSpace(respBytes)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBytes, out); err != nil {
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Kind: ErrUnknown, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func statusError(op string, status int, body []byte) *RequestError {
	var parsed errorResponse
	_ = json.Unmarshal(body, &parsed)

	code := parsed.ErrorCode
	if code == "" {
		code = parsed.Error
	}

	message := firstNonEmpty(parsed.ErrorDescription, parsed.Msg, parsed.Message, parsed.Error)
	if message == "" {
		message = strings.TrimSpace(string(body))
	}
	if message == "" {
		message = http.StatusText(status)
	}

	return &RequestError{
		Op:         op,
		StatusCode: status,
		Kind:       classifyStatus(op, status, code),
		Code:       code,
		Err:        errors.New(message),
	}
}

func classifyStatus(op string, status int, code string) error {
	switch {
	case code == "invalid_credentials" || (code == "invalid_grant" && op == "sign in"):
		return ErrInvalidCredentials
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		if op == "sign in" {
			return ErrInvalidCredentials
		}
		return ErrUnauthorized
	case (status == http.StatusBadRequest || status == http.StatusUnprocessableEntity) && op == "sign in":
		return ErrInvalidCredentials
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return ErrNetwork
	default:
		return ErrUnknown
	}
}

func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		return ErrUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrNetwork
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrNetwork
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrNetwork
	}
	return ErrUnknown
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
