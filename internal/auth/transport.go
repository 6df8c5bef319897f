package auth

import (
	"io"
	"net/http"
)

// Transport authorizes outgoing data requests with the current session and
// performs the reactive refresh: a 401 triggers one refresh and one retry.
// Without a session the anon key is sent as the bearer token.
type Transport struct {
	Base    http.RoundTripper
	Service *Service
	AnonKey string
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	accessToken := ""
	if current := t.Service.store.Current(); current != nil {
		accessToken = current.AccessToken
	}

	resp, err := t.base().RoundTrip(t.authorize(req, accessToken))
	if err != nil || resp.StatusCode != http.StatusUnauthorized || accessToken == "" {
		return resp, err
	}

	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	refreshed, refreshErr := t.Service.HandleUnauthorized(req.Context(), accessToken)
	if refreshErr != nil {
		return resp, nil
	}

	retry := t.authorize(req, refreshed.AccessToken)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return resp, nil
		}
		retry.Body = body
	}

	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	return t.base().RoundTrip(retry)
}

func (t *Transport) authorize(req *http.Request, accessToken string) *http.Request {
	out := req.Clone(req.Context())
	if t.AnonKey != "" {
		out.Header.Set("apikey", t.AnonKey)
	}
	bearer := accessToken
	if bearer == "" {
		bearer = t.AnonKey
	}
	if bearer != "" {
		out.Header.Set("Authorization", "Bearer "+bearer)
	}
	return out
}
