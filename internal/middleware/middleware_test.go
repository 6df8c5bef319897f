package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"easierfocus/internal/auth"
	"easierfocus/internal/model"
)

type fakeState auth.State

func (f fakeState) State() auth.State { return auth.State(f) }

func TestAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	session := &model.Session{AccessToken: "abc", User: model.User{ID: "user-1"}}

	testCases := []struct {
		name           string
		state          auth.State
		expectedStatus int
	}{
		{name: "loading", state: auth.State{Loading: true}, expectedStatus: http.StatusServiceUnavailable},
		{name: "anonymous", state: auth.State{}, expectedStatus: http.StatusUnauthorized},
		{name: "signed in", state: auth.State{Session: session, User: &session.User}, expectedStatus: http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/protected", Auth(fakeState(tc.state)), func(c *gin.Context) {
				c.String(http.StatusOK, CurrentUser(c).ID)
			})

			w := httptest.NewRecorder()
			req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tc.expectedStatus, w.Code)
			if tc.expectedStatus == http.StatusOK {
				assert.Equal(t, "user-1", w.Body.String())
			}
		})
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.POST("/auth/signin", RateLimit(0.001, 2, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/auth/signin", nil)
		req.RemoteAddr = "127.0.0.1:5000"
		router.ServeHTTP(w, req)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestRateLimitEvictsIdleClients(t *testing.T) {
	gin.SetMode(gin.TestMode)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiters := newIPLimiters(0.001, 1, time.Hour)
	limiters.now = func() time.Time { return now }

	router := gin.New()
	router.POST("/auth/signin", rateLimit(limiters, zap.NewNop()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	signIn := func(addr string) int {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPost, "/auth/signin", nil)
		req.RemoteAddr = addr
		router.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, signIn("10.0.0.1:5000"))
	assert.Equal(t, http.StatusTooManyRequests, signIn("10.0.0.1:5000"))

	now = now.Add(30 * time.Minute)
	assert.Equal(t, http.StatusOK, signIn("10.0.0.2:5000"))

	now = now.Add(31 * time.Minute)
	assert.Equal(t, 1, limiters.evict())
	assert.Len(t, limiters.entries, 1)
	assert.Contains(t, limiters.entries, "10.0.0.2")

	assert.Equal(t, http.StatusOK, signIn("10.0.0.1:5000"), "an evicted client starts with a full bucket")
}

func TestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	core, logs := observer.New(zap.InfoLevel)
	router := gin.New()
	router.Use(Logger(zap.New(core)))
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/missing?code=secret", nil)
	router.ServeHTTP(w, req)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, zap.WarnLevel, entries[0].Level)
		assert.Equal(t, "/missing", entries[0].ContextMap()["path"])
		assert.EqualValues(t, http.StatusNotFound, entries[0].ContextMap()["status"])
	}
}
