package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/markbates/goth/gothic"
	"go.uber.org/zap"

	"easierfocus/internal/auth"
	"easierfocus/internal/config"
	"easierfocus/internal/database"
	"easierfocus/internal/middleware"
	"easierfocus/internal/model"
)

const eventBuffer = 16

// SessionService is the part of auth.Service the handlers use.
type SessionService interface {
	State() auth.State
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*auth.SignUpResult, error)
	SignOut(ctx context.Context) error
	ResetPassword(ctx context.Context, email, redirectTo string) error
	Refresh(ctx context.Context) (*model.Session, error)
	User(ctx context.Context) (*model.User, error)
	CompleteOAuth(ctx context.Context, session *model.Session) error
	Subscribe(buffer int) *auth.Subscription
	Unsubscribe(sub *auth.Subscription)
}

type Handler struct {
	sessions SessionService
	settings database.SettingsRepository
	journal  database.JournalRepository
	store    sessions.Store
	cfg      *config.Config
	signIn   auth.ProviderSignIn
	log      *zap.Logger
}

func New(svc SessionService, settings database.SettingsRepository, journal database.JournalRepository,
	store sessions.Store, cfg *config.Config, signIn auth.ProviderSignIn, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{svc, settings, journal, store, cfg, signIn, log}
}

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"full_name"`
}

type resetRequest struct {
	Email      string `json:"email" binding:"required"`
	RedirectTo string `json:"redirect_to"`
}

type journalRequest struct {
	Mood   int    `json:"mood"`
	Sleep  int    `json:"sleep_quality"`
	Energy int    `json:"energy_level"`
	Note   string `json:"notes"`
}

func (h *Handler) Home(c *gin.Context) {
	c.JSON(http.StatusOK, struct {
		Message string `json:"message"`
	}{
		Message: "easierfocus session companion",
	})
}

func (h *Handler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessions.State())
}

// Events streams every broadcaster event as server-sent events, starting with
// a snapshot of the current state.
func (h *Handler) Events(c *gin.Context) {
	sub := h.sessions.Subscribe(eventBuffer)
	defer h.sessions.Unsubscribe(sub)

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("state", h.sessions.State())
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Kind), ev)
			c.Writer.Flush()
		}
	}
}

func (h *Handler) SignIn(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalidInput(err))
		return
	}

	if _, err := h.sessions.SignIn(c.Request.Context(), req.Email, req.Password); err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.sessions.State())
}

func (h *Handler) SignUp(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalidInput(err))
		return
	}

	var metadata map[string]any
	if name := strings.TrimSpace(req.FullName); name != "" {
		metadata = map[string]any{"full_name": name}
	}

	result, err := h.sessions.SignUp(c.Request.Context(), req.Email, req.Password, metadata)
	if err != nil {
		h.writeError(c, err)
		return
	}

	if result.ConfirmationRequired {
		c.JSON(http.StatusAccepted, result)
		return
	}
	c.JSON(http.StatusCreated, h.sessions.State())
}

func (h *Handler) SignOut(c *gin.Context) {
	if err := h.sessions.SignOut(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.sessions.State())
}

func (h *Handler) ResetPassword(c *gin.Context) {
	var req resetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalidInput(err))
		return
	}

	redirectTo := req.RedirectTo
	if redirectTo == "" {
		redirectTo = strings.TrimRight(h.cfg.FrontendURL, "/") + "/reset-password"
	}

	if err := h.sessions.ResetPassword(c.Request.Context(), req.Email, redirectTo); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *Handler) Refresh(c *gin.Context) {
	if _, err := h.sessions.Refresh(c.Request.Context()); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.sessions.State())
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.sessions.User(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) SignInWithProvider(c *gin.Context) {
	provider := c.Param("provider")
	q := c.Request.URL.Query()
	q.Add("provider", provider)
	c.Request.URL.RawQuery = q.Encode()

	gothic.BeginAuthHandler(c.Writer, c.Request)
}

func (h *Handler) CallbackHandler(c *gin.Context) {
	provider := c.Param("provider")
	q := c.Request.URL.Query()
	q.Add("provider", provider)
	q.Del("scope")
	c.Request.URL.RawQuery = q.Encode()

	signedIn, err := h.signIn.Complete(c.Writer, c.Request)
	if err != nil {
		h.log.Warn("complete provider sign in", zap.String("provider", provider), zap.Error(err))
		h.writeError(c, err)
		return
	}

	if err := h.sessions.CompleteOAuth(c.Request.Context(), signedIn); err != nil {
		h.writeError(c, err)
		return
	}

	session, err := auth.GetSession(h.store, c.Request)
	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	session.Options.MaxAge = -1
	if err := session.Save(c.Request, c.Writer); err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	c.Redirect(http.StatusTemporaryRedirect, h.cfg.FrontendURL)
}

func (h *Handler) GetSettings(c *gin.Context) {
	user := middleware.CurrentUser(c)

	doc, err := h.settings.Get(c.Request.Context(), user.ID, c.Param("kind"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// PutSettings replaces the whole settings document with the request body.
func (h *Handler) PutSettings(c *gin.Context) {
	user := middleware.CurrentUser(c)

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		h.writeError(c, invalidInput(err))
		return
	}

	doc, err := h.settings.Put(c.Request.Context(), user.ID, c.Param("kind"), json.RawMessage(body))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

func (h *Handler) ListJournal(c *gin.Context) {
	user := middleware.CurrentUser(c)

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.writeError(c, invalidInput(errors.New("limit must be a positive number")))
			return
		}
		limit = n
	}

	entries, err := h.journal.List(c.Request.Context(), user.ID, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *Handler) CreateJournal(c *gin.Context) {
	user := middleware.CurrentUser(c)

	var req journalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, invalidInput(err))
		return
	}

	entry, err := h.journal.Create(c.Request.Context(), &model.MoodEntry{
		UserID: user.ID,
		Mood:   req.Mood,
		Sleep:  req.Sleep,
		Energy: req.Energy,
		Note:   req.Note,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *Handler) DeleteJournal(c *gin.Context) {
	user := middleware.CurrentUser(c)

	if err := h.journal.Delete(c.Request.Context(), user.ID, c.Param("id")); err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
