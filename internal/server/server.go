package server

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"go.uber.org/zap"

	"easierfocus/internal/auth"
	"easierfocus/internal/config"
	"easierfocus/internal/database"
	"easierfocus/internal/handler"
	"easierfocus/internal/middleware"
)

type Server struct {
	*gin.Engine
}

func New(cfg *config.Config, service *auth.Service, gateway *auth.HTTPGateway,
	settings database.SettingsRepository, journal database.JournalRepository, log *zap.Logger) (*Server, error) {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(log))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.FrontendURL},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	store, err := auth.NewStateStore(cfg.SessionDatabaseURL, cfg.Env == "production", []byte(cfg.SessionSecret))
	if err != nil {
		return nil, err
	}
	gothic.Store = store

	provider := auth.NewProvider(gateway, cfg.Identity.OAuthProvider, cfg.Identity.OAuthCallbackURL)
	provider.Debug(cfg.Env != "production")
	goth.UseProviders(provider)

	h := handler.New(service, settings, journal, store, cfg, auth.NewGothicSignIn(), log)

	r.GET("/", h.Home)

	a := r.Group("/auth")
	{
		a.GET("/state", h.State)
		a.GET("/events", h.Events)
		a.GET("/user", h.Me)

		limited := a.Group("/")
		limited.Use(middleware.RateLimit(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, log))
		{
			limited.POST("/signin", h.SignIn)
			limited.POST("/signup", h.SignUp)
			limited.POST("/reset", h.ResetPassword)
		}
		a.POST("/signout", h.SignOut)
		a.POST("/refresh", h.Refresh)

		a.GET("/:provider", h.SignInWithProvider)
		a.GET("/:provider/callback", h.CallbackHandler)
	}

	authorized := r.Group("/api")
	authorized.Use(middleware.Auth(service))
	{
		authorized.GET("/settings/:kind", h.GetSettings)
		authorized.PUT("/settings/:kind", h.PutSettings)
		authorized.GET("/journal", h.ListJournal)
		authorized.POST("/journal", h.CreateJournal)
		authorized.DELETE("/journal/:id", h.DeleteJournal)
	}

	log.Info("routes registered", zap.String("oauth_provider", provider.Name()))

	return &Server{r}, nil
}
