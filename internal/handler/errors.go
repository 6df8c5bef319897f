package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"easierfocus/internal/auth"
	"easierfocus/internal/database"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func invalidInput(err error) error {
	return fmt.Errorf("%w: %v", auth.ErrInvalidInput, err)
}

// writeError maps service and data errors onto a status and a short error
// code. Internal error text never reaches the client.
func (h *Handler) writeError(c *gin.Context, err error) {
	status, resp := describe(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, resp)
}

func describe(err error) (int, errorResponse) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		return http.StatusNotFound, errorResponse{"not_found", "Nothing saved yet"}
	case errors.Is(err, database.ErrInvalidEntry):
		return http.StatusBadRequest, errorResponse{"invalid_input", "Please check the form and try again"}
	case errors.Is(err, database.ErrConflict):
		return http.StatusConflict, errorResponse{"conflict", "This entry was changed elsewhere"}
	case errors.Is(err, database.ErrUnauthorized):
		return http.StatusUnauthorized, errorResponse{"unauthorized", "Please sign in again"}
	case errors.Is(err, database.ErrUnavailable):
		return http.StatusBadGateway, errorResponse{"network", "Network error, please try again"}
	case errors.Is(err, database.ErrRequestFailed):
		return http.StatusBadGateway, errorResponse{"unknown", "Something went wrong, please try again"}
	}

	switch auth.Kind(err) {
	case "invalid_credentials":
		return http.StatusUnauthorized, errorResponse{"invalid_credentials", "Invalid email or password"}
	case "refresh_failed":
		return http.StatusUnauthorized, errorResponse{"refresh_failed", "Your session expired, please sign in again"}
	case "unauthorized":
		return http.StatusUnauthorized, errorResponse{"unauthorized", "Please sign in again"}
	case "network":
		return http.StatusBadGateway, errorResponse{"network", "Network error, please try again"}
	case "invalid_input":
		return http.StatusBadRequest, errorResponse{"invalid_input", "Please check the form and try again"}
	case "oauth_failed":
		return http.StatusBadRequest, errorResponse{"oauth_failed", "Sign in with the provider failed"}
	default:
		return http.StatusInternalServerError, errorResponse{"unknown", "Something went wrong, please try again"}
	}
}
