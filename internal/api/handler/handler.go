package handler

import (
	"net/http"

	"opscheck/backend/internal/lifecycle"
	"opscheck/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// Handler wires the HTTP surface to the transition engine. The engine owns
// all lifecycle decisions; handlers only translate requests and results.
type Handler struct {
	Engine    *lifecycle.Service
	Storage   *storage.Service
	JWTSecret []byte
}

func NewHandler(engine *lifecycle.Service, s *storage.Service, jwtSecret []byte) *Handler {
	return &Handler{Engine: engine, Storage: s, JWTSecret: jwtSecret}
}

// respond maps a transition result onto an HTTP status. Business failures
// arrive as data, never as Go errors; infrastructure faults are the only
// 500s.
func respond(c *gin.Context, res lifecycle.TransitionResult, err error) {
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if res.Success {
		c.JSON(http.StatusOK, res)
		return
	}

	status := http.StatusBadRequest
	switch res.FailureKind {
	case lifecycle.FailureValidation:
		status = http.StatusBadRequest
	case lifecycle.FailureState, lifecycle.FailureConflict:
		status = http.StatusConflict
	case lifecycle.FailureAccountability:
		status = http.StatusForbidden
	case lifecycle.FailureNotFound:
		status = http.StatusNotFound
	}
	c.JSON(status, res)
}
