package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	jwt "github.com/golang-jwt/jwt/v5"
)

// actorClaims is the identity a bearer token carries: who is acting and
// within which organization.
type actorClaims struct {
	ActorID string
	OrgID   string
}

// generateJWT issues a token for a trusted caller.
func (h *Handler) generateJWT(actorID, orgID string) (string, error) {
	claims := jwt.MapClaims{
		"actor_id": actorID,
		"org_id":   orgID,
		"exp":      time.Now().Add(time.Hour * 12).Unix(),
		"iss":      "opscheck-service",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.JWTSecret)
}

// validateToken parses a bearer token and extracts the actor claims.
func (h *Handler) validateToken(tokenString string) (*actorClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return h.JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("invalid claims")
	}
	actorID, _ := claims["actor_id"].(string)
	orgID, _ := claims["org_id"].(string)
	if actorID == "" {
		return nil, errors.New("token missing actor_id")
	}
	return &actorClaims{ActorID: actorID, OrgID: orgID}, nil
}

// actorFromRequest pulls the acting identity from the Authorization
// header. Handlers abort with 401 when it is absent or invalid.
func (h *Handler) actorFromRequest(c *gin.Context) (*actorClaims, bool) {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) < 8 || authHeader[:7] != "Bearer " {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
		return nil, false
	}
	claims, err := h.validateToken(authHeader[7:])
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
		return nil, false
	}
	return claims, true
}

// MintToken issues a JWT for a trusted caller (the API gateway in front
// of this core authenticates the human; this endpoint is for service to
// service use).
func (h *Handler) MintToken(c *gin.Context) {
	var req struct {
		ActorID string `json:"actor_id" binding:"required"`
		OrgID   string `json:"org_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	token, err := h.generateJWT(req.ActorID, req.OrgID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
