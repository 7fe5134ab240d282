package rest

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"reservo/backend/internal/auth"
)

const (
	msgBadCredentials = "Username or password is incorrect"
	msgNoToken        = "No authorization token was found"
	msgInvalidToken   = "invalid token"

	usernameKey = "username"
)

type authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
}

type tokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type AuthHandler struct {
	auth authenticator
	log  *slog.Logger
}

func NewAuthHandler(a authenticator, log *slog.Logger) *AuthHandler {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandler{auth: a, log: log.With(slog.String("component", "http.auth"))}
}

type loginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

type loginResponse struct {
	Success bool    `json:"success"`
	Token   *string `json:"token"`
	Err     *string `json:"err"`
}

func (h *AuthHandler) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.deny(c, http.StatusUnauthorized, msgBadCredentials)
		return
	}

	token, err := h.auth.Login(c.Request.Context(), req.Username, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		h.log.Info("login rejected", slog.String("username", req.Username))
		h.deny(c, http.StatusUnauthorized, msgBadCredentials)
		return
	}
	if err != nil {
		h.log.Error("login failed", slog.String("username", req.Username), slog.Any("err", err))
		h.deny(c, http.StatusInternalServerError, msgInternal)
		return
	}

	c.JSON(http.StatusOK, loginResponse{Success: true, Token: &token})
}

func (h *AuthHandler) deny(c *gin.Context, status int, msg string) {
	c.JSON(status, loginResponse{Success: false, Err: &msg})
}

func authTest(c *gin.Context) {
	c.String(http.StatusOK, "You are authenticated")
}

type unauthorizedResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// RequireAuth rejects requests without a valid bearer token.
func RequireAuth(v tokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedResponse{Name: "UnauthorizedError", Message: msgNoToken})
			return
		}

		claims, err := v.Verify(strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorizedResponse{Name: "UnauthorizedError", Message: msgInvalidToken})
			return
		}

		c.Set(usernameKey, claims.Subject)
		c.Next()
	}
}
