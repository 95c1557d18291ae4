package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"swcatalog/pkg/database"
)

type Handler struct {
	Repo   *Repo
	Tokens TokenService
	Log    zerolog.Logger

	// OpenRegistration lets anyone register. When false only the first
	// operator can self-register.
	OpenRegistration bool
}

func NewHandler(repo *Repo, tokens TokenService, log zerolog.Logger) *Handler {
	return &Handler{Repo: repo, Tokens: tokens, Log: log}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	guard := RequireOperator(h.Tokens, h.Repo)
	rg.POST("/register", h.register)
	rg.POST("/login", h.login)
	rg.GET("/me", guard, h.me)
	rg.POST("/change-password", guard, h.changePassword)
	rg.POST("/logout", guard, h.logout)
}

type registerReq struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	if len(req.Username) < 3 || len(req.Username) > 30 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username must be 3-30 chars"})
		return
	}
	if !strings.Contains(req.Email, "@") || len(req.Email) > 255 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid email"})
		return
	}
	if len(req.Password) < 8 || len(req.Password) > 72 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be 8-72 chars"})
		return
	}

	ctx := c.Request.Context()
	if !h.OpenRegistration {
		n, err := h.Repo.Count(ctx)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "register failed"})
			return
		}
		if n > 0 {
			c.JSON(http.StatusForbidden, gin.H{"error": "registration is closed"})
			return
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash failed"})
		return
	}

	o := Operator{
		ID:           uuid.NewString(),
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	if err := h.Repo.Create(ctx, o); err != nil {
		if errors.Is(err, database.ErrConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "username or email already exists"})
			return
		}
		h.Log.Error().Err(err).Msg("create operator failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create operator failed"})
		return
	}
	h.Log.Info().Str("operator", o.Username).Msg("operator registered")

	h.issue(c, http.StatusCreated, &o)
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email and password required"})
		return
	}

	o, err := h.Repo.GetByEmail(c.Request.Context(), email)
	if err != nil || o == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	h.issue(c, http.StatusOK, o)
}

func (h *Handler) issue(c *gin.Context, status int, o *Operator) {
	token, exp, err := h.Tokens.Sign(o)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token failed"})
		return
	}
	c.JSON(status, gin.H{
		"operator":   operatorJSON(o),
		"token":      token,
		"expires_at": exp.UTC().Format(time.RFC3339),
	})
}

func operatorJSON(o *Operator) gin.H {
	return gin.H{
		"id":       o.ID,
		"username": o.Username,
		"email":    o.Email,
	}
}

func (h *Handler) me(c *gin.Context) {
	claims := ClaimsFrom(c)
	o, err := h.Repo.GetByID(c.Request.Context(), claims.OperatorID)
	if err != nil || o == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	c.JSON(http.StatusOK, operatorJSON(o))
}

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (h *Handler) changePassword(c *gin.Context) {
	var req changePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.OldPassword == "" || req.NewPassword == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "old and new password required"})
		return
	}
	if len(req.NewPassword) < 8 || len(req.NewPassword) > 72 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be 8-72 chars"})
		return
	}

	claims := ClaimsFrom(c)
	o, err := h.Repo.GetByID(c.Request.Context(), claims.OperatorID)
	if err != nil || o == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(o.PasswordHash), []byte(req.OldPassword)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "hash failed"})
		return
	}
	if err := h.Repo.SetPassword(c.Request.Context(), o.ID, string(hash)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update password failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "password updated"})
}

func (h *Handler) logout(c *gin.Context) {
	claims := ClaimsFrom(c)
	if err := h.Repo.RevokeTokens(c.Request.Context(), claims.OperatorID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "logout failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged out"})
}
