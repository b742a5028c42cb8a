package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/archivebroni/internal/identity"
	"go.uber.org/zap"
)

// AuthHandler handles registration and session routes.
type AuthHandler struct {
	svc    accountSvc
	logger *zap.Logger
}

// NewAuthHandler creates an AuthHandler.
func NewAuthHandler(svc accountSvc, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Register mounts all auth routes on the provided router group.
func (h *AuthHandler) Register(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		auth.POST("/register", h.SignUp)
		auth.POST("/login", h.Login)
		auth.POST("/logout", h.Logout)
	}
}

// ─── Request types ───────────────────────────────────────────────────────────

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ─── Handlers ────────────────────────────────────────────────────────────────

// SignUp handles POST /auth/register. Field validation is left to the
// service so that every rejection carries the same result shape.
func (h *AuthHandler) SignUp(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}

	res := h.svc.Register(c.Request.Context(), req.Email, req.Password, req.Username)
	if res.Success && !res.ProfileCreated {
		h.logger.Warn("registration completed without profile", zap.String("identity_id", res.IdentityID))
	}
	respond(c, http.StatusCreated, res.Result, res)
}

// Login handles POST /auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}

	res := h.svc.Login(c.Request.Context(), req.Email, req.Password)
	respond(c, http.StatusOK, res.Result, res)
}

// Logout handles POST /auth/logout. The bearer session is revoked.
func (h *AuthHandler) Logout(c *gin.Context) {
	token, _ := identity.BearerToken(c)
	res := h.svc.Logout(c.Request.Context(), token)
	respond(c, http.StatusOK, res, res)
}
