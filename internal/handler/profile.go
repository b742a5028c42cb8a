package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/archivebroni/internal/accounts"
	"github.com/jmerrifield20/archivebroni/internal/identity"
	"github.com/jmerrifield20/archivebroni/internal/profiles"
	"go.uber.org/zap"
)

// ProfileHandler handles profile, favorites and account routes.
type ProfileHandler struct {
	svc      accountSvc
	sessions identity.SessionResolver
	logger   *zap.Logger
}

// NewProfileHandler creates a ProfileHandler.
func NewProfileHandler(svc accountSvc, sessions identity.SessionResolver, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{svc: svc, sessions: sessions, logger: logger}
}

// Register mounts the profile routes on the provided router group.
func (h *ProfileHandler) Register(rg *gin.RouterGroup) {
	me := rg.Group("/profile/me", identity.RequireSession(h.sessions))
	{
		me.GET("", h.Me)
		me.PATCH("", h.Update)
		me.DELETE("", h.DeleteAccount)
		me.PUT("/privacy", h.UpdatePrivacy)
		me.POST("/avatar", h.UploadAvatar)
		me.POST("/favorites", h.AddFavorite)
		me.DELETE("/favorites/:type/:id", h.RemoveFavorite)
		me.POST("/password", h.ChangePassword)
		me.GET("/export", h.Export)
	}
	rg.GET("/users/:username", h.Public)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// Me handles GET /profile/me, creating the profile if it is missing.
func (h *ProfileHandler) Me(c *gin.Context) {
	res := h.svc.EnsureProfile(c.Request.Context(), identity.SessionTokenFromCtx(c))
	respond(c, http.StatusOK, res.Result, res)
}

// Update handles PATCH /profile/me.
func (h *ProfileHandler) Update(c *gin.Context) {
	var req accounts.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	res := h.svc.UpdateProfile(c.Request.Context(), identity.SessionTokenFromCtx(c), req)
	respond(c, http.StatusOK, res.Result, res)
}

// UpdatePrivacy handles PUT /profile/me/privacy. Omitted keys take their
// defaults.
func (h *ProfileHandler) UpdatePrivacy(c *gin.Context) {
	var req profiles.PrivacySettings
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	res := h.svc.UpdatePrivacy(c.Request.Context(), identity.SessionTokenFromCtx(c), req)
	respond(c, http.StatusOK, res.Result, res)
}

// UploadAvatar handles POST /profile/me/avatar with a multipart "avatar" file.
func (h *ProfileHandler) UploadAvatar(c *gin.Context) {
	fh, err := c.FormFile("avatar")
	if err != nil {
		badRequest(c, "multipart field \"avatar\" is required")
		return
	}
	f, err := fh.Open()
	if err != nil {
		badRequest(c, "could not read upload")
		return
	}
	defer f.Close()

	res := h.svc.UploadAvatar(c.Request.Context(), identity.SessionTokenFromCtx(c), accounts.Upload{
		Filename:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Body:        f,
	})
	respond(c, http.StatusOK, res.Result, res)
}

// AddFavorite handles POST /profile/me/favorites.
func (h *ProfileHandler) AddFavorite(c *gin.Context) {
	var req profiles.Favorite
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	res := h.svc.AddFavorite(c.Request.Context(), identity.SessionTokenFromCtx(c), req)
	status := http.StatusOK
	if res.Changed {
		status = http.StatusCreated
	}
	respond(c, status, res.Result, res)
}

// RemoveFavorite handles DELETE /profile/me/favorites/:type/:id.
func (h *ProfileHandler) RemoveFavorite(c *gin.Context) {
	res := h.svc.RemoveFavorite(c.Request.Context(), identity.SessionTokenFromCtx(c), c.Param("id"), c.Param("type"))
	respond(c, http.StatusOK, res.Result, res)
}

// ChangePassword handles POST /profile/me/password.
func (h *ProfileHandler) ChangePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON body")
		return
	}
	res := h.svc.ChangePassword(c.Request.Context(), identity.SessionTokenFromCtx(c),
		req.CurrentPassword, req.NewPassword, req.ConfirmPassword)
	respond(c, http.StatusOK, res, res)
}

// DeleteAccount handles DELETE /profile/me.
func (h *ProfileHandler) DeleteAccount(c *gin.Context) {
	ident := identity.IdentityFromCtx(c)
	res := h.svc.DeleteAccount(c.Request.Context(), identity.SessionTokenFromCtx(c))
	if res.Success && !res.IdentityDeleted {
		h.logger.Warn("account deletion left identity behind", zap.String("identity_id", ident.ID))
	}
	respond(c, http.StatusOK, res.Result, res)
}

// Export handles GET /profile/me/export as a JSON attachment.
func (h *ProfileHandler) Export(c *gin.Context) {
	res := h.svc.ExportData(c.Request.Context(), identity.SessionTokenFromCtx(c))
	if !res.Success {
		c.JSON(statusFor(res.Error), res)
		return
	}
	name := fmt.Sprintf("archive-data-%s.json", res.Export.ExportDate.Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.JSON(http.StatusOK, res.Export)
}

// Public handles GET /users/:username.
func (h *ProfileHandler) Public(c *gin.Context) {
	res := h.svc.PublicProfile(c.Request.Context(), c.Param("username"))
	respond(c, http.StatusOK, res.Result, res)
}
