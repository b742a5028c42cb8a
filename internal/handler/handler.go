// Package handler exposes the account operations over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/archivebroni/internal/accounts"
	"github.com/jmerrifield20/archivebroni/internal/profiles"
)

// accountSvc is the interface expected by the handlers, satisfied by
// *accounts.Service.
type accountSvc interface {
	Register(ctx context.Context, email, password, username string) accounts.RegisterResult
	Login(ctx context.Context, email, password string) accounts.LoginResult
	Logout(ctx context.Context, token string) accounts.Result
	EnsureProfile(ctx context.Context, token string) accounts.ProfileResult
	UpdateProfile(ctx context.Context, token string, upd accounts.ProfileUpdate) accounts.ProfileResult
	UpdatePrivacy(ctx context.Context, token string, ps profiles.PrivacySettings) accounts.ProfileResult
	UploadAvatar(ctx context.Context, token string, up accounts.Upload) accounts.ProfileResult
	AddFavorite(ctx context.Context, token string, fav profiles.Favorite) accounts.FavoritesResult
	RemoveFavorite(ctx context.Context, token, itemID, itemType string) accounts.FavoritesResult
	ChangePassword(ctx context.Context, token, current, newPassword, confirm string) accounts.Result
	DeleteAccount(ctx context.Context, token string) accounts.DeleteResult
	ExportData(ctx context.Context, token string) accounts.ExportResult
	PublicProfile(ctx context.Context, username string) accounts.PublicResult
}

// statusFor maps a failure kind to an HTTP status code.
func statusFor(f *accounts.Failure) int {
	if f == nil {
		return http.StatusOK
	}
	switch f.Kind {
	case profiles.KindValidation:
		return http.StatusBadRequest
	case profiles.KindIdentityCreation:
		return http.StatusUnprocessableEntity
	case profiles.KindProfileConflict:
		return http.StatusConflict
	case profiles.KindProfileNotFound:
		return http.StatusNotFound
	case profiles.KindInvalidCredential, profiles.KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusServiceUnavailable
	}
}

// respond writes res with okStatus on success or the failure's status.
func respond(c *gin.Context, okStatus int, r accounts.Result, body any) {
	if !r.Success {
		c.JSON(statusFor(r.Error), body)
		return
	}
	c.JSON(okStatus, body)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, accounts.Result{
		Error: &accounts.Failure{Kind: profiles.KindValidation, Message: msg},
	})
}
