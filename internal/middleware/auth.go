package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"galleria/internal/auth"
	"galleria/internal/database"
	"galleria/pkg/utils"
)

type viewerKey struct{}

// WithViewer stores v in ctx.
func WithViewer(ctx context.Context, v database.Viewer) context.Context {
	return context.WithValue(ctx, viewerKey{}, v)
}

// ViewerFrom returns the authenticated caller, or an anonymous Viewer.
func ViewerFrom(ctx context.Context) database.Viewer {
	v, _ := ctx.Value(viewerKey{}).(database.Viewer)
	return v
}

// Authenticator resolves "Authorization: Bearer <token>" into a Viewer.
// The user row is re-read on every request so revoked admins and deleted
// accounts take effect immediately.
type Authenticator struct {
	Tokens *auth.TokenService
	DB     *gorm.DB
}

func NewAuthenticator(tokens *auth.TokenService, db *gorm.DB) *Authenticator {
	return &Authenticator{Tokens: tokens, DB: db}
}

var errNoToken = errors.New("no bearer token")

func (a *Authenticator) viewer(r *http.Request) (database.Viewer, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return database.Viewer{}, errNoToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return database.Viewer{}, auth.ErrTokenInvalid
	}

	claims, err := a.Tokens.Validate(strings.TrimSpace(token))
	if err != nil {
		return database.Viewer{}, err
	}

	var u database.User
	if err := a.DB.WithContext(r.Context()).Select("id", "is_admin").First(&u, claims.UserID).Error; err != nil {
		return database.Viewer{}, auth.ErrTokenInvalid
	}
	return database.Viewer{UserID: u.ID, IsAdmin: u.IsAdmin}, nil
}

func (a *Authenticator) reject(w http.ResponseWriter, err error) {
	if errors.Is(err, auth.ErrTokenExpired) {
		utils.WriteError(w, http.StatusUnauthorized, utils.ErrAuthTokenInvalid, "Token is expired.")
		return
	}
	utils.WriteError(w, http.StatusUnauthorized, utils.ErrAuthTokenInvalid, "Token is invalid.")
}

// Optional lets anonymous requests through but rejects a bad token.
func (a *Authenticator) Optional(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := a.viewer(r)
		if err != nil && !errors.Is(err, errNoToken) {
			a.reject(w, err)
			return
		}
		next(w, r.WithContext(WithViewer(r.Context(), v)))
	}
}

// Required answers 401 unless a valid token is presented.
func (a *Authenticator) Required(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := a.viewer(r)
		if errors.Is(err, errNoToken) {
			utils.WriteError(w, http.StatusUnauthorized, utils.ErrAuthRequired, "Authentication credentials were not provided.")
			return
		}
		if err != nil {
			a.reject(w, err)
			return
		}
		next(w, r.WithContext(WithViewer(r.Context(), v)))
	}
}

// Admin is Required plus the admin flag.
func (a *Authenticator) Admin(next http.HandlerFunc) http.HandlerFunc {
	return a.Required(func(w http.ResponseWriter, r *http.Request) {
		if !ViewerFrom(r.Context()).IsAdmin {
			utils.WriteError(w, http.StatusForbidden, utils.ErrRequestForbidden, "Administrator rights required.")
			return
		}
		next(w, r)
	})
}
