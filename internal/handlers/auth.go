package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"galleria/internal/auth"
	"galleria/internal/database"
	"galleria/internal/middleware"
	"galleria/pkg/utils"
)

const maxAuthBody = 4 << 10

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Access    string         `json:"access"`
	ExpiresAt time.Time      `json:"expires_at"`
	User      *database.User `json:"user"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		utils.WriteError(w, http.StatusBadRequest, utils.ErrRequestInvalid, "Invalid JSON body.")
		return false
	}
	return true
}

// RegisterHandler creates an account.
// POST /api/auth/register
func (s *Server) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if !decodeJSON(w, r, maxAuthBody, &in) {
		return
	}

	u, err := s.Users.Register(r.Context(), in)
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		utils.WriteValidationError(w, verr.Fields)
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, u)
}

// LoginHandler exchanges credentials for a bearer token. Guarded by the
// login rate limiter.
// POST /api/auth/login
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var creds LoginRequest
	if !decodeJSON(w, r, maxAuthBody, &creds) {
		return
	}

	fields := map[string]string{}
	if strings.TrimSpace(creds.Username) == "" {
		fields["username"] = "This field is required."
	}
	if creds.Password == "" {
		fields["password"] = "This field is required."
	}
	if len(fields) > 0 {
		utils.WriteValidationError(w, fields)
		return
	}

	u, token, exp, err := s.Users.Login(r.Context(), creds.Username, creds.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		utils.WriteError(w, http.StatusUnauthorized, utils.ErrAuthInvalid, "No active account found with the given credentials.")
		return
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, LoginResponse{Access: token, ExpiresAt: exp, User: u})
}

// MeHandler returns the authenticated account.
// GET /api/auth/me
func (s *Server) MeHandler(w http.ResponseWriter, r *http.Request) {
	v := middleware.ViewerFrom(r.Context())

	var u database.User
	if err := s.DB.WithContext(r.Context()).First(&u, v.UserID).Error; err != nil {
		utils.WriteError(w, http.StatusUnauthorized, utils.ErrAuthTokenInvalid, "Account no longer exists.")
		return
	}
	utils.WriteJSON(w, http.StatusOK, u)
}
