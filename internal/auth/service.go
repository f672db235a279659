package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"galleria/internal/database"
	"galleria/pkg/logger"
)

const MinPasswordLength = 6

var (
	ErrInvalidCredentials = errors.New("invalid username or password")

	usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}@.+_-]+$`)
)

// ValidationError carries per-field messages for a rejected registration.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for f, msg := range e.Fields {
		parts = append(parts, f+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Service struct {
	DB     *gorm.DB
	Tokens *TokenService
}

func NewService(db *gorm.DB, tokens *TokenService) *Service {
	return &Service{DB: db, Tokens: tokens}
}

// HashPassword hashes with bcrypt's default cost.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

var dummyHash = sync.OnceValue(func() string {
	h, _ := bcrypt.GenerateFromPassword([]byte("galleria"), bcrypt.DefaultCost)
	return string(h)
})

// Validate checks the input shape and uniqueness of username and email.
// Rule violations come back as *ValidationError.
func (s *Service) Validate(ctx context.Context, in RegisterInput) error {
	fields := map[string]string{}

	username := strings.TrimSpace(in.Username)
	switch {
	case username == "":
		fields["username"] = "Username is required."
	case utf8.RuneCountInString(username) > 150:
		fields["username"] = "Username must be at most 150 characters."
	case !usernamePattern.MatchString(username):
		fields["username"] = "Username may only contain letters, digits and @/./+/-/_ characters."
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		fields["email"] = "Email is required."
	} else if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email || len(email) > 100 {
		fields["email"] = "Enter a valid email address."
	}

	switch {
	case in.Password == "":
		fields["password"] = "Password is required."
	case utf8.RuneCountInString(in.Password) < MinPasswordLength:
		fields["password"] = fmt.Sprintf("Password must be at least %d characters.", MinPasswordLength)
	}

	db := s.DB.WithContext(ctx)
	if _, bad := fields["username"]; !bad {
		var n int64
		if err := db.Model(&database.User{}).Where("username = ?", username).Count(&n).Error; err != nil {
			return fmt.Errorf("check username: %w", err)
		}
		if n > 0 {
			fields["username"] = "A user with that username already exists."
		}
	}
	if _, bad := fields["email"]; !bad {
		var n int64
		if err := db.Model(&database.User{}).Where("FOLD(email) = FOLD(?)", email).Count(&n).Error; err != nil {
			return fmt.Errorf("check email: %w", err)
		}
		if n > 0 {
			fields["email"] = "This email is already registered."
		}
	}

	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}

// Register validates and creates a user.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*database.User, error) {
	if err := s.Validate(ctx, in); err != nil {
		return nil, err
	}

	hash, err := HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	u := &database.User{
		Username:     strings.TrimSpace(in.Username),
		Email:        strings.TrimSpace(in.Email),
		PasswordHash: hash,
	}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE") {
			return nil, &ValidationError{Fields: map[string]string{"username": "A user with that username or email already exists."}}
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	logger.LogInfo("New user registered: %s (#%d)", u.Username, u.ID)
	return u, nil
}

// Login checks credentials and issues an access token.
func (s *Service) Login(ctx context.Context, username, password string) (*database.User, string, time.Time, error) {
	var u database.User
	err := s.DB.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Unknown users cost one bcrypt comparison too.
		CheckPassword(dummyHash(), password)
		return nil, "", time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", time.Time{}, fmt.Errorf("load user: %w", err)
	}
	if !CheckPassword(u.PasswordHash, password) {
		return nil, "", time.Time{}, ErrInvalidCredentials
	}

	token, exp, err := s.Tokens.Issue(&u)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	return &u, token, exp, nil
}

// SetAdmin grants or revokes admin rights.
func (s *Service) SetAdmin(ctx context.Context, username string, admin bool) error {
	res := s.DB.WithContext(ctx).Model(&database.User{}).Where("username = ?", username).Update("is_admin", admin)
	if res.Error != nil {
		return fmt.Errorf("update user %s: %w", username, res.Error)
	}
	if res.RowsAffected == 0 {
		return database.ErrNotFound
	}
	return nil
}
