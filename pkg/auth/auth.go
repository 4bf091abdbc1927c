// Package auth manages GeneaFlow user accounts and session tokens.
//
// Accounts are global; what a user may do inside a tree is decided by the
// tree's collaborator roles (see storage.Tree.RoleFor), not here. This
// package only answers "who is making the request": it stores bcrypt
// password hashes, locks accounts after repeated failures, and issues
// HMAC-SHA256 signed bearer tokens.
//
// Example:
//
//	a, err := auth.NewAuthenticator(auth.DefaultConfig([]byte(secret)))
//	if err != nil {
//		log.Fatal(err)
//	}
//	user, _ := a.Register("ana", "ana@example.com", "correct horse battery")
//	token, _, err := a.Authenticate("ana", "correct horse battery")
//	claims, err := a.ValidateToken(token.AccessToken)
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/DavidMGG/geneaflow/pkg/storage"
)

// Errors for authentication operations.
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account locked due to failed login attempts")
	ErrPasswordTooShort   = errors.New("password does not meet minimum length requirement")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrSessionExpired     = errors.New("session expired")
	ErrNoCredentials      = errors.New("no credentials provided")
	ErrMissingSecret      = errors.New("token secret not configured")
)

// User is a GeneaFlow account. PasswordHash and the lockout counters are
// never serialized.
type User struct {
	ID           storage.UserID `json:"id"`
	Username     string         `json:"username"`
	Email        string         `json:"email,omitempty"`
	PasswordHash string         `json:"-"`
	FailedLogins int            `json:"-"`
	LockedUntil  time.Time      `json:"-"`
	Disabled     bool           `json:"disabled,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	LastLogin    time.Time      `json:"last_login,omitempty"`
}

// Claims are the verified token claims attached to a request.
type Claims struct {
	Sub      string `json:"sub"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	Iat      int64  `json:"iat"`
	Exp      int64  `json:"exp,omitempty"`
}

// UserID returns the subject as a typed user id.
func (c *Claims) UserID() storage.UserID {
	return storage.UserID(c.Sub)
}

// TokenResponse follows the OAuth 2.0 token response shape.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in,omitempty"`
}

// Config holds authentication settings.
type Config struct {
	MinPasswordLength int
	BcryptCost        int

	// TokenSecret signs bearer tokens. Required when Enabled.
	TokenSecret []byte

	// TokenExpiry of zero means tokens never expire.
	TokenExpiry time.Duration

	MaxFailedLogins int
	LockoutDuration time.Duration

	// Enabled=false turns ValidateToken into a pass-through that returns
	// anonymous claims. Meant for local single-user setups.
	Enabled bool
}

// DefaultConfig returns production defaults with the given signing secret.
func DefaultConfig(secret []byte) Config {
	return Config{
		MinPasswordLength: 8,
		BcryptCost:        bcrypt.DefaultCost,
		TokenSecret:       secret,
		TokenExpiry:       24 * time.Hour,
		MaxFailedLogins:   5,
		LockoutDuration:   15 * time.Minute,
		Enabled:           true,
	}
}

// Authenticator manages accounts and tokens. Safe for concurrent use.
type Authenticator struct {
	mu     sync.RWMutex
	users  map[string]*User // keyed by username
	config Config
}

// NewAuthenticator validates the config and returns an empty account set.
func NewAuthenticator(config Config) (*Authenticator, error) {
	if config.Enabled && len(config.TokenSecret) == 0 {
		return nil, ErrMissingSecret
	}
	if config.MinPasswordLength <= 0 {
		config.MinPasswordLength = 8
	}
	if config.BcryptCost <= 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	if config.MaxFailedLogins <= 0 {
		config.MaxFailedLogins = 5
	}
	if config.LockoutDuration <= 0 {
		config.LockoutDuration = 15 * time.Minute
	}
	return &Authenticator{users: make(map[string]*User), config: config}, nil
}

// Register creates an account with a bcrypt-hashed password.
func (a *Authenticator) Register(username, email, password string) (*User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.users[username]; exists {
		return nil, ErrUserExists
	}
	if len(password) < a.config.MinPasswordLength {
		return nil, fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, a.config.MinPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	now := time.Now()
	user := &User{
		ID:           storage.UserID(generateID()),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	a.users[username] = user
	return copySafe(user), nil
}

// Authenticate verifies credentials and issues a bearer token. A failed
// attempt increments the lockout counter; reaching MaxFailedLogins locks
// the account for LockoutDuration. Whether the username exists is never
// revealed.
func (a *Authenticator) Authenticate(username, password string) (*TokenResponse, *User, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	user, exists := a.users[username]
	if !exists {
		return nil, nil, ErrInvalidCredentials
	}
	if !user.LockedUntil.IsZero() && time.Now().Before(user.LockedUntil) {
		return nil, nil, ErrAccountLocked
	}
	if user.Disabled {
		return nil, nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		user.FailedLogins++
		if user.FailedLogins >= a.config.MaxFailedLogins {
			user.LockedUntil = time.Now().Add(a.config.LockoutDuration)
		}
		user.UpdatedAt = time.Now()
		return nil, nil, ErrInvalidCredentials
	}

	user.FailedLogins = 0
	user.LockedUntil = time.Time{}
	user.LastLogin = time.Now()
	user.UpdatedAt = user.LastLogin

	token, err := a.signToken(user)
	if err != nil {
		return nil, nil, fmt.Errorf("generating token: %w", err)
	}

	resp := &TokenResponse{AccessToken: token, TokenType: "Bearer"}
	if a.config.TokenExpiry > 0 {
		resp.ExpiresIn = int64(a.config.TokenExpiry.Seconds())
	}
	return resp, copySafe(user), nil
}

// ValidateToken verifies a bearer token (with or without "Bearer " prefix)
// and returns its claims. With auth disabled, anonymous claims pass.
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	if !a.config.Enabled {
		return &Claims{Sub: "anonymous"}, nil
	}
	if token == "" {
		return nil, ErrNoCredentials
	}
	token = strings.TrimSpace(strings.TrimPrefix(token, "Bearer "))
	return a.verifyToken(token)
}

// ChangePassword verifies the old password and replaces the hash.
func (a *Authenticator) ChangePassword(username, oldPassword, newPassword string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	user, exists := a.users[username]
	if !exists {
		return ErrUserNotFound
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return ErrInvalidCredentials
	}
	if len(newPassword) < a.config.MinPasswordLength {
		return fmt.Errorf("%w: minimum %d characters", ErrPasswordTooShort, a.config.MinPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), a.config.BcryptCost)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	user.PasswordHash = string(hash)
	user.UpdatedAt = time.Now()
	return nil
}

// GetUser returns an account by username without sensitive fields.
func (a *Authenticator) GetUser(username string) (*User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	user, exists := a.users[username]
	if !exists {
		return nil, ErrUserNotFound
	}
	return copySafe(user), nil
}

// GetUserByID returns an account by id without sensitive fields.
func (a *Authenticator) GetUserByID(id storage.UserID) (*User, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, user := range a.users {
		if user.ID == id {
			return copySafe(user), nil
		}
	}
	return nil, ErrUserNotFound
}

// UserCount returns the number of registered accounts.
func (a *Authenticator) UserCount() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.users)
}

// signToken builds a header.payload.signature token signed with
// HMAC-SHA256.
func (a *Authenticator) signToken(user *User) (string, error) {
	if len(a.config.TokenSecret) == 0 {
		return "", ErrMissingSecret
	}

	now := time.Now().Unix()
	claims := Claims{
		Sub:      string(user.ID),
		Username: user.Username,
		Email:    user.Email,
		Iat:      now,
	}
	if a.config.TokenExpiry > 0 {
		claims.Exp = now + int64(a.config.TokenExpiry.Seconds())
	}

	headerJSON, _ := json.Marshal(map[string]string{"alg": "HS256", "typ": "JWT"})
	claimsJSON, _ := json.Marshal(claims)

	message := base64.RawURLEncoding.EncodeToString(headerJSON) + "." + base64.RawURLEncoding.EncodeToString(claimsJSON)
	mac := hmac.New(sha256.New, a.config.TokenSecret)
	mac.Write([]byte(message))
	return message + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (a *Authenticator) verifyToken(token string) (*Claims, error) {
	if len(a.config.TokenSecret) == 0 {
		return nil, ErrMissingSecret
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, ErrInvalidToken
	}

	message := parts[0] + "." + parts[1]
	mac := hmac.New(sha256.New, a.config.TokenSecret)
	mac.Write([]byte(message))
	expected := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	if !SecureCompare(parts[2], expected) {
		return nil, ErrInvalidToken
	}

	claimsJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, ErrInvalidToken
	}
	var claims Claims
	if err := json.Unmarshal(claimsJSON, &claims); err != nil {
		return nil, ErrInvalidToken
	}
	if claims.Exp > 0 && time.Now().Unix() > claims.Exp {
		return nil, ErrSessionExpired
	}
	return &claims, nil
}

func copySafe(u *User) *User {
	return &User{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Disabled:  u.Disabled,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
		LastLogin: u.LastLogin,
	}
}

func generateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}

// SecureCompare performs constant-time string comparison to prevent timing
// attacks on token validation.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// ExtractToken pulls a bearer token from the places clients put it.
// Priority: Authorization header, cookie, query parameter.
func ExtractToken(authHeader, cookie, queryToken string) string {
	if authHeader != "" {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	if cookie != "" {
		return cookie
	}
	return queryToken
}
