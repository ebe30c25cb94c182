// Package security handles local accounts: password hashing, bearer
// tokens and cookie sessions.
package security

import (
	"context"
	"crypto/sha256"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"

	"github.com/tphakala/spamguard-go/internal/conf"
	"github.com/tphakala/spamguard-go/internal/datastore"
	"github.com/tphakala/spamguard-go/internal/errors"
	"github.com/tphakala/spamguard-go/internal/logger"
)

const (
	// SessionName is the cookie holding the session.
	SessionName = "spamguard_session"

	sessionUserKey = "user_id"
	sessionMaxAge  = 86400 * 7

	minUsernameLength = 3
	minPasswordLength = 6

	defaultTokenTTL = 24 * time.Hour
)

var (
	ErrInvalidCredentials = errors.NewStd("Invalid username or password")
	ErrInvalidToken       = errors.NewStd("Invalid or expired token")
	ErrNotAuthenticated   = errors.NewStd("Authentication required")
)

// UserStore is the account storage the service depends on.
type UserStore interface {
	CreateUser(ctx context.Context, username, email, passwordHash string) (*datastore.User, error)
	GetUserByUsername(ctx context.Context, username string) (*datastore.User, error)
	GetUserByID(ctx context.Context, id uint) (*datastore.User, error)
}

// Claims are the JWT claims issued at login. Subject holds the user ID.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Service authenticates users.
type Service struct {
	users     UserStore
	jwtSecret []byte
	tokenTTL  time.Duration
	sessions  *sessions.CookieStore
	log       logger.Logger

	// dummyHash is compared against when the user does not exist
	dummyHash []byte
}

// NewService creates the service from the security settings.
func NewService(users UserStore, settings *conf.SecuritySettings) *Service {
	ttl := settings.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}

	store := sessions.NewCookieStore(
		createSessionKey(settings.SessionSecret),
		createSessionKey(settings.SessionSecret+"encryption"),
	)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   settings.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}

	dummy, _ := bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)

	return &Service{
		users:     users,
		jwtSecret: []byte(settings.JWTSecret),
		tokenTTL:  ttl,
		sessions:  store,
		log:       GetLogger(),
		dummyHash: dummy,
	}
}

// createSessionKey derives a 32 byte key from a secret
func createSessionKey(seed string) []byte {
	sum := sha256.Sum256([]byte(seed))
	return sum[:]
}

// Register validates the input and creates an account.
func (s *Service) Register(ctx context.Context, username, email, password string) (*datastore.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)

	if utf8.RuneCountInString(username) < minUsernameLength {
		return nil, validationError("Username must be at least 3 characters")
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return nil, validationError("Please enter a valid email address")
	}
	if utf8.RuneCountInString(password) < minPasswordLength {
		return nil, validationError("Password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, errors.New(err).
			Component("security").
			Category(errors.CategorySystem).
			Context("operation", "hash_password").
			Build()
	}

	return s.users.CreateUser(ctx, username, email, string(hash))
}

// Authenticate checks credentials. Every failure is ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*datastore.User, error) {
	user, err := s.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, datastore.ErrUserNotFound) {
			return nil, err
		}
		// keep timing similar for unknown users
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, authError(ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.Info("login failed", logger.String("username", user.Username))
		return nil, authError(ErrInvalidCredentials)
	}
	return user, nil
}

// User returns the account for id.
func (s *Service) User(ctx context.Context, id uint) (*datastore.User, error) {
	return s.users.GetUserByID(ctx, id)
}

// IssueToken creates a signed HS256 token for user.
func (s *Service) IssueToken(user *datastore.User) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
		Username: user.Username,
	})
	return token.SignedString(s.jwtSecret)
}

// ParseToken validates a token and returns its user ID and username.
func (s *Service) ParseToken(tokenString string) (uint, string, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return 0, "", authError(ErrInvalidToken)
	}

	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || id == 0 {
		return 0, "", authError(ErrInvalidToken)
	}
	return uint(id), claims.Username, nil
}

// StartSession stores user in the session cookie.
func (s *Service) StartSession(w http.ResponseWriter, r *http.Request, user *datastore.User) error {
	sess, _ := s.sessions.Get(r, SessionName)
	sess.Values[sessionUserKey] = user.ID
	sess.Values["username"] = user.Username
	return sess.Save(r, w)
}

// EndSession expires the session cookie.
func (s *Service) EndSession(w http.ResponseWriter, r *http.Request) error {
	sess, _ := s.sessions.Get(r, SessionName)
	sess.Values = map[any]any{}
	sess.Options.MaxAge = -1
	return sess.Save(r, w)
}

// SessionUser returns the user stored in the request's session.
func (s *Service) SessionUser(r *http.Request) (uint, string, bool) {
	sess, err := s.sessions.Get(r, SessionName)
	if err != nil {
		return 0, "", false
	}
	id, ok := sess.Values[sessionUserKey].(uint)
	if !ok || id == 0 {
		return 0, "", false
	}
	name, _ := sess.Values["username"].(string)
	return id, name, true
}

func validationError(msg string) error {
	return errors.New(errors.NewStd(msg)).
		Component("security").
		Category(errors.CategoryValidation).
		Build()
}

func authError(sentinel error) error {
	return errors.New(sentinel).
		Component("security").
		Category(errors.CategoryAuth).
		Build()
}

// GetLogger returns the security module logger.
func GetLogger() logger.Logger {
	return logger.Global().Module("security")
}
