package httpapi

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"pharmasys/internal/domain"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthManager issues session tokens for the register's login gate. Any
// non-empty username and password pass the gate unless a passphrase is
// configured, in which case the password must match it.
type AuthManager struct {
	secret     []byte
	tokenTTL   time.Duration
	passphrase string
	now        func() time.Time
}

// NewAuthManager fails when the passphrase cannot be hashed, such as one
// longer than bcrypt's 72 byte limit.
func NewAuthManager(secret string, tokenTTL time.Duration, passphrase string) (*AuthManager, error) {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}
	passphrase = strings.TrimSpace(passphrase)
	if passphrase != "" {
		hashed, err := hashPassword(passphrase)
		if err != nil {
			return nil, fmt.Errorf("hash gate passphrase: %w", err)
		}
		passphrase = hashed
	}

	return &AuthManager{
		secret:     []byte(secret),
		tokenTTL:   tokenTTL,
		passphrase: passphrase,
		now:        time.Now,
	}, nil
}

func (a *AuthManager) Login(req domain.LoginRequest) (domain.LoginResponse, error) {
	username := strings.TrimSpace(req.Username)
	if username == "" || strings.TrimSpace(req.Password) == "" {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if a.passphrase != "" && !verifyPassword(a.passphrase, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}

	expiresAt := a.now().UTC().Add(a.tokenTTL)
	token, err := a.sign(username, expiresAt)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Username:    username,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

func (a *AuthManager) ParseToken(tokenStr string) (domain.Actor, error) {
	claims := &jwtlib.RegisteredClaims{}
	token, err := jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwtlib.WithValidMethods([]string{"HS256"}), jwtlib.WithTimeFunc(a.now))
	if err != nil || !token.Valid {
		return domain.Actor{}, errors.New("invalid or expired token")
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return domain.Actor{}, errors.New("invalid token subject")
	}
	return domain.Actor{Username: sub}, nil
}

func (a *AuthManager) sign(username string, expiresAt time.Time) (string, error) {
	claims := jwtlib.RegisteredClaims{
		Subject:   username,
		IssuedAt:  jwtlib.NewNumericDate(a.now().UTC()),
		ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		Issuer:    "pharmasys",
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func verifyPassword(stored string, input string) bool {
	if stored == "" || strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func isPasswordHash(value string) bool {
	return strings.HasPrefix(value, "$2a$") || strings.HasPrefix(value, "$2b$") || strings.HasPrefix(value, "$2y$")
}
