package auth

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

type Credential struct {
	UserID       string
	Name         string
	Email        string
	Role         Role
	PasswordHash string
}

type CredentialStore interface {
	CredentialByEmail(ctx context.Context, email string) (Credential, bool)
}

type Service struct {
	Credentials CredentialStore
	Secret      string
	TokenTTL    time.Duration
}

type LoginResult struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      UserContext `json:"user"`
}

func NewService(credentials CredentialStore, secret string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Service{Credentials: credentials, Secret: secret, TokenTTL: ttl}
}

func (s *Service) Login(ctx context.Context, email, password string) (LoginResult, error) {
	cred, ok := s.Credentials.CredentialByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if !ok || cred.PasswordHash == "" {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err := CheckPassword(cred.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	user := UserContext{UserID: cred.UserID, Name: cred.Name, Email: cred.Email, Role: cred.Role}
	token, err := GenerateToken(s.Secret, Claims{UserID: user.UserID, Name: user.Name, Email: user.Email, Role: user.Role}, s.TokenTTL)
	if err != nil {
		return LoginResult{}, err
	}
	return LoginResult{Token: token, ExpiresAt: time.Now().Add(s.TokenTTL), User: user}, nil
}
