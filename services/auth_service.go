package services

import (
	"chatline/apperrors"
	"chatline/auth"
	"chatline/repositories"
	"fmt"
	"log/slog"
)

type IAuthService interface {
	Register(email, password string) (Token, error)
	Login(email, password string) (Token, error)
}

type Token string

func (t Token) String() string {
	return string(t)
}

type AuthService struct {
	users  repositories.IUserRepository
	tokens *auth.TokenManager
	log    *slog.Logger
}

func NewAuthService(log *slog.Logger, users repositories.IUserRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		log:    log.With("component", "AuthService"),
	}
}

func (s *AuthService) Register(email, password string) (Token, error) {
	// Validate before any expensive cryptographic work.
	if err := auth.ValidateRegister(auth.RegisterRequest{Email: email, Password: password}); err != nil {
		return "", err
	}

	// Hashing happens here so the repository never sees a plain password.
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing failed: %w", err)
	}

	userID, err := s.users.CreateUser(email, hashedPassword)
	if err != nil {
		return "", err // propagates ErrUserAlreadyExists when the email is taken
	}

	token, err := s.tokens.Generate(userID)
	if err != nil {
		return "", fmt.Errorf("token generation failed: %w", err)
	}
	s.log.Info("User registered", "userId", userID)
	return Token(token), nil
}

func (s *AuthService) Login(email, password string) (Token, error) {
	user, err := s.users.GetUserByEmail(email)
	if err != nil {
		// Generic error to prevent user enumeration.
		return "", apperrors.ErrInvalidCredentials
	}

	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return "", apperrors.ErrInvalidCredentials
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return "", fmt.Errorf("token generation failed: %w", err)
	}
	return Token(token), nil
}
