package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Dan9191/bank-cards/internal/events"
	"github.com/Dan9191/bank-cards/internal/models"
	"github.com/Dan9191/bank-cards/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AuthService registers users and issues tokens
type AuthService struct {
	repo      repository.Store
	log       *logrus.Logger
	jwtSecret []byte
	tokenTTL  time.Duration
}

// NewAuthService initializes a new auth service
func NewAuthService(repo repository.Store, log *logrus.Logger, jwtSecret string, tokenTTL time.Duration) *AuthService {
	return &AuthService{repo: repo, log: log, jwtSecret: []byte(jwtSecret), tokenTTL: tokenTTL}
}

// Claims is the JWT payload
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// RegisterInput carries a validated registration payload
type RegisterInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// Register creates a new user with hashed password
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	return s.createUser(ctx, in, models.RoleUser)
}

// EnsureAdmin creates the bootstrap admin unless a user with that name already exists
func (s *AuthService) EnsureAdmin(ctx context.Context, username, email, password string) error {
	_, err := s.repo.FindUserByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	_, err = s.createUser(ctx, RegisterInput{
		Username:  username,
		Email:     email,
		FirstName: "System",
		LastName:  "Administrator",
		Password:  password,
	}, models.RoleAdmin)
	return err
}

func (s *AuthService) createUser(ctx context.Context, in RegisterInput, role models.Role) (*models.User, error) {
	if strings.TrimSpace(in.Username) == "" || in.Password == "" {
		return nil, models.Validationf("username and password are required")
	}

	// Hash password
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: string(hashedPassword),
		Role:         role,
		Enabled:      true,
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Infof("User registered: %s (%s)", user.Username, user.Role)
	return user, nil
}

// Login authenticates a user and returns a JWT token
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.repo.FindUserByUsername(ctx, username)
	if errors.Is(err, models.ErrNotFound) {
		return "", models.Unauthenticatedf("invalid credentials")
	}
	if err != nil {
		return "", err
	}

	// Verify password
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", models.Unauthenticatedf("invalid credentials")
	}
	if !user.Enabled {
		return "", models.Unauthenticatedf("user is disabled")
	}

	// Generate JWT
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	})
	tokenString, err := token.SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	s.log.Infof("User logged in: %s", user.Username)
	return tokenString, nil
}

// ParseToken verifies a token and resolves the caller it was issued to
func (s *AuthService) ParseToken(tokenString string) (models.Caller, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return models.Caller{}, models.Unauthenticatedf("invalid or expired token")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return models.Caller{}, models.Unauthenticatedf("invalid token subject")
	}
	return models.Caller{UserID: userID, IsAdmin: claims.Role == string(models.RoleAdmin)}, nil
}

// publish emits an event; a failed publish never fails the operation that produced it
func publish(ctx context.Context, p events.Publisher, log *logrus.Logger, eventType string, data any) {
	if err := p.Publish(ctx, eventType, data); err != nil {
		log.Warnf("Failed to publish %s event: %v", eventType, err)
	}
}

func requireAdmin(caller models.Caller) error {
	if !caller.IsAdmin {
		return models.AccessDeniedf("admin access required")
	}
	return nil
}
