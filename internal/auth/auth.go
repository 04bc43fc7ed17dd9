package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/flipbase/marketplace/internal/db"
	"github.com/flipbase/marketplace/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles user authentication. It is the identity
// provider: a request resolves to a stable user id or nothing.
type AuthService struct {
	DB     *db.DB
	secret []byte
}

// NewAuthService creates a new auth service
func NewAuthService(database *db.DB, secret string) *AuthService {
	return &AuthService{DB: database, secret: []byte(secret)}
}

// Register creates a new user with hashed password. A valid referral
// code links the new user to their referrer; an unknown code is
// ignored rather than failing registration.
func (s *AuthService) Register(ctx context.Context, username, password, referralCode string, walletAddress *string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("username too long (max 50 characters)")
	}
	if len(password) > 100 {
		return nil, fmt.Errorf("password too long (max 100 characters)")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var referrer *models.User
	if referralCode != "" {
		referrer, err = db.GetUserByReferralCode(ctx, s.DB.Pool, referralCode)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to resolve referral code: %w", err)
		}
	}

	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	user, err := db.CreateUser(ctx, s.DB.Pool, username, string(hashedPassword), code, walletAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if referrer != nil {
		if _, err := db.InsertReferral(ctx, s.DB.Pool, user.ID, referrer.ID); err != nil {
			return nil, fmt.Errorf("failed to link referral: %w", err)
		}
	}
	return user, nil
}

// Login verifies credentials and generates a JWT
func (s *AuthService) Login(ctx context.Context, username, password string) (string, error) {
	user, err := db.GetUserByUsername(ctx, s.DB.Pool, username)
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id":  user.ID,
		"username": user.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// GetUserFromToken extracts user ID from JWT
func (s *AuthService) GetUserFromToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return 0, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		userID, ok := claims["user_id"].(float64)
		if !ok {
			return 0, fmt.Errorf("user_id claim missing")
		}
		return int64(userID), nil
	}
	return 0, fmt.Errorf("invalid token")
}
