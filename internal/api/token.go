package api

import (
	"errors"
	"fmt"
	"time"

	"timeclock/internal/db/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrMissingSecret = errors.New("jwt secret is not configured")

type Claims struct {
	EmployeeID string `json:"employee_id"`
	Email      string `json:"email"`
	Admin      bool   `json:"admin"`
	jwt.RegisteredClaims
}

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(secret string, ttl time.Duration) (*Tokens, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (t *Tokens) Issue(e *models.Employee) (string, time.Time, error) {
	now := t.now()
	expires := now.Add(t.ttl)
	claims := Claims{
		EmployeeID: e.ID.String(),
		Email:      e.Email,
		Admin:      e.IsAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   e.ID.String(),
			Issuer:    "timeclock",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

func (t *Tokens) Parse(raw string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, errors.New("invalid token")
	}
	if _, err := uuid.Parse(claims.EmployeeID); err != nil {
		return nil, fmt.Errorf("invalid employee id in token: %w", err)
	}
	return claims, nil
}
