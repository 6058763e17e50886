package auth

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/erp/salesrecon/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrMissingUserID    = errors.New("missing user id in claims")
	ErrMissingSecret    = errors.New("jwt secret is not configured")
)

// Claims are the claims carried by tokens issued by the jewelry backend.
// The subject is the seller ID used as usr on upstream calls.
type Claims struct {
	jwt.RegisteredClaims
	Username     string   `json:"username,omitempty"`
	PointOfSale  string   `json:"ps,omitempty"`
	Roles        []string `json:"roles,omitempty"`
	AllowAllShop bool     `json:"all_ps,omitempty"`
}

// UserID returns the seller ID of the token owner
func (c *Claims) UserID() string {
	return c.Subject
}

// HasRole reports whether the claims carry role, case-insensitively
func (c *Claims) HasRole(role string) bool {
	return slices.ContainsFunc(c.Roles, func(r string) bool {
		return strings.EqualFold(r, role)
	})
}

// CanSeePointOfSale reports whether the owner may read reports for ps.
// Tokens without a point of sale are not restricted.
func (c *Claims) CanSeePointOfSale(ps string) bool {
	return c.AllowAllShop || c.PointOfSale == "" || c.PointOfSale == ps
}

// GetRemainingTTL returns the time until the token expires
func (c *Claims) GetRemainingTTL() time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return max(time.Until(c.ExpiresAt.Time), 0)
}

// JWTService verifies caller tokens. It also issues tokens for tooling and tests.
type JWTService struct {
	secret []byte
	issuer string
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
	}
}

// IssueInput describes a token to sign
type IssueInput struct {
	UserID      string
	Username    string
	PointOfSale string
	Roles       []string
	TTL         time.Duration
}

// Issue signs an HS256 token
func (s *JWTService) Issue(in IssueInput) (string, error) {
	if len(s.secret) == 0 {
		return "", ErrMissingSecret
	}
	now := time.Now()
	ttl := in.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   in.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Username:    in.Username,
		PointOfSale: in.PointOfSale,
		Roles:       in.Roles,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Validate parses tokenString and returns its claims
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrMissingSecret
	}
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenNotValidYet):
			return nil, ErrTokenNotYetValid
		default:
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.Subject == "" {
		return nil, ErrMissingUserID
	}
	return claims, nil
}
