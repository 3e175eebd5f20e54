package passhash

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token types carried in the claims so an access token can never be
// replayed as a refresh token and vice versa.
const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// ErrWrongTokenType is returned when a token of one type is presented
// where the other is required.
var ErrWrongTokenType = errors.New("wrong token type")

// JWTConfig tunes the admin surface's bearer tokens.
type JWTConfig struct {
	SecretKey          string
	AccessTokenExpiry  time.Duration
	RefreshTokenExpiry time.Duration
	Issuer             string
}

// DefaultJWTConfig returns the development defaults. Deployments always
// override SecretKey via admin.jwt_secret.
func DefaultJWTConfig() *JWTConfig {
	return &JWTConfig{
		SecretKey:          "change-me-in-production",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		Issuer:             "gateway-admin",
	}
}

// Claims is the gateway's bearer-token payload: the operator identity
// plus the token type, on top of the registered claims.
type Claims struct {
	UserID    string `json:"user_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	TokenType string `json:"token_type,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager signs and validates the admin surface's bearer tokens with
// a single HMAC secret shared across replicas.
type JWTManager struct {
	config *JWTConfig
}

func NewJWTManager(config *JWTConfig) *JWTManager {
	if config == nil {
		config = DefaultJWTConfig()
	}
	return &JWTManager{config: config}
}

// GenerateAccessToken issues the short-lived token the admin routes
// accept as a bearer credential.
func (m *JWTManager) GenerateAccessToken(userID, username, role string) (string, error) {
	return m.sign(userID, username, role, tokenTypeAccess, m.config.AccessTokenExpiry)
}

// GenerateRefreshToken issues the long-lived token accepted only by
// RefreshAccessToken.
func (m *JWTManager) GenerateRefreshToken(userID, username, role string) (string, error) {
	return m.sign(userID, username, role, tokenTypeRefresh, m.config.RefreshTokenExpiry)
}

func (m *JWTManager) sign(userID, username, role, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:    userID,
		Username:  username,
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.config.SecretKey))
}

// ValidateToken checks the signature, expiry, and signing method, and
// returns the claims of either token type.
func (m *JWTManager) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return []byte(m.config.SecretKey), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// GetAccessTokenExpiry reports the access-token lifetime in seconds,
// for token-exchange responses.
func (m *JWTManager) GetAccessTokenExpiry() int64 {
	return int64(m.config.AccessTokenExpiry.Seconds())
}

// RefreshAccessToken exchanges a valid refresh token for a fresh access
// token. An access token is rejected here even if otherwise valid.
func (m *JWTManager) RefreshAccessToken(refreshToken string) (string, *Claims, error) {
	claims, err := m.ValidateToken(refreshToken)
	if err != nil {
		return "", nil, err
	}
	if claims.TokenType == tokenTypeAccess {
		return "", nil, ErrWrongTokenType
	}

	accessToken, err := m.GenerateAccessToken(claims.UserID, claims.Username, claims.Role)
	if err != nil {
		return "", nil, err
	}
	return accessToken, claims, nil
}
