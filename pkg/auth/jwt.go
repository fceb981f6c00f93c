package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

type Claims struct {
	Sub   string `json:"sub"`
	Role  string `json:"role"`
	Email string `json:"email"`
	Typ   string `json:"typ"`
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 tokens with separate access and refresh secrets.
type Signer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewSigner(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Signer {
	if refreshSecret == "" {
		refreshSecret = accessSecret
	}
	return &Signer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (s *Signer) CreateAccessToken(p Principal, email string) (string, error) {
	return s.sign(p, email, TokenAccess, s.accessTTL, s.accessSecret)
}

func (s *Signer) CreateRefreshToken(p Principal, email string) (string, error) {
	return s.sign(p, email, TokenRefresh, s.refreshTTL, s.refreshSecret)
}

func (s *Signer) sign(p Principal, email, typ string, ttl time.Duration, secret []byte) (string, error) {
	claims := Claims{Sub: p.ID, Role: string(p.Role), Email: email, Typ: typ, RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// ParseAccess validates an access token and resolves its principal.
func (s *Signer) ParseAccess(tokenStr string) (Principal, error) {
	c, err := parseValidate(tokenStr, s.accessSecret)
	if err != nil {
		return Principal{}, err
	}
	if c.Typ != "" && c.Typ != TokenAccess {
		return Principal{}, errors.New("not an access token")
	}
	return NewPrincipal(c.Role, c.Sub)
}

func (s *Signer) ParseRefresh(tokenStr string) (Principal, error) {
	c, err := parseValidate(tokenStr, s.refreshSecret)
	if err != nil {
		return Principal{}, err
	}
	if c.Typ != TokenRefresh {
		return Principal{}, errors.New("not a refresh token")
	}
	return NewPrincipal(c.Role, c.Sub)
}

func parseValidate(tokenStr string, secret []byte) (*Claims, error) {
	t, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	c, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, errors.New("invalid token")
	}
	return c, nil
}
