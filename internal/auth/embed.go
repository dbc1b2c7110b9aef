package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const embedTokenTTL = 30 * 24 * time.Hour

var ErrEmbedDisabled = errors.New("embed tokens are not configured")

// EmbedClaims identify the bot a public widget talks to and whose owner pays for it.
type EmbedClaims struct {
	OwnerID string `json:"own"`
	jwt.RegisteredClaims
}

// EmbedSigner mints and checks HS256 widget tokens. A zero secret leaves it disabled.
type EmbedSigner struct {
	secret []byte
	now    func() time.Time
}

func NewEmbedSigner(secret string) *EmbedSigner {
	return &EmbedSigner{secret: []byte(secret), now: time.Now}
}

func (s *EmbedSigner) Enabled() bool { return len(s.secret) > 0 }

func (s *EmbedSigner) Mint(botID, ownerID string) (string, error) {
	if !s.Enabled() {
		return "", ErrEmbedDisabled
	}
	now := s.now()
	claims := EmbedClaims{
		OwnerID: ownerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   botID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(embedTokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify returns the bot id and owner id carried by a valid token.
func (s *EmbedSigner) Verify(tokenString string) (botID, ownerID string, err error) {
	if !s.Enabled() {
		return "", "", ErrEmbedDisabled
	}
	var claims EmbedClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", "", err
	}
	if !token.Valid || claims.Subject == "" || claims.OwnerID == "" {
		return "", "", fmt.Errorf("invalid token")
	}
	return claims.Subject, claims.OwnerID, nil
}
