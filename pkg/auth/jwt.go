// Package auth issues and verifies the HS256 access tokens that carry a
// requester's user id and role, and hashes user passwords with bcrypt.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/shashiranjanraj/kashvi-shop/config"
)

const (
	issuer = "kshop"
	leeway = 30 * time.Second
)

// ErrIncompleteClaims rejects a correctly signed token without a user or role.
var ErrIncompleteClaims = errors.New("auth: token is missing user or role")

// Claims is the access-token payload. Subject mirrors UserID.
type Claims struct {
	UserID uint   `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken signs an access token valid for config.TokenTTL.
func GenerateToken(userID uint, role string) (string, error) {
	now := time.Now()
	return jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(config.TokenTTL())),
		},
	}).SignedString([]byte(config.JWTSecret()))
}

// ValidateToken accepts only HS256 tokens from this issuer that name both
// a user and a role.
func ValidateToken(raw string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (interface{}, error) { return []byte(config.JWTSecret()), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(leeway),
	)
	if err != nil {
		return nil, err
	}
	if claims.UserID == 0 || claims.Role == "" {
		return nil, ErrIncompleteClaims
	}
	return &claims, nil
}

func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	return string(hash), err
}

func CheckPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
