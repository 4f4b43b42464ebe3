package jwt

import (
	"errors"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidSignature is returned for tokens whose signature, algorithm or
	// structure does not verify under the given secret.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrExpired is returned for correctly signed tokens past their exp.
	ErrExpired = errors.New("token expired")
)

// Sign stamps claims with the current time and ttl and returns an HS256 token.
func Sign(claims Stampable, secret []byte, ttl time.Duration) (string, error) {
	return signAt(claims, secret, ttl, time.Now())
}

func signAt(claims Stampable, secret []byte, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("empty signing secret")
	}
	if ttl <= 0 {
		return "", errors.New("non-positive token ttl")
	}
	claims.Stamp(now, ttl)
	return gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks the HS256 signature and expiry of token and decodes it into claims.
// It fails with ErrExpired or ErrInvalidSignature.
func Verify(token string, secret []byte, claims gjwt.Claims, opts ...gjwt.ParserOption) error {
	options := append([]gjwt.ParserOption{
		gjwt.WithValidMethods([]string{gjwt.SigningMethodHS256.Alg()}),
		gjwt.WithExpirationRequired(),
		gjwt.WithIssuedAt(),
	}, opts...)

	parsed, err := gjwt.NewParser(options...).ParseWithClaims(token, claims, func(*gjwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, gjwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrInvalidSignature
	}
	if !parsed.Valid {
		return ErrInvalidSignature
	}
	return nil
}
