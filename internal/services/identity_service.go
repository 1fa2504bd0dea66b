package services

import (
	apperrors "autorag-api/internal/pkg/errors"

	"github.com/golang-jwt/jwt"
)

// IdentityService turns a bearer token into a user id.
type IdentityService interface {
	VerifyToken(tokenString string) (string, error)
}

type jwtIdentityService struct {
	jwtSecret []byte
}

func NewIdentityService(jwtSecret string) IdentityService {
	return &jwtIdentityService{jwtSecret: []byte(jwtSecret)}
}

// VerifyToken accepts HMAC-signed tokens carrying the user in "sub" or
// "user_id".
func (s *jwtIdentityService) VerifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperrors.ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", apperrors.ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperrors.ErrInvalidToken
	}

	for _, key := range []string{"sub", "user_id"} {
		if userID, ok := claims[key].(string); ok && userID != "" {
			return userID, nil
		}
	}
	return "", apperrors.ErrInvalidToken
}
