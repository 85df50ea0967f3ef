// Package auth authenticates the trading desk operator. There is a single
// operator identity, configured by a bcrypt password hash; successful login
// issues a short-lived HS256 token.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const operatorSubject = "operator"

var ErrInvalidCredentials = errors.New("invalid credentials")

type Service struct {
	issuer       string
	secret       []byte
	ttl          time.Duration
	operatorHash []byte
}

func NewService(issuer string, secret []byte, ttl time.Duration, operatorHash string) *Service {
	return &Service{issuer: issuer, secret: secret, ttl: ttl, operatorHash: []byte(operatorHash)}
}

func (s *Service) Login(password string) (string, error) {
	if len(s.operatorHash) == 0 {
		return "", errors.New("operator login is not configured")
	}
	if err := bcrypt.CompareHashAndPassword(s.operatorHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.signToken()
}

func (s *Service) signToken() (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   operatorSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) ParseToken(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("invalid signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || !parsed.Valid {
		return "", errors.New("invalid token")
	}
	if claims.Issuer != s.issuer {
		return "", errors.New("invalid issuer")
	}
	if claims.Subject != operatorSubject {
		return "", errors.New("invalid subject")
	}
	return claims.Subject, nil
}
