package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/anicoll/homehub/pkg/hasher"
)

const tokenSubject = "homehub"

var errUnauthorized = errors.New("unauthorized")

type tokenRequest struct {
	Password string `json:"password"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *server) postToken(w http.ResponseWriter, r *http.Request) {
	if s.auth.JWTSecret == "" || s.auth.PasswordHash == "" {
		handleError(w, http.StatusNotFound, errors.New("authentication is not configured"))
		return
	}
	req, err := unmarshalPayload[tokenRequest](r)
	if err != nil {
		handleError(w, http.StatusBadRequest, err)
		return
	}
	if !hasher.PasswordCorrect(req.Password, s.auth.PasswordHash) {
		handleError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}

	token, expires, err := s.issueToken(time.Now())
	if err != nil {
		handleError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expires})
}

func (s *server) issueToken(now time.Time) (string, time.Time, error) {
	jti, err := hasher.GenerateToken(16)
	if err != nil {
		return "", time.Time{}, err
	}
	expires := now.Add(s.auth.TokenTTL)
	claims := jwt.RegisteredClaims{
		Subject:   tokenSubject,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.auth.JWTSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

func (s *server) verifyToken(raw string) error {
	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(*jwt.Token) (any, error) {
		return []byte(s.auth.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithSubject(tokenSubject))
	if err != nil {
		return fmt.Errorf("%w: %w", errUnauthorized, err)
	}
	if !token.Valid {
		return errUnauthorized
	}
	return nil
}

// authMiddleware requires a valid bearer token when a JWT secret is
// configured. Websocket clients may pass the token as ?token=.
func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth.JWTSecret == "" {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			raw = r.URL.Query().Get("token")
		}
		if raw == "" {
			handleError(w, http.StatusUnauthorized, errUnauthorized)
			return
		}
		if err := s.verifyToken(raw); err != nil {
			handleError(w, http.StatusUnauthorized, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}
