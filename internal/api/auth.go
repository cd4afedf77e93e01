package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	userIdClaim = "user-id"
	expClaim    = "exp"

	tokenCookieKey = "token"
	tokenQueryKey  = "token"

	defaultJwtExpiration = 24 * time.Hour
)

type contextKey string

const userIdKey contextKey = "user-id"

func WithUserId(ctx context.Context, userId uuid.UUID) context.Context {
	return context.WithValue(ctx, userIdKey, userId)
}

func UserId(ctx context.Context) (uuid.UUID, bool) {
	userId, ok := ctx.Value(userIdKey).(uuid.UUID)
	return userId, ok
}

// requestToken finds the session token, checking the cookie first, then
// the Authorization header, then the query string. Browsers cannot set
// headers on websocket dials, which is why the query string fallback
// exists.
func requestToken(r *http.Request) (string, bool) {
	if cookie, err := r.Cookie(tokenCookieKey); err == nil && cookie.Value != "" {
		return cookie.Value, true
	}

	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer "), true
	}

	if token := r.URL.Query().Get(tokenQueryKey); token != "" {
		return token, true
	}

	return "", false
}

func (s *MatchnightApp) extractUserIdFromToken(tokenString string) (uuid.UUID, error) {
	token, err := s.verifyToken(tokenString)
	if err != nil {
		return uuid.Nil, fmt.Errorf("verify token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid token claims")
	}

	idStr, ok := claims[userIdClaim].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("invalid user id claim")
	}

	userId, err := uuid.Parse(idStr)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse user id claim: %w", err)
	}

	return userId, nil
}

func (s *MatchnightApp) createJwtForSession(userId uuid.UUID, exp time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		userIdClaim: userId.String(),
		expClaim:    time.Now().Add(exp).Unix(),
	})

	return token.SignedString(s.signingKey)
}

func (s *MatchnightApp) verifyToken(tokenString string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.signingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return token, nil
}

func createJwtCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func hashPassword(passwd string) (string, error) {
	passwdHash, err := bcrypt.GenerateFromPassword([]byte(passwd), bcrypt.DefaultCost)
	return string(passwdHash), err
}

func verifyPassword(passwdHash, passwd string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(passwdHash), []byte(passwd))
	return err == nil
}
