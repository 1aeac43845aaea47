package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token string `json:"token"`
}

type ctxKey struct{}

func withUser(ctx context.Context, sub string) context.Context {
	return context.WithValue(ctx, ctxKey{}, sub)
}

// UserFrom returns the subject of the bearer token that authorized the request.
func UserFrom(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(ctxKey{}).(string)
	return sub, ok
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.config.JWTSecret == "" || s.config.AdminPasswordHash == "" {
		http.Error(w, "Login disabled", http.StatusNotFound)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Username != s.config.AdminUser ||
		bcrypt.CompareHashAndPassword([]byte(s.config.AdminPasswordHash), []byte(req.Password)) != nil {
		s.log.Warn("login rejected", "user", req.Username, "remote", r.RemoteAddr)
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	token, err := s.issueToken(req.Username, time.Now())
	if err != nil {
		http.Error(w, "Failed to generate token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

func (s *Server) issueToken(sub string, now time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"iat": now.Unix(),
		"exp": now.Add(tokenTTL).Unix(),
	})
	return token.SignedString([]byte(s.config.JWTSecret))
}

func (s *Server) verifyBearer(r *http.Request) (string, error) {
	authHeader := r.Header.Get("Authorization")
	tokenString, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || tokenString == "" {
		// browsers cannot set headers on websocket upgrades
		tokenString = r.URL.Query().Get("token")
	}
	if tokenString == "" {
		return "", errors.New("missing bearer token")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", errors.New("invalid token")
	}
	return token.Claims.GetSubject()
}
