package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"
)

const operatorSubject = "operator"

var (
	errBadCredentials = errors.New("invalid password or one-time code")
	errMissingToken   = errors.New("missing bearer token")
)

// authenticator checks operator credentials and issues HS256 tokens.
type authenticator struct {
	secret       []byte
	passwordHash []byte
	totpSecret   string
	ttl          time.Duration
	now          func() time.Time
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
	Code     string `json:"code"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// login verifies bcrypt password and, when configured, the TOTP code.
func (a *authenticator) login(req loginRequest) (*loginResponse, error) {
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.Password)); err != nil {
		return nil, errBadCredentials
	}
	if a.totpSecret != "" && !totp.Validate(strings.TrimSpace(req.Code), a.totpSecret) {
		return nil, errBadCredentials
	}

	now := a.now()
	exp := now.Add(a.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   operatorSubject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	})
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}
	return &loginResponse{Token: signed, ExpiresAt: exp}, nil
}

func (a *authenticator) verify(raw string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil {
		return err
	}
	if claims.Subject != operatorSubject {
		return errors.New("unexpected token subject")
	}
	return nil
}

// middleware accepts "Authorization: Bearer <jwt>" or ?token= for websocket clients.
func (a *authenticator) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.Query("token")
		if header := c.GetHeader("Authorization"); strings.HasPrefix(header, "Bearer ") {
			raw = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errMissingToken.Error()})
			return
		}
		if err := a.verify(raw); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
