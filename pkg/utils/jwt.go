package utils

import (
	"fmt"
	"time"

	"github.com/projectelevate-biz/tag-sub001/pkg/models"

	"github.com/golang-jwt/jwt/v5"
)

const sessionTokenType = "session"

// JWTService signs and verifies identity-provider session tokens (HS256)
type JWTService struct {
	secretKey []byte
	ttl       time.Duration
	now       func() time.Time
}

// NewJWTService 创建JWT服务
func NewJWTService(secretKey string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &JWTService{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		now:       time.Now,
	}
}

// IssueSessionToken signs a session token for user. Production tokens come
// from the identity provider with the same secret; this is used by tooling and tests.
func (j *JWTService) IssueSessionToken(user *models.User) (string, error) {
	now := j.now()
	claims := &models.TokenClaims{
		UserID: user.ID,
		Email:  user.Email,
		Name:   user.Name,
		Image:  user.Image,
		Type:   sessionTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ValidateSessionToken 验证令牌；签名算法固定为 HS256，且必须带过期时间
func (j *JWTService) ValidateSessionToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}
	keyFunc := func(*jwt.Token) (interface{}, error) { return j.secretKey, nil }
	_, err := jwt.ParseWithClaims(tokenString, claims, keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(j.now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.Type != sessionTokenType {
		return nil, fmt.Errorf("invalid token type: %s", claims.Type)
	}
	if claims.UserID == "" {
		claims.UserID = claims.Subject
	}
	if claims.UserID == "" || claims.Email == "" {
		return nil, fmt.Errorf("token is missing identity claims")
	}
	return claims, nil
}
