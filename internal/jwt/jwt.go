// Package jwt 校验 im-web 签发的 Access Token，解析出调用方用户 ID。
package jwt

import (
	"errors"
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// TokenType Token 类型
type TokenType string

const (
	AccessToken  TokenType = "access"
	RefreshToken TokenType = "refresh"
)

// Claims JWT 声明，兼容 im-web 的数字 user_id 与标准 sub
type Claims struct {
	UserID    int64     `json:"user_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	TokenType TokenType `json:"token_type"`
	jwt.RegisteredClaims
}

// CallerID 调用方用户 ID，优先使用 sub
func (c *Claims) CallerID() string {
	if c.Subject != "" {
		return c.Subject
	}
	if c.UserID != 0 {
		return strconv.FormatInt(c.UserID, 10)
	}
	return ""
}

// Service JWT 服务
type Service struct {
	secretKey []byte
	issuer    string
}

// NewService 创建 JWT 服务，issuer 为空时不校验签发方
func NewService(secretKey, issuer string) *Service {
	return &Service{
		secretKey: []byte(secretKey),
		issuer:    issuer,
	}
}

// ValidateAccessToken 验证 Access Token
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.TokenType != AccessToken || claims.CallerID() == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
