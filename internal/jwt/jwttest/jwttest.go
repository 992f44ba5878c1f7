// Package jwttest 为测试签发与 im-web 格式一致的 Access Token。
package jwttest

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// AccessToken 以 HS256 签发 subject 的 Access Token，expire 为负时得到已过期的 Token
func AccessToken(t testing.TB, secret, issuer, subject string, expire time.Duration) string {
	t.Helper()

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":        subject,
		"iss":        issuer,
		"iat":        now.Unix(),
		"exp":        now.Add(expire).Unix(),
		"token_type": "access",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}
