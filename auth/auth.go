package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"debateserver/models"

	"github.com/golang-jwt/jwt/v4"
)

// JwtKey は署名鍵。起動時に SetKey で設定する
var JwtKey = []byte("")

var ErrInvalidToken = errors.New("invalid token")

func SetKey(key string) {
	JwtKey = []byte(key)
}

// BearerToken は Authorization ヘッダーからトークンを取り出す
func BearerToken(header string) string {
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// ParseToken はトークンを検証してクレームを返す。HS256 以外の署名は受け付けない
func ParseToken(tokenString string) (*models.MyClaims, error) {
	if tokenString == "" {
		return nil, ErrInvalidToken
	}
	claims := &models.MyClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return JwtKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// GenerateToken はユーザーのトークンを発行する。テストと運用ツールから使う
func GenerateToken(userID uint, username string, ttl time.Duration) (string, error) {
	claims := &models.MyClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(JwtKey)
}
