package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTTL 是会话 token 的默认有效期。
const SessionTTL = 7 * 24 * time.Hour

var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrInvalidSignature = fmt.Errorf("%w: invalid signature", ErrUnauthenticated)
	ErrMalformed        = fmt.Errorf("%w: malformed token", ErrUnauthenticated)
	ErrExpired          = fmt.Errorf("%w: token expired", ErrUnauthenticated)
)

type Claims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Codec 签发与校验无状态会话 token（HS256）。
// 服务端不保存会话，因此无法主动吊销：登出只清除客户端 cookie，
// 已泄露的 token 在自然过期前仍然有效。
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCodec(secret string, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	return &Codec{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock 替换时钟，供测试推进时间。
func (c *Codec) WithClock(now func() time.Time) *Codec {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Codec) TTL() time.Duration { return c.ttl }

func (c *Codec) Issue(userID string) (string, time.Time, error) {
	now := c.now()
	exp := jwt.NewNumericDate(now.Add(c.ttl))
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: exp,
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp.Time, nil
}

// Verify 返回 token 中的用户 id。失败时返回 ErrInvalidSignature、
// ErrMalformed 或 ErrExpired，三者都满足 errors.Is(err, ErrUnauthenticated)。
// 过期判断由这里完成：当前时间严格晚于 exp 才算过期，恰好等于 exp 时仍然有效。
func (c *Codec) Verify(token string) (string, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return "", ErrInvalidSignature
	default:
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if claims.UserID == "" || claims.ExpiresAt == nil {
		return "", ErrMalformed
	}
	if c.now().After(claims.ExpiresAt.Time) {
		return "", ErrExpired
	}
	return claims.UserID, nil
}
