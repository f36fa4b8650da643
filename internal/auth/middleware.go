package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pairchat/internal/models"
	"pairchat/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// ErrIdentityNotFound 表示 token 有效但用户已不存在，客户端应区别于重新登录。
var ErrIdentityNotFound = errors.New("identity not found")

const (
	ctxUserKey   = "user"
	ctxUserIDKey = "userID"
)

type UserLookup interface {
	UserByID(ctx context.Context, id string) (*models.User, error)
}

// Authenticator 是所有需要身份的路由的唯一入口。
type Authenticator struct {
	codec *Codec
	users UserLookup
}

func NewAuthenticator(codec *Codec, users UserLookup) *Authenticator {
	return &Authenticator{codec: codec, users: users}
}

// Resolve 把 token 解析为去掉密码哈希的用户。
func (a *Authenticator) Resolve(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}
	id, err := a.codec.Verify(token)
	if err != nil {
		return nil, err
	}
	u, err := a.users.UserByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

func (a *Authenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := a.Resolve(c.Request.Context(), TokenFromRequest(c))
		switch {
		case err == nil:
		case errors.Is(err, ErrUnauthenticated):
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		case errors.Is(err, ErrIdentityNotFound):
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		default:
			log.Error().Err(err).Msg("resolve session")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
			return
		}
		c.Set(ctxUserIDKey, u.ID)
		c.Set(ctxUserKey, *u)
		c.Next()
	}
}

// TokenFromRequest 优先读取会话 cookie，其次是 Authorization: Bearer。
func TokenFromRequest(c *gin.Context) string {
	if v, err := c.Cookie(CookieName); err == nil && v != "" {
		return v
	}
	authz := c.GetHeader("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

func GetUserID(c *gin.Context) string {
	if v, ok := c.Get(ctxUserIDKey); ok {
		if id, ok2 := v.(string); ok2 {
			return id
		}
	}
	return ""
}

func CurrentUser(c *gin.Context) (models.User, bool) {
	if v, ok := c.Get(ctxUserKey); ok {
		if u, ok2 := v.(models.User); ok2 {
			return u, true
		}
	}
	return models.User{}, false
}
