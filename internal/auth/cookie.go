package auth

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CookieName 是保存会话 token 的 cookie 名。
const CookieName = "jwt"

// SetSessionCookie 写入 http-only、SameSite=Strict 的会话 cookie；
// 非 dev 环境强制 Secure。
func SetSessionCookie(c *gin.Context, token string, ttl time.Duration, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CookieName, token, int(ttl/time.Second), "/", "", secure, true)
}

// ClearSessionCookie 让客户端丢弃 token，服务端不做吊销。
func ClearSessionCookie(c *gin.Context, secure bool) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CookieName, "", -1, "/", "", secure, true)
}
