package mw

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
)

// DevOrigin 是前端开发服务器的默认地址，始终允许。
const DevOrigin = "http://localhost:5173"

// AllowedOrigins 合并配置的客户端地址与开发服务器地址，忽略空值。
func AllowedOrigins(clientURL string) []string {
	return lo.Uniq(lo.Compact([]string{clientURL, DevOrigin}))
}

// OriginAllowed 返回来源检查函数，同时用于 CORS 与 websocket 握手。
// 没有 Origin 头的请求（非浏览器客户端）与同源请求总是放行。
func OriginAllowed(allowed []string, dev bool) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || dev {
			return true
		}
		if lo.Contains(allowed, origin) {
			return true
		}
		u, err := url.Parse(origin)
		return err == nil && u.Host == r.Host
	}
}

// CORS 返回一个支持携带凭据的跨域中间件，dev 环境允许所有来源。
func CORS(allowed []string, dev bool) gin.HandlerFunc {
	check := OriginAllowed(allowed, dev)
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin == "" {
			c.Next()
			return
		}
		if check(c.Request) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
