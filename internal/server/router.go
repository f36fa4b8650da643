package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"pairchat/internal/auth"
	"pairchat/internal/blob"
	"pairchat/internal/metrics"
	"pairchat/internal/mw"
	"pairchat/internal/service"
	"pairchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps 是路由层需要的全部协作方，由 cmd/server 组装。
type Deps struct {
	Auth       *auth.Authenticator
	Users      *service.UserService
	Messages   *service.MessageService
	Dispatcher *service.Dispatcher
	Registry   *ws.Registry

	SessionTTL     time.Duration
	SecureCookie   bool
	Dev            bool
	AllowedOrigins []string
	// UploadDir 非空时以 /uploads 静态托管磁盘上传目录。
	UploadDir string
	// StaticDir 存在 index.html 时作为前端单页应用托管。
	StaticDir string
}

var registerOnce sync.Once

func registerValidators() {
	registerOnce.Do(func() {
		if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
			_ = v.RegisterValidation("imageref", func(fl validator.FieldLevel) bool {
				return blob.IsImageRef(fl.Field().String())
			})
		}
	})
}

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
// 返回的 stop 用于停止限速器的后台回收。
func SetupRouter(deps Deps) (r *gin.Engine, stop func()) {
	registerValidators()
	h := NewHandler(deps)

	generalRL, general := mw.RateLimit(mw.GeneralTier)
	authRL, authLimit := mw.RateLimit(mw.AuthTier)
	msgRL, msgLimit := mw.RateLimit(mw.MessagesTier)
	stop = func() {
		generalRL.Stop()
		authRL.Stop()
		msgRL.Stop()
	}

	r = gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(deps.AllowedOrigins, deps.Dev))

	// /healthz 供探针使用不限速；/health 与 /api 共享 general 配额。
	r.GET("/healthz", health)
	r.GET("/health", general, health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1", general)
	requireAuth := deps.Auth.Middleware()

	authAPI := api.Group("/auth")
	authAPI.POST("/signup", authLimit, h.Signup)
	authAPI.POST("/login", authLimit, h.Login)
	authAPI.POST("/logout", h.Logout)
	authAPI.GET("/check", requireAuth, h.Check)
	authAPI.PUT("/profile", authLimit, requireAuth, h.UpdateProfile)

	msgAPI := api.Group("/messages", msgLimit, requireAuth)
	msgAPI.GET("/users", h.Roster)
	msgAPI.GET("/online", h.Online)
	msgAPI.GET("/:id", h.History)
	msgAPI.POST("/send/:id", h.Send)

	r.GET("/ws", requireAuth, ws.Serve(deps.Registry, mw.OriginAllowed(deps.AllowedOrigins, deps.Dev)))

	if deps.UploadDir != "" {
		r.Static("/uploads", deps.UploadDir)
	}
	if deps.StaticDir != "" {
		if _, err := os.Stat(filepath.Join(deps.StaticDir, "index.html")); err == nil {
			r.NoRoute(spa(deps.StaticDir))
		}
	}
	return r, stop
}

// spa 托管前端构建产物，未知的无扩展名路径回落到 index.html。
func spa(distDir string) gin.HandlerFunc {
	index := filepath.Join(distDir, "index.html")
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
			c.Status(http.StatusNotFound)
			return
		}
		rel := strings.TrimPrefix(filepath.Clean("/"+c.Request.URL.Path), "/")
		if rel == "" {
			c.File(index)
			return
		}
		if strings.HasPrefix(rel, "api/") || rel == "ws" || strings.HasPrefix(rel, "uploads/") {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		target := filepath.Join(distDir, rel)
		if fi, err := os.Stat(target); err == nil && !fi.IsDir() {
			c.File(target)
			return
		}
		if strings.Contains(rel, ".") {
			c.Status(http.StatusNotFound)
			return
		}
		c.File(index)
	}
}
