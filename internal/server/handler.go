package server

import (
	"net/http"
	"strings"
	"time"

	"pairchat/internal/auth"
	"pairchat/internal/service"
	"pairchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	users        *service.UserService
	messages     *service.MessageService
	dispatch     *service.Dispatcher
	registry     *ws.Registry
	sessionTTL   time.Duration
	secureCookie bool
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		users:        deps.Users,
		messages:     deps.Messages,
		dispatch:     deps.Dispatcher,
		registry:     deps.Registry,
		sessionTTL:   deps.SessionTTL,
		secureCookie: deps.SecureCookie,
	}
}

type signupRequest struct {
	FullName string `json:"full_name" binding:"required,min=2,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6,max=20"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type profileRequest struct {
	Avatar string `json:"avatar" binding:"required,imageref"`
}

type sendRequest struct {
	Text  string `json:"text" binding:"max=1000"`
	Image string `json:"image" binding:"omitempty,imageref"`
}

// Signup 处理用户注册，成功后直接登录。
func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	sess, err := h.users.Signup(c.Request.Context(), strings.TrimSpace(req.FullName), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeError(c, "signup", err)
		return
	}
	auth.SetSessionCookie(c, sess.Token, h.sessionTTL, h.secureCookie)
	c.JSON(http.StatusCreated, sess.User)
}

// Login 处理用户登录。
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	sess, err := h.users.Login(c.Request.Context(), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		writeError(c, "login", err)
		return
	}
	auth.SetSessionCookie(c, sess.Token, h.sessionTTL, h.secureCookie)
	c.JSON(http.StatusOK, sess.User)
}

// Logout 只清除客户端 cookie，已签发的 token 在过期前仍然有效。
func (h *Handler) Logout(c *gin.Context) {
	auth.ClearSessionCookie(c, h.secureCookie)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *Handler) Check(c *gin.Context) {
	u, _ := auth.CurrentUser(c)
	c.JSON(http.StatusOK, u)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "avatar must be an image data url or http(s) url")
		return
	}
	u, err := h.users.UpdateAvatar(c.Request.Context(), auth.GetUserID(c), req.Avatar)
	if err != nil {
		writeError(c, "update profile", err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Roster 返回侧边栏联系人列表。
func (h *Handler) Roster(c *gin.Context) {
	peers, err := h.users.Roster(c.Request.Context(), auth.GetUserID(c))
	if err != nil {
		writeError(c, "roster", err)
		return
	}
	c.JSON(http.StatusOK, peers)
}

func (h *Handler) Online(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Online())
}

// History 返回与 :id 的双向消息记录。
func (h *Handler) History(c *gin.Context) {
	peer, ok := peerParam(c)
	if !ok {
		return
	}
	msgs, err := h.messages.History(c.Request.Context(), auth.GetUserID(c), peer)
	if err != nil {
		writeError(c, "history", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// Send 持久化消息并尝试实时推送给接收方。
func (h *Handler) Send(c *gin.Context) {
	peer, ok := peerParam(c)
	if !ok {
		return
	}
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	msg, err := h.dispatch.Send(c.Request.Context(), auth.GetUserID(c), peer, service.SendInput{Text: req.Text, Image: req.Image})
	if err != nil {
		writeError(c, "send message", err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func peerParam(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "invalid user id")
		return "", false
	}
	return id.String(), true
}

func health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}
