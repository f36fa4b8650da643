package server

import (
	"errors"
	"net/http"

	"pairchat/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type errorMapping struct {
	err    error
	status int
	msg    string
}

// 顺序有意义：ErrInvalidImage 包裹了 ErrUploadFailed，必须先匹配。
var errorTable = []errorMapping{
	{service.ErrUnauthenticated, http.StatusUnauthorized, "unauthorized"},
	{service.ErrIdentityNotFound, http.StatusNotFound, "user not found"},
	{service.ErrDuplicateIdentity, http.StatusConflict, "email already exists"},
	{service.ErrInvalidCredential, http.StatusUnauthorized, "invalid credentials"},
	{service.ErrInvalidMessage, http.StatusBadRequest, "message must contain text or an image"},
	{service.ErrInvalidImage, http.StatusBadRequest, "invalid image"},
	{service.ErrUploadFailed, http.StatusBadGateway, "image upload failed"},
}

// writeError 把业务错误映射为 HTTP 响应，未知错误记录日志后返回 500。
func writeError(c *gin.Context, op string, err error) {
	for _, m := range errorTable {
		if errors.Is(err, m.err) {
			if m.status == http.StatusBadGateway {
				log.Error().Err(err).Str("op", op).Msg("upstream failure")
			}
			c.JSON(m.status, gin.H{"error": m.msg})
			return
		}
	}
	log.Error().Err(err).Str("op", op).Str("user_id", c.GetString("userID")).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
