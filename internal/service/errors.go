package service

import (
	"errors"

	"pairchat/internal/auth"
	"pairchat/internal/blob"
	"pairchat/internal/store"
)

// 业务层错误分类，handler 根据错误类型映射到 HTTP 状态码。
// 未列出的错误一律视为内部错误。
var (
	ErrUnauthenticated   = auth.ErrUnauthenticated
	ErrIdentityNotFound  = auth.ErrIdentityNotFound
	ErrDuplicateIdentity = errors.New("email already exists")
	ErrInvalidCredential = errors.New("invalid credentials")
	ErrInvalidMessage    = store.ErrInvalidMessage
	ErrUploadFailed      = blob.ErrUploadFailed
	ErrInvalidImage      = blob.ErrInvalidImage
)
