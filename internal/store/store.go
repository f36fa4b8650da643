// Package store 定义用户与消息的持久化契约，
// 由 gormstore（Postgres/SQLite）与 badgerstore（嵌入式 KV）两种后端实现。
package store

import (
	"context"
	"errors"
	"unicode/utf8"

	"pairchat/internal/models"
)

// MaxTextLength 是消息文本的最大字符数（按 rune 计）。
const MaxTextLength = 1000

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateEmail = errors.New("email already exists")
	ErrInvalidMessage = errors.New("invalid message")
)

// UserStore 独占用户记录；邮箱按原样精确匹配（区分大小写）。
type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	UserByID(ctx context.Context, id string) (*models.User, error)
	UserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsersExcept(ctx context.Context, id string) ([]models.User, error)
	UpdateAvatar(ctx context.Context, id, url string) (*models.User, error)
}

// MessageStore 独占消息记录。
type MessageStore interface {
	// Append 校验消息并分配 ID、Seq、CreatedAt；要么完整落盘，要么什么都不写。
	Append(ctx context.Context, m *models.Message) error
	// ListBetween 返回 a 与 b 之间双向的全部消息，按追加顺序升序。
	ListBetween(ctx context.Context, a, b string) ([]models.Message, error)
}

type Store interface {
	UserStore
	MessageStore
	Close() error
}

// CheckMessage 是各后端共用的消息体校验。
func CheckMessage(m *models.Message) error {
	if m.SenderID == "" || m.ReceiverID == "" {
		return ErrInvalidMessage
	}
	// 只有文本与图片都缺失才算空消息；纯空白文本照常接受。
	if m.Text == "" && m.Image == "" {
		return ErrInvalidMessage
	}
	if utf8.RuneCountInString(m.Text) > MaxTextLength {
		return ErrInvalidMessage
	}
	return nil
}
