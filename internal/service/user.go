package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pairchat/internal/auth"
	"pairchat/internal/blob"
	"pairchat/internal/models"
	"pairchat/internal/store"
	"pairchat/internal/ws"

	"github.com/samber/lo"
)

// UserService 封装注册、登录、头像与联系人列表。
type UserService struct {
	users    store.UserStore
	hasher   auth.Hasher
	codec    *auth.Codec
	blobs    blob.Uploader
	registry *ws.Registry
}

func NewUserService(users store.UserStore, hasher auth.Hasher, codec *auth.Codec, blobs blob.Uploader, registry *ws.Registry) *UserService {
	return &UserService{users: users, hasher: hasher, codec: codec, blobs: blobs, registry: registry}
}

// Session 是注册或登录成功后的结果，User 已去掉密码哈希。
type Session struct {
	User      models.User
	Token     string
	ExpiresAt time.Time
}

// Peer 是联系人列表中的一项。
type Peer struct {
	models.User
	Online bool `json:"online"`
}

// Signup 创建用户并签发会话。邮箱冲突时返回 ErrDuplicateIdentity 且不写入任何数据。
func (s *UserService) Signup(ctx context.Context, fullName, email, password string) (*Session, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &models.User{Email: email, FullName: fullName, PasswordHash: hash}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, ErrDuplicateIdentity
		}
		return nil, err
	}
	return s.issue(u)
}

// Login 校验邮箱与口令；用户不存在与口令错误返回同一个错误。
func (s *UserService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredential
		}
		return nil, err
	}
	if !s.hasher.Compare(password, u.PasswordHash) {
		return nil, ErrInvalidCredential
	}
	return s.issue(u)
}

func (s *UserService) issue(u *models.User) (*Session, error) {
	token, exp, err := s.codec.Issue(u.ID)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{User: u.Public(), Token: token, ExpiresAt: exp}, nil
}

// UpdateAvatar 经上传协作方转存图片后写回用户记录。
func (s *UserService) UpdateAvatar(ctx context.Context, userID, ref string) (*models.User, error) {
	url, err := s.blobs.Upload(ctx, ref)
	if err != nil {
		return nil, err
	}
	u, err := s.users.UpdateAvatar(ctx, userID, url)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	pub := u.Public()
	return &pub, nil
}

// Roster 返回除自己以外的所有用户及其在线状态。
func (s *UserService) Roster(ctx context.Context, userID string) ([]Peer, error) {
	users, err := s.users.ListUsersExcept(ctx, userID)
	if err != nil {
		return nil, err
	}
	return lo.Map(users, func(u models.User, _ int) Peer {
		_, online := s.registry.Lookup(u.ID)
		return Peer{User: u.Public(), Online: online}
	}), nil
}
