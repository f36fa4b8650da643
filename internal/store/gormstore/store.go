// Package gormstore 是基于 gorm 的 store 实现，支持 Postgres 与 SQLite。
package gormstore

import (
	"context"
	"errors"
	"time"

	"pairchat/internal/models"
	"pairchat/internal/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("email = ?", u.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return store.ErrDuplicateEmail
		}
		return tx.Create(u).Error
	})
	// 并发注册时 count 检查可能都通过，由唯一索引兜底。
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return store.ErrDuplicateEmail
	}
	return err
}

func (s *Store) UserByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&u).Error; err != nil {
		return nil, translate(err)
	}
	return &u, nil
}

func (s *Store) ListUsersExcept(ctx context.Context, id string) ([]models.User, error) {
	users := make([]models.User, 0)
	if err := s.db.WithContext(ctx).Where("id <> ?", id).Order("full_name asc, id asc").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateAvatar(ctx context.Context, id, url string) (*models.User, error) {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).
		Updates(map[string]interface{}{"avatar_url": url, "updated_at": time.Now()})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, store.ErrNotFound
	}
	return s.UserByID(ctx, id)
}

func (s *Store) Append(ctx context.Context, m *models.Message) error {
	if err := store.CheckMessage(m); err != nil {
		return err
	}
	row := *m
	row.Seq = 0
	row.ID = uuid.NewString()
	row.CreatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	*m = row
	return nil
}

func (s *Store) ListBetween(ctx context.Context, a, b string) ([]models.Message, error) {
	msgs := make([]models.Message, 0)
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Order("seq asc").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}
