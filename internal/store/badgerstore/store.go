// Package badgerstore 是基于 BadgerDB 的嵌入式 store 实现，适合单机部署。
//
// 键布局：
//
//	user:id:{id}              -> JSON 用户
//	user:email:{email}        -> 用户 id（唯一索引）
//	msg:{lo}|{hi}:{seq:020d}  -> JSON 消息，lo/hi 为排序后的两端 id
//
// 消息键中零填充的序号保证前缀扫描即为追加顺序。
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pairchat/internal/models"
	"pairchat/internal/store"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	userIDPrefix    = "user:id:"
	userEmailPrefix = "user:email:"
	msgPrefix       = "msg:"
	seqKey          = "seq:msg"
	seqBandwidth    = 128
	conflictRetries = 3
)

// userRecord 是落盘的用户格式。models.User 的 JSON 形式不含密码哈希，
// 这里单独保存。
type userRecord struct {
	models.User
	PasswordHash string `json:"password_hash"`
}

func encodeUser(u *models.User) ([]byte, error) {
	return json.Marshal(userRecord{User: *u, PasswordHash: u.PasswordHash})
}

func decodeUser(val []byte, u *models.User) error {
	var rec userRecord
	if err := json.Unmarshal(val, &rec); err != nil {
		return err
	}
	*u = rec.User
	u.PasswordHash = rec.PasswordHash
	return nil
}

type Store struct {
	db  *badger.DB
	seq *badger.Sequence
}

var _ store.Store = (*Store)(nil)

// Open 打开 path 下的 Badger 数据库；path 为空时使用内存模式。
func Open(path string, logger zerolog.Logger) (*Store, error) {
	opts := badger.DefaultOptions(path).WithLogger(zerologAdapter{l: logger})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(seqKey), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

func (s *Store) Close() error {
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return err
	}
	return s.db.Close()
}

func (s *Store) CreateUser(_ context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	data, err := encodeUser(u)
	if err != nil {
		return fmt.Errorf("marshal user: %w", err)
	}
	emailKey := []byte(userEmailPrefix + u.Email)
	return s.update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey); err == nil {
			return store.ErrDuplicateEmail
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(emailKey, []byte(u.ID)); err != nil {
			return err
		}
		return txn.Set([]byte(userIDPrefix+u.ID), data)
	})
}

func (s *Store) UserByID(_ context.Context, id string) (*models.User, error) {
	var u models.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getUser(txn, []byte(userIDPrefix+id), &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UserByEmail(_ context.Context, email string) (*models.User, error) {
	var u models.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(userEmailPrefix + email))
		if err != nil {
			return notFound(err)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getUser(txn, []byte(userIDPrefix+string(id)), &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) ListUsersExcept(_ context.Context, id string) ([]models.User, error) {
	users := make([]models.User, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userIDPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var u models.User
			if err := it.Item().Value(func(val []byte) error { return decodeUser(val, &u) }); err != nil {
				return err
			}
			users = append(users, u)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Filter(users, func(u models.User, _ int) bool { return u.ID != id }), nil
}

func (s *Store) UpdateAvatar(_ context.Context, id, url string) (*models.User, error) {
	var u models.User
	key := []byte(userIDPrefix + id)
	err := s.update(func(txn *badger.Txn) error {
		if err := getUser(txn, key, &u); err != nil {
			return err
		}
		u.AvatarURL = url
		u.UpdatedAt = time.Now().UTC()
		data, err := encodeUser(&u)
		if err != nil {
			return err
		}
		return txn.Set(key, data)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) Append(_ context.Context, m *models.Message) error {
	if err := store.CheckMessage(m); err != nil {
		return err
	}
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("next sequence: %w", err)
	}
	row := *m
	// Badger 序列从 0 开始，+1 使 Seq 与 SQL 自增主键一致。
	row.Seq = n + 1
	row.ID = uuid.NewString()
	row.CreatedAt = time.Now().UTC()
	data, err := json.Marshal(&row)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	key := []byte(fmt.Sprintf("%s%s:%020d", msgPrefix, pairKey(row.SenderID, row.ReceiverID), row.Seq))
	if err := s.update(func(txn *badger.Txn) error { return txn.Set(key, data) }); err != nil {
		return err
	}
	*m = row
	return nil
}

func (s *Store) ListBetween(_ context.Context, a, b string) ([]models.Message, error) {
	msgs := make([]models.Message, 0)
	prefix := []byte(msgPrefix + pairKey(a, b) + ":")
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m models.Message
			if err := it.Item().Value(func(val []byte) error { return json.Unmarshal(val, &m) }); err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// update 在事务冲突时重试，冲突后的重试会看到对方已提交的写入。
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "|" + b
}

func getUser(txn *badger.Txn, key []byte, u *models.User) error {
	item, err := txn.Get(key)
	if err != nil {
		return notFound(err)
	}
	return item.Value(func(val []byte) error { return decodeUser(val, u) })
}

func notFound(err error) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return store.ErrNotFound
	}
	return err
}

// zerologAdapter 把 Badger 的内部日志接到 zerolog。
type zerologAdapter struct {
	l zerolog.Logger
}

func (z zerologAdapter) Errorf(f string, v ...interface{})   { z.l.Error().Msgf(f, v...) }
func (z zerologAdapter) Warningf(f string, v ...interface{}) { z.l.Warn().Msgf(f, v...) }
func (z zerologAdapter) Infof(f string, v ...interface{})    { z.l.Debug().Msgf(f, v...) }
func (z zerologAdapter) Debugf(f string, v ...interface{})   { z.l.Trace().Msgf(f, v...) }
