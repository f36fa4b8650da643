package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	HasherBcrypt   = "bcrypt"
	HasherArgon2id = "argon2id"
)

// Hasher 是口令哈希原语。Compare 只返回是否匹配，格式错误的哈希视为不匹配。
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(secret, hash string) bool
}

// NewHasher 按名称选择新哈希的算法；校验时按哈希前缀自动识别，
// 切换算法后旧用户仍可登录。
func NewHasher(name string) (Hasher, error) {
	switch name {
	case "", HasherBcrypt:
		return multiHasher{primary: BcryptHasher{Cost: bcrypt.DefaultCost}}, nil
	case HasherArgon2id:
		return multiHasher{primary: DefaultArgon2id}, nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}

type multiHasher struct {
	primary Hasher
}

func (m multiHasher) Hash(secret string) (string, error) { return m.primary.Hash(secret) }

func (m multiHasher) Compare(secret, hash string) bool {
	if strings.HasPrefix(hash, "$argon2id$") {
		return DefaultArgon2id.Compare(secret, hash)
	}
	return BcryptHasher{}.Compare(secret, hash)
}

type BcryptHasher struct {
	Cost int
}

func (b BcryptHasher) Hash(secret string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	return string(h), err
}

func (BcryptHasher) Compare(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// Argon2idHasher 以 PHC 字符串格式保存参数、盐与摘要。
type Argon2idHasher struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  int
	KeyLength   uint32
}

var DefaultArgon2id = Argon2idHasher{Memory: 64 * 1024, Iterations: 3, Parallelism: 2, SaltLength: 16, KeyLength: 32}

// 从已存哈希中解析出的参数上限，超出即视为损坏的哈希。
const (
	maxArgonMemory     = 1 << 20 // KiB，即 1 GiB
	maxArgonIterations = 16
	maxArgonKeyLength  = 128
)

func (a Argon2idHasher) Hash(secret string) (string, error) {
	salt := make([]byte, a.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, a.Iterations, a.Memory, a.Parallelism, a.KeyLength)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, a.Memory, a.Iterations, a.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key)), nil
}

func (Argon2idHasher) Compare(secret, hash string) bool {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return false
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false
	}
	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return false
	}
	if parallelism == 0 || iterations == 0 || iterations > maxArgonIterations ||
		memory < 8*uint32(parallelism) || memory > maxArgonMemory {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 || len(want) > maxArgonKeyLength {
		return false
	}
	got := argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(want, got) == 1
}
