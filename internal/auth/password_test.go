package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastArgon = Argon2idHasher{Memory: 8 * 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func TestHashers(t *testing.T) {
	hashers := map[string]Hasher{
		"bcrypt":   BcryptHasher{Cost: 4},
		"argon2id": fastArgon,
	}
	for name, h := range hashers {
		t.Run(name, func(t *testing.T) {
			hash, err := h.Hash("testpassword123")
			require.NoError(t, err)
			require.NotEmpty(t, hash)

			again, err := h.Hash("testpassword123")
			require.NoError(t, err)
			assert.NotEqual(t, hash, again, "salted hashes must differ")

			tests := []struct {
				name     string
				hash     string
				password string
				want     bool
			}{
				{"correct password", hash, "testpassword123", true},
				{"wrong password", hash, "wrongpassword", false},
				{"empty password", hash, "", false},
				{"invalid hash", "invalidhash", "testpassword123", false},
			}
			for _, tt := range tests {
				t.Run(tt.name, func(t *testing.T) {
					assert.Equal(t, tt.want, h.Compare(tt.password, tt.hash))
				})
			}
		})
	}
}

func TestNewHasher(t *testing.T) {
	_, err := NewHasher("md5")
	assert.Error(t, err)

	bc, err := NewHasher("")
	require.NoError(t, err)
	ar, err := NewHasher(HasherArgon2id)
	require.NoError(t, err)

	bcHash, err := BcryptHasher{Cost: 4}.Hash("secret-1")
	require.NoError(t, err)
	arHash, err := fastArgon.Hash("secret-2")
	require.NoError(t, err)

	// 两种 hasher 都能校验对方格式的哈希
	for _, h := range []Hasher{bc, ar} {
		assert.True(t, h.Compare("secret-1", bcHash))
		assert.True(t, h.Compare("secret-2", arHash))
		assert.False(t, h.Compare("secret-2", bcHash))
	}
}

func TestArgon2id_RejectsCorruptHash(t *testing.T) {
	hash, err := fastArgon.Hash("pw")
	require.NoError(t, err)

	for _, bad := range []string{
		"$argon2id$v=19$m=8192,t=1,p=1$!!!$abc",
		"$argon2id$v=1$m=8192,t=1,p=1$c2FsdA$abc",
		"$argon2i$" + hash[len("$argon2id$"):],
		"",
	} {
		assert.False(t, fastArgon.Compare("pw", bad), bad)
	}
}

func TestArgon2id_RejectsUnsafeParameters(t *testing.T) {
	hash, err := fastArgon.Hash("pw")
	require.NoError(t, err)
	parts := strings.Split(hash, "$")
	require.Len(t, parts, 6)
	withParams := func(params string) string {
		return strings.Join([]string{"", parts[1], parts[2], params, parts[4], parts[5]}, "$")
	}

	require.True(t, fastArgon.Compare("pw", withParams("m=8192,t=1,p=1")))
	for _, params := range []string{
		"m=8192,t=1,p=0",
		"m=8192,t=0,p=1",
		"m=8192,t=1000000,p=1",
		"m=4294967295,t=1,p=1",
		"m=4,t=1,p=1",
	} {
		assert.NotPanics(t, func() {
			assert.False(t, fastArgon.Compare("pw", withParams(params)), params)
		})
	}
}
