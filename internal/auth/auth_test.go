package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/veritrack/internal/protocol"
)

const testAddr = protocol.Address("0x00000000000000000000000000000000000000a1")

func TestPasswordHash(t *testing.T) {
	a := New("secret", 60)
	hash, err := a.HashPassword("hunter22")
	require.NoError(t, err)
	assert.True(t, a.CheckPassword(hash, "hunter22"))
	assert.False(t, a.CheckPassword(hash, "hunter23"))
}

func TestToken_RoundTrip(t *testing.T) {
	a := New("secret", 60)
	tok, err := a.GenerateToken("acc1", "alice", testAddr)
	require.NoError(t, err)

	c, err := a.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "acc1", c.AccountID)
	assert.Equal(t, "alice", c.Handle)
	assert.Equal(t, testAddr, c.Address)
	assert.Equal(t, string(testAddr), c.Subject)
}

func TestToken_Rejections(t *testing.T) {
	a := New("secret", 60)

	t.Run("wrong secret", func(t *testing.T) {
		tok, err := New("other", 60).GenerateToken("acc1", "alice", testAddr)
		require.NoError(t, err)
		_, err = a.ValidateToken(tok)
		assert.Error(t, err)
	})

	t.Run("expired", func(t *testing.T) {
		old := New("secret", 1)
		old.now = func() time.Time { return time.Now().Add(-time.Hour) }
		tok, err := old.GenerateToken("acc1", "alice", testAddr)
		require.NoError(t, err)
		_, err = a.ValidateToken(tok)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("malformed address", func(t *testing.T) {
		tok, err := a.GenerateToken("acc1", "alice", "nope")
		require.NoError(t, err)
		_, err = a.ValidateToken(tok)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestExtractClaims(t *testing.T) {
	a := New("secret", 60)
	tok, err := a.GenerateToken("acc1", "alice", testAddr)
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/", nil)
	assert.Nil(t, a.ExtractClaims(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Nil(t, a.ExtractClaims(r))

	r.Header.Set("Authorization", "Bearer "+tok)
	c := a.ExtractClaims(r)
	require.NotNil(t, c)
	assert.Equal(t, testAddr, c.Address)
}

func TestRoles(t *testing.T) {
	r := NewRoles()
	other := protocol.Address("0x00000000000000000000000000000000000000b0")

	assert.False(t, r.HasRole(testAddr, protocol.RoleResolver))
	assert.True(t, r.Grant(testAddr, protocol.RoleResolver))
	assert.False(t, r.Grant(testAddr, protocol.RoleResolver))
	assert.True(t, r.Grant(other, protocol.RoleResolver))
	assert.True(t, r.HasRole(testAddr, protocol.RoleResolver))
	assert.False(t, r.HasRole(testAddr, protocol.RoleMinter))
	assert.Equal(t, []protocol.Address{testAddr, other}, r.Holders(protocol.RoleResolver))

	assert.True(t, r.Revoke(testAddr, protocol.RoleResolver))
	assert.False(t, r.Revoke(testAddr, protocol.RoleResolver))
	assert.False(t, r.HasRole(testAddr, protocol.RoleResolver))

	assert.True(t, ValidRole(protocol.RoleMinter))
	assert.False(t, ValidRole("admin"))
}

func TestNewAddress(t *testing.T) {
	a, err := NewAddress()
	require.NoError(t, err)
	b, err := NewAddress()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	parsed, err := protocol.ParseAddress(string(a))
	require.NoError(t, err)
	assert.Equal(t, a, parsed)
}
