package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMembershipRegistry_Is_A_Set(t *testing.T) {
	req := require.New(t)
	r := NewMembershipRegistry()

	req.True(r.Add("user-u1"))
	req.False(r.Add("user-u1"))
	req.Equal(1, r.Len())
}

func TestMembershipRegistry_Names_Preserve_Join_Order(t *testing.T) {
	req := require.New(t)
	r := NewMembershipRegistry()

	r.Add("user-u1")
	r.Add("conv-42")
	r.Add("partner_7_42")

	req.Equal([]string{"user-u1", "conv-42", "partner_7_42"}, r.Names())
}

func TestMembershipRegistry_Remove(t *testing.T) {
	req := require.New(t)
	r := NewMembershipRegistry()

	r.Add("conv-42")
	req.True(r.Remove("conv-42"))
	req.False(r.Remove("conv-42"))
	req.False(r.Has("conv-42"))
}

func TestMembershipRegistry_Clear(t *testing.T) {
	req := require.New(t)
	r := NewMembershipRegistry()

	r.Add("user-u1")
	r.Add("conv-42")
	r.Clear()

	req.Zero(r.Len())
	req.Empty(r.Names())
}

func TestMembershipRegistry_JoinedAt(t *testing.T) {
	req := require.New(t)
	r := NewMembershipRegistry()

	r.Add("user-u1")
	joinedAt, ok := r.JoinedAt("user-u1")
	req.True(ok)
	req.False(joinedAt.IsZero())

	_, ok = r.JoinedAt("conv-42")
	req.False(ok)
}
