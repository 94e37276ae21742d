package core_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/substratelabs/recall/core"
)

func TestIdentityKeys(t *testing.T) {
	id := core.Identity{Channel: "discord", Sender: "111"}

	assert.Equal(t, "discord_111", id.CacheKey())
	assert.Equal(t, "discord_conv:111", id.StorageKey())
	assert.Equal(t, "discord/111", id.String())
}

func TestIdentityIsolation(t *testing.T) {
	a := core.Identity{Channel: "discord", Sender: "alice"}
	b := core.Identity{Channel: "discord", Sender: "bob"}
	assert.NotEqual(t, a.CacheKey(), b.CacheKey())
	assert.NotEqual(t, a.StorageKey(), b.StorageKey())

	// Same sender on a different channel is a different conversation.
	c := core.Identity{Channel: "telegram", Sender: "alice"}
	assert.NotEqual(t, a.CacheKey(), c.CacheKey())
	assert.NotEqual(t, a.StorageKey(), c.StorageKey())
}

func TestIdentityValidate(t *testing.T) {
	assert.NoError(t, core.Identity{Channel: "discord", Sender: "1"}.Validate())
	assert.ErrorIs(t, core.Identity{Sender: "1"}.Validate(), core.ErrInvalidIdentity)
	assert.ErrorIs(t, core.Identity{Channel: "discord"}.Validate(), core.ErrInvalidIdentity)
	assert.ErrorIs(t, core.Identity{}.Validate(), core.ErrInvalidIdentity)
}

func TestRoleIsValid(t *testing.T) {
	assert.True(t, core.RoleUser.IsValid())
	assert.True(t, core.RoleAssistant.IsValid())
	assert.False(t, core.Role("system").IsValid())
}

func TestTurnJSONRoundTrip(t *testing.T) {
	turn := core.NewUserTurn("hello there")
	require.False(t, turn.Timestamp.IsZero())

	data, err := json.Marshal([]core.Turn{turn, core.NewAssistantTurn("hi")})
	require.NoError(t, err)

	var turns []core.Turn
	require.NoError(t, json.Unmarshal(data, &turns))
	require.Len(t, turns, 2)
	assert.Equal(t, core.RoleUser, turns[0].Role)
	assert.Equal(t, "hello there", turns[0].Text)
	assert.Equal(t, core.RoleAssistant, turns[1].Role)
}
