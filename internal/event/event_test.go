package event

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKnown(t *testing.T) {
	req := require.New(t)

	req.True(Known(KindSessionCreated))
	req.True(Known(KindChatMessageSent))
	req.False(Known(Kind("session:exploded")))
	req.False(Known(Kind("")))
}

func TestNew_Assigns_Timestamp_And_Applies_Options(t *testing.T) {
	req := require.New(t)

	e := New(KindGroupMemberJoined,
		map[string]any{"group_name": "Calculus crew"},
		WithSubject("u3"),
		WithGroup("g1"),
		WithConversation("conv-42"),
		WithMetadata(map[string]any{"source": "api"}),
	)

	req.Equal(KindGroupMemberJoined, e.Kind)
	req.False(e.Timestamp.IsZero())
	req.Equal("u3", e.SubjectUserID)
	req.Equal("g1", e.GroupID)
	req.Equal("conv-42", e.ConversationID)
	req.Equal("api", e.Metadata["source"])
}

func TestProgress_Accepts_Number_Variants(t *testing.T) {
	req := require.New(t)

	p, ok := New(KindModuleCompleted, map[string]any{"progress": 100.0}).Progress()
	req.True(ok)
	req.Equal(100.0, p)

	p, ok = New(KindModuleCompleted, map[string]any{"progress": 80}).Progress()
	req.True(ok)
	req.Equal(80.0, p)

	_, ok = New(KindModuleCompleted, map[string]any{"progress": "done"}).Progress()
	req.False(ok)

	_, ok = New(KindModuleCompleted, nil).Progress()
	req.False(ok)
}

func TestParticipants_Accepts_Decoded_JSON_Arrays(t *testing.T) {
	req := require.New(t)

	e := New(KindSessionCreated, map[string]any{
		"participants": []any{"u1", "u2"},
	})
	req.Equal([]string{"u1", "u2"}, e.Participants())

	e = New(KindSessionCreated, map[string]any{
		"participants": []string{"u1", "u2"},
	})
	req.Equal([]string{"u1", "u2"}, e.Participants())

	req.Nil(New(KindSessionCreated, nil).Participants())
}
