package realtime

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/studysync/coordination-platform/internal/wire"
	"github.com/studysync/coordination-platform/pkg/logger"
)

func TestRefreshDispatcher_ChatMessage_Hits_Exactly_Its_Domains(t *testing.T) {
	req := require.New(t)
	d := NewRefreshDispatcher(logger.NewNop())

	calls := make(map[string]int)
	d.RegisterRefresh(func() { calls["chat"]++ }, DomainChat)
	d.RegisterRefresh(func() { calls["messages"]++ }, DomainMessages)
	d.RegisterRefresh(func() { calls["chat-list"]++ }, DomainChatList)
	d.RegisterRefresh(func() { calls["notifications"]++ }, DomainNotifications)
	d.RegisterRefresh(func() { calls["groups"]++ }, DomainGroups)

	d.OnWireMessage(wire.Message{Type: wire.TypeChatMessage})

	req.Equal(1, calls["chat"])
	req.Equal(1, calls["messages"])
	req.Equal(1, calls["chat-list"])
	req.Zero(calls["notifications"])
	req.Zero(calls["groups"])
}

func TestRefreshDispatcher_MultiDomain_Registration_Fires_Once(t *testing.T) {
	req := require.New(t)
	d := NewRefreshDispatcher(logger.NewNop())

	var calls int
	// One consumer interested in two domains that the same message maps
	// to must still be told to refresh only once.
	d.RegisterRefresh(func() { calls++ }, DomainChat, DomainMessages)

	d.OnWireMessage(wire.Message{Type: wire.TypeChatMessage})

	req.Equal(1, calls)
}

func TestRefreshDispatcher_Unregister_Stops_Callbacks(t *testing.T) {
	req := require.New(t)
	d := NewRefreshDispatcher(logger.NewNop())

	var calls int
	unregister := d.RegisterRefresh(func() { calls++ }, DomainNotifications)

	d.OnWireMessage(wire.Message{Type: wire.TypePartnerRequest})
	unregister()
	d.OnWireMessage(wire.Message{Type: wire.TypePartnerRequest})

	req.Equal(1, calls)
}

func TestRefreshDispatcher_Unknown_Type_Is_Ignored(t *testing.T) {
	req := require.New(t)
	d := NewRefreshDispatcher(logger.NewNop())

	var calls int
	d.RegisterRefresh(func() { calls++ }, DomainChat, DomainNotifications, DomainGroups)

	req.NotPanics(func() {
		d.OnWireMessage(wire.Message{Type: "presence_ping"})
	})
	req.Zero(calls)
}

func TestRefreshDispatcher_PartnerRequestAccepted_Maps_To_Buddy_List(t *testing.T) {
	req := require.New(t)
	d := NewRefreshDispatcher(logger.NewNop())

	calls := make(map[string]int)
	d.RegisterRefresh(func() { calls["notifications"]++ }, DomainNotifications)
	d.RegisterRefresh(func() { calls["buddy-list"]++ }, DomainBuddyList)
	d.RegisterRefresh(func() { calls["sessions"]++ }, DomainSessions)

	d.OnWireMessage(wire.Message{Type: wire.TypePartnerRequestAccepted})

	req.Equal(1, calls["notifications"])
	req.Equal(1, calls["buddy-list"])
	req.Zero(calls["sessions"])
}
