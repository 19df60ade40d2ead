package realtime

import (
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/studysync/coordination-platform/internal/wire"
	"github.com/studysync/coordination-platform/pkg/logger"
	"github.com/studysync/coordination-platform/pkg/metrics"
)

// Refresh domains a UI consumer can register interest in.
const (
	DomainChat          = "chat"
	DomainMessages      = "messages"
	DomainChatList      = "chat-list"
	DomainNotifications = "notifications"
	DomainBuddyList     = "buddy-list"
	DomainGroups        = "groups"
	DomainGroupDetails  = "group-details"
	DomainSessions      = "sessions"
)

// refreshDomains maps each wire message type to the data domains needing
// a re-fetch when it arrives.
var refreshDomains = map[string][]string{
	wire.TypeChatMessage:            {DomainChat, DomainMessages, DomainChatList},
	wire.TypePartnerRequest:         {DomainNotifications},
	wire.TypePartnerRequestAccepted: {DomainNotifications, DomainBuddyList},
	wire.TypePartnerRequestRejected: {DomainNotifications, DomainBuddyList},
	wire.TypeSessionReminder:        {DomainNotifications},
	wire.TypeGroupUpdate:            {DomainGroups, DomainGroupDetails},
	wire.TypeNotification:           {DomainNotifications},
}

type refreshRegistration struct {
	domains []string
	fn      func()
}

// RefreshDispatcher decouples transport events from UI re-render
// triggers: inbound wire messages become refresh signals for named data
// domains.
type RefreshDispatcher struct {
	mu            sync.Mutex
	nextID        uint64
	registrations map[uint64]refreshRegistration
	logger        *logger.Logger
}

// NewRefreshDispatcher creates an empty dispatcher.
func NewRefreshDispatcher(log *logger.Logger) *RefreshDispatcher {
	return &RefreshDispatcher{
		registrations: make(map[uint64]refreshRegistration),
		logger:        log,
	}
}

// RegisterRefresh binds a callback to one or more domains and returns
// its unregister function. A callback registered under several domains
// is invoked at most once per inbound message. After unregistering, the
// dispatcher retains no reference to the callback.
func (d *RefreshDispatcher) RegisterRefresh(fn func(), domains ...string) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.registrations[id] = refreshRegistration{domains: domains, fn: fn}
	d.mu.Unlock()

	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.registrations, id)
	}
}

// OnWireMessage maps an inbound message to its refresh domains and
// invokes each interested callback exactly once. Wire this to
// Manager.OnMessage.
func (d *RefreshDispatcher) OnWireMessage(msg wire.Message) {
	domains, known := refreshDomains[msg.Type]
	if !known {
		d.logger.Debug("ignoring unrecognized wire message type",
			zap.String("type", msg.Type),
		)
		return
	}

	d.mu.Lock()
	var targets []func()
	for _, reg := range d.registrations {
		if lo.Some(domains, reg.domains) {
			targets = append(targets, reg.fn)
		}
	}
	d.mu.Unlock()

	for _, domain := range domains {
		metrics.RefreshFanouts.WithLabelValues(domain).Inc()
	}
	for _, fn := range targets {
		fn()
	}
}
