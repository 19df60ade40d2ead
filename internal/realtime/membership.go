package realtime

import (
	"sort"
	"sync"
	"time"
)

type membership struct {
	seq      uint64
	joinedAt time.Time
}

// MembershipRegistry remembers which groups the connection should belong
// to. It is a set: two callers wanting the same logical group share one
// underlying join. Membership survives transport loss and is replayed on
// restore; only an explicit Stop clears it.
type MembershipRegistry struct {
	mu      sync.Mutex
	nextSeq uint64
	groups  map[string]membership
}

// NewMembershipRegistry creates an empty registry.
func NewMembershipRegistry() *MembershipRegistry {
	return &MembershipRegistry{groups: make(map[string]membership)}
}

// Add remembers a group. Returns false if it was already remembered.
func (r *MembershipRegistry) Add(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[name]; ok {
		return false
	}
	r.nextSeq++
	r.groups[name] = membership{seq: r.nextSeq, joinedAt: time.Now()}
	return true
}

// Remove forgets a group. Returns false if it was not remembered.
func (r *MembershipRegistry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.groups[name]; !ok {
		return false
	}
	delete(r.groups, name)
	return true
}

// Has reports whether a group is remembered.
func (r *MembershipRegistry) Has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.groups[name]
	return ok
}

// JoinedAt returns when a group was first requested.
func (r *MembershipRegistry) JoinedAt(name string) (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.groups[name]
	return m.joinedAt, ok
}

// Names returns remembered groups in join order, so replay after a
// reconnect is deterministic.
func (r *MembershipRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.groups[names[i]].seq < r.groups[names[j]].seq
	})
	return names
}

// Clear forgets every group.
func (r *MembershipRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.groups = make(map[string]membership)
}

// Len returns the number of remembered groups.
func (r *MembershipRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}
