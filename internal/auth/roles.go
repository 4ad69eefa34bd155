package auth

import (
	"sort"
	"sync"

	"github.com/hazyhaar/veritrack/internal/protocol"
)

// Roles is the in-memory capability registry the engine consults through HasRole.
// Grants are replayed from the journal at start-up.
type Roles struct {
	mu     sync.RWMutex
	grants map[protocol.Role]map[protocol.Address]bool
}

func NewRoles() *Roles {
	return &Roles{grants: make(map[protocol.Role]map[protocol.Address]bool)}
}

func (r *Roles) HasRole(addr protocol.Address, role protocol.Role) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.grants[role][addr]
}

// Grant reports whether the grant changed anything.
func (r *Roles) Grant(addr protocol.Address, role protocol.Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.grants[role]
	if !ok {
		set = make(map[protocol.Address]bool)
		r.grants[role] = set
	}
	if set[addr] {
		return false
	}
	set[addr] = true
	return true
}

// Revoke reports whether addr held the role.
func (r *Roles) Revoke(addr protocol.Address, role protocol.Role) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.grants[role][addr] {
		return false
	}
	delete(r.grants[role], addr)
	return true
}

// Holders lists the addresses holding role, sorted.
func (r *Roles) Holders(role protocol.Role) []protocol.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Address, 0, len(r.grants[role]))
	for a := range r.grants[role] {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ValidRole reports whether role is one the system knows.
func ValidRole(role protocol.Role) bool {
	return role == protocol.RoleResolver || role == protocol.RoleMinter
}
