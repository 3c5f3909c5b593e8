package peers

import (
	"sort"
	"sync"
)

// PeerSet is the set of addresses a node gossips with. It never contains the
// node's own advertised address. All methods are safe for concurrent use.
type PeerSet struct {
	sync.RWMutex

	self  string
	addrs map[string]struct{}
}

// NewPeerSet creates an empty PeerSet for a node advertising self.
func NewPeerSet(self string) *PeerSet {
	return &PeerSet{
		self:  self,
		addrs: make(map[string]struct{}),
	}
}

// Add inserts addr and reports whether it was new. Empty addresses and the
// node's own address are refused.
func (ps *PeerSet) Add(addr string) bool {
	if addr == "" || addr == ps.self {
		return false
	}

	ps.Lock()
	defer ps.Unlock()

	if _, ok := ps.addrs[addr]; ok {
		return false
	}
	ps.addrs[addr] = struct{}{}
	return true
}

// Merge adds every address and returns the ones that were new, in the order
// they were given.
func (ps *PeerSet) Merge(addrs []string) []string {
	added := []string{}
	for _, a := range addrs {
		if ps.Add(a) {
			added = append(added, a)
		}
	}
	return added
}

// Remove deletes addr and reports whether it was present.
func (ps *PeerSet) Remove(addr string) bool {
	ps.Lock()
	defer ps.Unlock()

	if _, ok := ps.addrs[addr]; !ok {
		return false
	}
	delete(ps.addrs, addr)
	return true
}

// Contains reports whether addr is in the set.
func (ps *PeerSet) Contains(addr string) bool {
	ps.RLock()
	defer ps.RUnlock()

	_, ok := ps.addrs[addr]
	return ok
}

// Addresses returns a sorted snapshot of the set.
func (ps *PeerSet) Addresses() []string {
	ps.RLock()
	defer ps.RUnlock()

	res := make([]string, 0, len(ps.addrs))
	for a := range ps.addrs {
		res = append(res, a)
	}
	sort.Strings(res)
	return res
}

// Peers returns the snapshot as Peer entries, ready to be written to
// peers.json.
func (ps *PeerSet) Peers() []*Peer {
	addrs := ps.Addresses()
	res := make([]*Peer, 0, len(addrs))
	for _, a := range addrs {
		res = append(res, NewPeer(a, ""))
	}
	return res
}

// Len returns the number of peers.
func (ps *PeerSet) Len() int {
	ps.RLock()
	defer ps.RUnlock()

	return len(ps.addrs)
}
