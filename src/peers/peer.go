package peers

// Peer is an entry of the peers.json file. Only NetAddr is used to reach the
// peer; Moniker is a user-friendly label.
type Peer struct {
	NetAddr string
	Moniker string `json:",omitempty"`
}

// NewPeer creates a Peer.
func NewPeer(netAddr, moniker string) *Peer {
	return &Peer{
		NetAddr: netAddr,
		Moniker: moniker,
	}
}

// ExcludePeer is used to exclude a single address from a list of addresses.
// It returns the index of the excluded address, or -1.
func ExcludePeer(addrs []string, peer string) (int, []string) {
	index := -1
	others := make([]string, 0, len(addrs))
	for i, a := range addrs {
		if a != peer {
			others = append(others, a)
		} else {
			index = i
		}
	}
	return index, others
}

// Addresses returns the NetAddr of every Peer, skipping empty ones.
func Addresses(peers []*Peer) []string {
	res := make([]string, 0, len(peers))
	for _, p := range peers {
		if p != nil && p.NetAddr != "" {
			res = append(res, p.NetAddr)
		}
	}
	return res
}
