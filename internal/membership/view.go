// Package membership implements the bounded random peer view described in
// spec.md §4.2: a capacity-limited set of peers keyed by socket address,
// with uniform sampling and timeout-based expiry.
package membership

import (
	"math/rand"
	"net"
	"sync"
)

// MaxPeers is the hard ceiling on view capacity (spec.md §3).
const MaxPeers = 64

// AddResult reports the outcome of TouchOrAdd.
type AddResult int

const (
	Added AddResult = iota
	Refreshed
	RejectedFull
)

// Peer is one entry in the view: a socket address and its last contact time.
type Peer struct {
	Addr     *net.UDPAddr
	LastSeen int64 // unix millis
}

// View is a bounded, mutex-guarded set of peers. All operations are
// atomic under the view's own lock ("view_lock" in spec.md §5).
type View struct {
	mu    sync.Mutex
	peers []Peer
	limit int
	rng   *rand.Rand
}

// New creates a view with the given capacity, clamped to MaxPeers, and a
// deterministic RNG seeded as configured (spec.md's node-wide `seed`).
func New(limit int, seed int64) *View {
	if limit > MaxPeers {
		limit = MaxPeers
	}
	if limit <= 0 {
		limit = MaxPeers
	}
	return &View{
		limit: limit,
		rng:   rand.New(rand.NewSource(seed)),
	}
}

func sameAddr(a, b *net.UDPAddr) bool {
	return a.Port == b.Port && a.IP.Equal(b.IP)
}

// TouchOrAdd refreshes addr's last-seen time if already present, otherwise
// inserts it if there is room, otherwise rejects it. now is the caller's
// clock reading in unix millis.
func (v *View) TouchOrAdd(addr *net.UDPAddr, now int64) AddResult {
	v.mu.Lock()
	defer v.mu.Unlock()

	for i := range v.peers {
		if sameAddr(v.peers[i].Addr, addr) {
			v.peers[i].LastSeen = now
			return Refreshed
		}
	}

	if len(v.peers) >= v.limit {
		return RejectedFull
	}

	v.peers = append(v.peers, Peer{Addr: addr, LastSeen: now})
	return Added
}

// Count returns the current number of peers in the view.
func (v *View) Count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.peers)
}

// Sample returns up to k distinct peer addresses, excluding exclude (if
// non-nil), chosen uniformly without replacement via a Fisher-Yates
// shuffle of the index array so selection is not biased by a naive
// mod-based pick.
func (v *View) Sample(k int, exclude *net.UDPAddr) []*net.UDPAddr {
	v.mu.Lock()
	defer v.mu.Unlock()

	n := len(v.peers)
	if n == 0 || k <= 0 {
		return nil
	}

	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := v.rng.Intn(i + 1)
		indices[i], indices[j] = indices[j], indices[i]
	}

	out := make([]*net.UDPAddr, 0, k)
	for _, idx := range indices {
		if len(out) == k {
			break
		}
		candidate := v.peers[idx].Addr
		if exclude != nil && sameAddr(candidate, exclude) {
			continue
		}
		out = append(out, candidate)
	}
	return out
}

// Expire removes every peer whose LastSeen is older than
// now - timeoutSeconds*1000, compacting the backing array with
// swap-with-last so it stays contiguous.
func (v *View) Expire(now int64, timeoutSeconds int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cutoff := now - int64(timeoutSeconds)*1000
	for i := 0; i < len(v.peers); {
		if v.peers[i].LastSeen < cutoff {
			last := len(v.peers) - 1
			v.peers[i] = v.peers[last]
			v.peers = v.peers[:last]
			continue
		}
		i++
	}
}

// Snapshot returns a copy of the current peer list for read-only use
// (e.g. building a PEERS_LIST reply).
func (v *View) Snapshot() []Peer {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]Peer, len(v.peers))
	copy(out, v.peers)
	return out
}
