package safety

import (
	"synapse/core/types"
)

type edge struct {
	to types.Address
	ts int64
}

// paymentGraph is the bounded edge log behind circular-payment detection:
// sender → [(recipient, timestamp)], pruned by the configured time window.
// Callers hold the protocol lock.
type paymentGraph struct {
	edges map[types.Address][]edge
	// everPaid outlives the pruned window; it backs the weaker
	// "recipient has previously paid sender" advisory signal.
	everPaid map[[2]types.Address]bool
}

func newPaymentGraph() *paymentGraph {
	return &paymentGraph{
		edges:    make(map[types.Address][]edge),
		everPaid: make(map[[2]types.Address]bool),
	}
}

func (g *paymentGraph) record(sender, recipient types.Address, ts int64) {
	g.edges[sender] = append(g.edges[sender], edge{to: recipient, ts: ts})
	g.everPaid[[2]types.Address{sender, recipient}] = true
}

func (g *paymentGraph) prune(now, windowMs int64) {
	for sender, edges := range g.edges {
		kept := edges[:0]
		for _, e := range edges {
			if now-e.ts <= windowMs {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(g.edges, sender)
			continue
		}
		g.edges[sender] = kept
	}
}

// findCycle searches breadth-first from the proposed recipient over outgoing
// edges; a path back to the sender within maxHops means the new payment would
// close a cycle. The returned trace runs recipient → … → sender.
func (g *paymentGraph) findCycle(sender, recipient types.Address, maxHops int) []types.Address {
	if maxHops <= 0 {
		return nil
	}
	type node struct {
		addr types.Address
		prev int
	}
	queue := []node{{addr: recipient, prev: -1}}
	depth := map[types.Address]int{recipient: 0}
	for i := 0; i < len(queue); i++ {
		current := queue[i]
		if depth[current.addr] >= maxHops {
			continue
		}
		for _, e := range g.edges[current.addr] {
			if e.to == sender {
				// Reconstruct recipient → … → sender.
				path := []types.Address{sender}
				for at := i; at >= 0; at = queue[at].prev {
					path = append(path, queue[at].addr)
				}
				for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
					path[l], path[r] = path[r], path[l]
				}
				return path
			}
			if _, seen := depth[e.to]; seen {
				continue
			}
			depth[e.to] = depth[current.addr] + 1
			queue = append(queue, node{addr: e.to, prev: i})
		}
	}
	return nil
}

// hasPaid reports whether from has ever paid to, including outside the
// pruning window.
func (g *paymentGraph) hasPaid(from, to types.Address) bool {
	return g.everPaid[[2]types.Address{from, to}]
}
