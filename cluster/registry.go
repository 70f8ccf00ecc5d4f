// Package cluster implements the arbiter-server's cluster registry:
// every connected session is grouped by cluster name, sharing a single
// Algorithm instance and enforcing the two invariants spec.md §4
// requires of a cluster — one decision algorithm, and no two sessions
// claiming the same non-zero node_id.
package cluster

import (
	"errors"
	"fmt"
	"sync"

	"github.com/luxfi/qdevice/algorithm"
	"github.com/luxfi/qdevice/status"
	"github.com/luxfi/qdevice/utils/set"
	"github.com/luxfi/qdevice/wire"
)

var (
	ErrAlgorithmMismatch = errors.New("cluster: decision algorithm does not match cluster's configured algorithm")
	ErrDuplicateNodeID   = errors.New("cluster: node_id already in use in this cluster")
	ErrUnknownAlgorithm  = errors.New("cluster: unknown decision algorithm")
)

// Session is the server's view of one connected client: everything an
// Algorithm needs (algorithm.Session) plus the ability to accept an
// out-of-band vote-info push outside the request/reply flow.
type Session interface {
	algorithm.Session
	SendVoteInfo(vote wire.ResultVote) error
}

// Cluster groups every session sharing a name and decision algorithm,
// and owns the single Algorithm instance dispatched for all of them
// (spec.md §4.5: one instance per cluster, never per session).
type Cluster struct {
	name     string
	algoName string
	algo     algorithm.Algorithm

	mu       sync.Mutex
	sessions []Session
	nodeIDs  set.Set[uint32]
}

func (c *Cluster) Name() string                   { return c.name }
func (c *Cluster) AlgorithmName() string           { return c.algoName }
func (c *Cluster) Algorithm() algorithm.Algorithm { return c.algo }

// Sessions satisfies algorithm.Cluster.
func (c *Cluster) Sessions() []algorithm.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]algorithm.Session, len(c.sessions))
	for i, s := range c.sessions {
		out[i] = s
	}
	return out
}

// SendVoteInfo satisfies algorithm.Cluster.
func (c *Cluster) SendVoteInfo(target algorithm.Session, vote wire.ResultVote) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range c.sessions {
		if s == target {
			return s.SendVoteInfo(vote)
		}
	}
	return fmt.Errorf("cluster %q: send vote-info to session not in cluster", c.name)
}

// NodeCount returns the number of sessions currently joined.
func (c *Cluster) NodeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// Registry tracks every active Cluster by name, created lazily on the
// first session to join it and torn down once the last session leaves.
type Registry struct {
	mu       sync.Mutex
	clusters map[string]*Cluster
}

func NewRegistry() *Registry {
	return &Registry{clusters: make(map[string]*Cluster)}
}

// Join adds s to the named cluster, creating it (and its Algorithm
// instance) on first use.
func (r *Registry) Join(clusterName, algoName string, s Session) (*Cluster, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.clusters[clusterName]
	if !ok {
		algo, ok := algorithm.New(algoName)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, algoName)
		}
		c = &Cluster{name: clusterName, algoName: algoName, algo: algo}
		r.clusters[clusterName] = c
	} else if c.algoName != algoName {
		return nil, fmt.Errorf("%w: cluster %q uses %q, session requested %q",
			ErrAlgorithmMismatch, clusterName, c.algoName, algoName)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if id := s.NodeID(); id != 0 {
		if c.nodeIDs.Contains(id) {
			return nil, fmt.Errorf("%w: node_id %d in cluster %q", ErrDuplicateNodeID, id, clusterName)
		}
		c.nodeIDs.Add(id)
	}
	c.sessions = append(c.sessions, s)

	if code := c.algo.Init(c, s); code != status.OK {
		// Init's code is ignored: it is not returned to the caller and
		// a non-OK code does not unwind the join.
		_ = code
	}
	return c, nil
}

// Leave removes s from its cluster, invokes the algorithm's
// ClientDisconnect hook, and prunes the cluster once it's empty.
func (r *Registry) Leave(clusterName string, s Session, serverGoingDown bool) {
	r.mu.Lock()
	c, ok := r.clusters[clusterName]
	if !ok {
		r.mu.Unlock()
		return
	}

	c.mu.Lock()
	for i, existing := range c.sessions {
		if existing == s {
			c.sessions = append(c.sessions[:i], c.sessions[i+1:]...)
			if id := existing.NodeID(); id != 0 {
				c.nodeIDs.Remove(id)
			}
			break
		}
	}
	empty := len(c.sessions) == 0
	c.mu.Unlock()

	if empty {
		delete(r.clusters, clusterName)
	}
	r.mu.Unlock()

	c.algo.ClientDisconnect(c, s, serverGoingDown)
}

// Lookup returns the named cluster, if it currently has any sessions.
func (r *Registry) Lookup(clusterName string) (*Cluster, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.clusters[clusterName]
	return c, ok
}
