package cmap

// MemAdaptor is an in-memory Adaptor used by tests and by embedders
// that drive cmap state directly (rather than through a real corosync
// IPC channel). It implements the reload barrier of spec.md §4.6:
// while ReloadInProgress is true, writes accumulate without firing
// listeners; the transition to false fires at most one coalesced
// OnConfigNodeList, and only if the nodes or the config version changed.
type MemAdaptor struct {
	current   Snapshot
	pending   Snapshot
	listeners []Listener
}

// NewMemAdaptor returns an adaptor seeded with an empty snapshot.
func NewMemAdaptor() *MemAdaptor {
	return &MemAdaptor{}
}

// Subscribe implements Adaptor.
func (a *MemAdaptor) Subscribe(l Listener) { a.listeners = append(a.listeners, l) }

// Current implements Adaptor.
func (a *MemAdaptor) Current() Snapshot { return a.current }

// Fd implements Adaptor: the in-memory adaptor has no fd of its own.
func (a *MemAdaptor) Fd() int { return -1 }

// DispatchAll implements Adaptor: a no-op, since Set/BeginReload/
// EndReload apply synchronously.
func (a *MemAdaptor) DispatchAll() {}

// BeginReload sets the reload-in-progress flag, suppressing event
// emission until EndReload. Safe to call repeatedly.
func (a *MemAdaptor) BeginReload() {
	if a.pending.ReloadInProgress {
		return
	}
	a.pending = a.current
	a.pending.ReloadInProgress = true
}

// SetNodes stages a new node list. If a reload is in progress the
// change is buffered in pending state; otherwise it applies and fires
// immediately, as a single-key edit outside a reload barrier would.
func (a *MemAdaptor) SetNodes(nodes []NodeEntry) {
	if a.pending.ReloadInProgress {
		a.pending.Nodes = nodes
		return
	}
	a.current.Nodes = nodes
	a.notify()
}

// SetConfigVersion stages totem.config_version the same way as SetNodes.
func (a *MemAdaptor) SetConfigVersion(v uint64) {
	if a.pending.ReloadInProgress {
		a.pending.ConfigVersion = v
		return
	}
	a.current.ConfigVersion = v
	a.notify()
}

// EndReload clears the reload-in-progress flag and, if anything
// changed while it was set, fires exactly one coalesced event.
func (a *MemAdaptor) EndReload() {
	if !a.pending.ReloadInProgress {
		return
	}
	a.pending.ReloadInProgress = false
	changed := !sameNodes(a.current.Nodes, a.pending.Nodes) || a.current.ConfigVersion != a.pending.ConfigVersion
	a.current = a.pending
	a.pending = Snapshot{}
	if changed {
		a.notify()
	}
}

func (a *MemAdaptor) notify() {
	snap := a.current
	for _, l := range a.listeners {
		l.OnConfigNodeList(snap)
	}
}

func sameNodes(a, b []NodeEntry) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			// NodeID is a pointer; compare dereferenced value too.
			if (a[i].NodeID == nil) != (b[i].NodeID == nil) {
				return false
			}
			if a[i].NodeID != nil && b[i].NodeID != nil && *a[i].NodeID != *b[i].NodeID {
				return false
			}
			if a[i].Ring0Addr != b[i].Ring0Addr || a[i].DataCenterID != b[i].DataCenterID {
				return false
			}
		}
	}
	return true
}
