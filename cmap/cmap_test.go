package cmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	calls []Snapshot
}

func (r *recordingListener) OnConfigNodeList(s Snapshot) { r.calls = append(r.calls, s) }

func TestReloadCoalescingEmitsExactlyOnce(t *testing.T) {
	a := NewMemAdaptor()
	l := &recordingListener{}
	a.Subscribe(l)

	a.BeginReload()
	id1, id2, id3 := uint32(1), uint32(2), uint32(3)
	a.SetNodes([]NodeEntry{{NodeID: &id1}})
	a.SetNodes([]NodeEntry{{NodeID: &id1}, {NodeID: &id2}})
	a.SetNodes([]NodeEntry{{NodeID: &id1}, {NodeID: &id2}, {NodeID: &id3}})
	require.Empty(t, l.calls, "no events while reload is in progress")

	a.EndReload()
	require.Len(t, l.calls, 1, "exactly one coalesced event on reload=0")
	require.Len(t, l.calls[0].Nodes, 3)
}

func TestEndReloadNoOpWhenNothingChanged(t *testing.T) {
	a := NewMemAdaptor()
	l := &recordingListener{}
	a.Subscribe(l)

	a.BeginReload()
	a.EndReload()
	require.Empty(t, l.calls, "no real change means no emission")
}

func TestNonReloadEditFiresImmediately(t *testing.T) {
	a := NewMemAdaptor()
	l := &recordingListener{}
	a.Subscribe(l)

	id := uint32(1)
	a.SetNodes([]NodeEntry{{NodeID: &id}})
	require.Len(t, l.calls, 1)
}

func TestNodeIDFromAddressIPv4(t *testing.T) {
	id := NodeIDFromAddress("10.0.0.1", false)
	require.Equal(t, uint32(0x0A000001), id)
}

func TestNodeIDFromAddressClearsHighBit(t *testing.T) {
	withoutClear := NodeIDFromAddress("200.0.0.1", false)
	require.Equal(t, uint32(0xC8000001), withoutClear)

	withClear := NodeIDFromAddress("200.0.0.1", true)
	require.Equal(t, uint32(0x48000001), withClear)
	require.Equal(t, uint32(0), withClear>>31, "high bit must be cleared")
}

func TestNodeIDFromAddressNonIPv4Invalid(t *testing.T) {
	require.Equal(t, uint32(0), NodeIDFromAddress("not-an-address", false))
	require.Equal(t, uint32(0), NodeIDFromAddress("::1", false))
}

func TestResolveNodeIDPrefersExplicit(t *testing.T) {
	explicit := uint32(42)
	e := NodeEntry{NodeID: &explicit, Ring0Addr: "10.0.0.1"}
	require.Equal(t, uint32(42), ResolveNodeID(e, false))

	e2 := NodeEntry{Ring0Addr: "10.0.0.1"}
	require.Equal(t, uint32(0x0A000001), ResolveNodeID(e2, false))
}
