package client

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"sort"

	"golang.org/x/crypto/hkdf"

	"github.com/luxfi/qdevice/wire"
)

// fingerprint derives a stable 32-byte digest of a node list, order
// independent over node_id (spec.md §3's node-list equality), using
// the same hkdf.New(sha256.New, ...) construction the teacher's
// qzmq.deriveKeys uses for key derivation. Reload-barrier coalescing
// (SPEC_FULL.md §6) compares successive fingerprints instead of the raw
// NodeList so a reorder-only diff never re-emits a redundant node-list
// message, while any membership change still produces a new digest.
func fingerprint(nodes wire.NodeList) [32]byte {
	sorted := make(wire.NodeList, len(nodes))
	copy(sorted, nodes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].NodeID < sorted[j].NodeID })

	ikm := make([]byte, 0, len(sorted)*9)
	for _, n := range sorted {
		var b [9]byte
		binary.BigEndian.PutUint32(b[0:4], n.NodeID)
		binary.BigEndian.PutUint32(b[4:8], n.DataCenterID)
		b[8] = byte(n.State)
		ikm = append(ikm, b[:]...)
	}

	r := hkdf.New(sha256.New, ikm, nil, []byte("qdevice-reload-fingerprint"))
	var out [32]byte
	_, _ = io.ReadFull(r, out[:])
	return out
}
