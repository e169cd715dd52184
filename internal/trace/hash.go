package trace

import (
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/roach88/redpiler/internal/world"
)

// Domain prefixes keep state and trace fingerprints from colliding.
const (
	DomainState = "redpiler/state/v1"
	DomainTrace = "redpiler/trace/v1"
	DomainGraph = "redpiler/graph/v1"
)

// Hash fingerprints any canonical value under a domain prefix.
func Hash(domain string, v any) (uint64, error) {
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return 0, err
	}
	return hashWithDomain(domain, canonical), nil
}

// hashWithDomain computes xxhash64(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(domain)
	_, _ = d.Write([]byte{0x00})
	_, _ = d.Write(data)
	return d.Sum64()
}

// StateFingerprint hashes a world snapshot. The snapshot must already be in
// position order, as world.MemWorld.Snapshot returns it.
func StateFingerprint(snapshot []world.Change) (uint64, error) {
	canonical, err := MarshalCanonical(ChangesValue(snapshot))
	if err != nil {
		return 0, fmt.Errorf("state fingerprint: %w", err)
	}
	return hashWithDomain(DomainState, canonical), nil
}

// Fingerprint hashes the whole trace.
func (t *Trace) Fingerprint() (uint64, error) {
	lines, err := t.MarshalLines()
	if err != nil {
		return 0, fmt.Errorf("trace fingerprint: %w", err)
	}
	return hashWithDomain(DomainTrace, lines), nil
}

// FormatFingerprint renders a fingerprint as 16 hex digits.
func FormatFingerprint(fp uint64) string {
	return fmt.Sprintf("%016x", fp)
}
