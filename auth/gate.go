// Package auth decides which peers may deliver samples to the collector.
// Access control is a fixed address allowlist checked at accept time,
// before any data is read from the connection.
package auth

// PeerGate answers whether a peer host address may connect. Implementations
// must be pure lookups with no side effects; the server consults the gate
// once per accepted connection.
type PeerGate interface {
	IsAllowed(host string) bool
}

// PeerAllowlist is an immutable set of permitted peer host addresses,
// loaded once at startup.
type PeerAllowlist struct {
	hosts map[string]struct{}
}

var _ PeerGate = (*PeerAllowlist)(nil)

// NewPeerAllowlist builds a gate from the configured host addresses.
func NewPeerAllowlist(hosts []string) *PeerAllowlist {
	set := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		set[h] = struct{}{}
	}
	return &PeerAllowlist{hosts: set}
}

// IsAllowed reports whether host is a member of the allowlist.
func (g *PeerAllowlist) IsAllowed(host string) bool {
	_, ok := g.hosts[host]
	return ok
}

// Len returns the number of allowlisted hosts.
func (g *PeerAllowlist) Len() int { return len(g.hosts) }

type allowAllGate struct{}

func (allowAllGate) IsAllowed(string) bool { return true }

// AllowAll admits every peer. It must be selected explicitly in
// configuration; an empty allowlist is a startup error, not an open door.
var AllowAll PeerGate = allowAllGate{}
