// Package eventbus provides the domain-partitioned publish/subscribe bus
// that every manager in the core coordinates through. Channels are
// hierarchical dotted names; events are published to one of four
// per-domain broadcast buffers and delivered to subscribers whose glob
// pattern matches the full channel name.
package eventbus

import (
	"errors"
	"strings"
)

// Domain is the leading segment of a channel name. It partitions the
// bus into one broadcast buffer per domain.
type Domain string

const (
	DomainSystem Domain = "system"
	DomainXmpp   Domain = "xmpp"
	DomainUi     Domain = "ui"
	DomainPlugin Domain = "plugin"
)

// ErrInvalidChannel is returned by NewChannel when a name violates the
// channel format, and by Publish when a channel's domain segment is not
// one of the four known domains.
var ErrInvalidChannel = errors.New("eventbus: invalid channel")

// Channel is a validated hierarchical dotted channel name, e.g.
// "xmpp.message.received". The domain segment (before the first dot)
// must be one of system, xmpp, ui, plugin.
type Channel struct {
	name string
}

// NewChannel validates name and returns a Channel, or ErrInvalidChannel
// if the name violates the format invariants.
func NewChannel(name string) (Channel, error) {
	if !isValidChannel(name) {
		return Channel{}, errors.Join(ErrInvalidChannel, errors.New(name))
	}
	return Channel{name: name}, nil
}

// MustChannel is NewChannel but panics on invalid input. Intended for
// use with compile-time-known channel name constants.
func MustChannel(name string) Channel {
	c, err := NewChannel(name)
	if err != nil {
		panic(err)
	}
	return c
}

// isValidChannel enforces: non-empty, no leading/trailing dot, no "..",
// only lowercase letters/digits/dots, and a recognized domain segment.
func isValidChannel(name string) bool {
	if name == "" || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	if strings.Contains(name, "..") {
		return false
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '.':
		default:
			return false
		}
	}
	domain, _, _ := strings.Cut(name, ".")
	switch Domain(domain) {
	case DomainSystem, DomainXmpp, DomainUi, DomainPlugin:
		return true
	default:
		return false
	}
}

// Domain returns the leading dot-segment of the channel name.
func (c Channel) Domain() Domain {
	d, _, _ := strings.Cut(c.name, ".")
	return Domain(d)
}

// String returns the full channel name.
func (c Channel) String() string {
	return c.name
}
