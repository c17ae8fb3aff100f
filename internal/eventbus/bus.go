package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// DefaultBufferSize is the per-domain broadcast buffer depth used when a
// caller does not override it. A slow subscriber more than this many
// events behind the fastest publisher observes Lagged on its next Recv.
const DefaultBufferSize = 1024

// ErrChannelClosed is returned by Subscription.Recv once the bus has
// been closed and the subscription's buffered backlog is drained.
var ErrChannelClosed = errors.New("eventbus: channel closed")

// LaggedError is returned by Subscription.Recv when the subscriber fell
// behind the domain buffer's retention window. N is the number of
// events that were dropped before the subscriber's next visible event.
type LaggedError struct{ N uint64 }

func (e *LaggedError) Error() string {
	return fmt.Sprintf("eventbus: subscriber lagged, dropped %d events", e.N)
}

// domainBuffer is a single-domain broadcast ring buffer. It never
// blocks a publisher: slow subscribers lag and are told how much they
// missed rather than applying backpressure to Publish.
type domainBuffer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []Event
	size   int
	next   uint64 // sequence number of the next event to be written
	closed bool
}

func newDomainBuffer(size int) *domainBuffer {
	d := &domainBuffer{buf: make([]Event, size), size: size}
	d.cond = sync.NewCond(&d.mu)
	return d
}

func (d *domainBuffer) publish(evt Event) {
	d.mu.Lock()
	d.buf[d.next%uint64(d.size)] = evt
	d.next++
	d.mu.Unlock()
	d.cond.Broadcast()
}

func (d *domainBuffer) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cond.Broadcast()
}

// read blocks until sequence cursor has an event available, the buffer
// is closed, or ctx is done. It returns the event and the next cursor,
// or ErrChannelClosed, or a *LaggedError if cursor fell outside the
// retained window.
func (d *domainBuffer) read(ctx context.Context, cursor uint64) (Event, uint64, error) {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.cond.Broadcast()
			d.mu.Unlock()
		case <-done:
		}
	}()

	d.mu.Lock()
	for cursor >= d.next && !d.closed && ctx.Err() == nil {
		d.cond.Wait()
	}
	if ctx.Err() != nil {
		d.mu.Unlock()
		return Event{}, cursor, ctx.Err()
	}
	if cursor >= d.next && d.closed {
		d.mu.Unlock()
		return Event{}, cursor, ErrChannelClosed
	}

	oldest := uint64(0)
	if d.next > uint64(d.size) {
		oldest = d.next - uint64(d.size)
	}
	if cursor < oldest {
		dropped := oldest - cursor
		d.mu.Unlock()
		return Event{}, oldest, &LaggedError{N: dropped}
	}

	evt := d.buf[cursor%uint64(d.size)]
	d.mu.Unlock()
	return evt, cursor + 1, nil
}

// Bus is the process-wide event bus. It partitions events across four
// domain broadcast buffers (system, xmpp, ui, plugin) so that a burst
// on one domain cannot starve or lag subscribers of another.
type Bus struct {
	bufferSize int
	domains    map[Domain]*domainBuffer
	mu         sync.Mutex
	closed     bool
}

// New constructs a Bus. bufferSize <= 0 selects DefaultBufferSize.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	b := &Bus{bufferSize: bufferSize, domains: make(map[Domain]*domainBuffer, 4)}
	for _, d := range allDomains() {
		b.domains[d] = newDomainBuffer(bufferSize)
	}
	return b
}

// Publish validates evt.Channel's domain and fans the event out to that
// domain's broadcast buffer. Publish never blocks on subscriber speed.
func (b *Bus) Publish(_ context.Context, evt Event) error {
	buf, ok := b.domains[evt.Channel.Domain()]
	if !ok {
		return fmt.Errorf("eventbus: publish: %w: %s", ErrInvalidChannel, evt.Channel.String())
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fmt.Errorf("eventbus: publish: %w", ErrChannelClosed)
	}
	buf.publish(evt)
	return nil
}

// Subscribe compiles pattern and returns a Subscription delivering every
// future event on any channel matching it, drawn only from the domain
// buffers the pattern could possibly match.
func (b *Bus) Subscribe(pattern string) (*Subscription, error) {
	m, err := compilePattern(pattern)
	if err != nil {
		return nil, err
	}
	domains := domainsForPattern(pattern)
	cursors := make(map[Domain]uint64, len(domains))
	for _, d := range domains {
		b.mu.Lock()
		cursors[d] = b.domains[d].next
		b.mu.Unlock()
	}
	return &Subscription{
		bus:     b,
		matcher: m,
		domains: domains,
		cursors: cursors,
	}, nil
}

// Close shuts down every domain buffer. Subscriptions observe
// ErrChannelClosed once their buffered backlog is drained.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	for _, d := range b.domains {
		d.close()
	}
}

// Subscription is a live handle returned by Bus.Subscribe. It is not
// safe for concurrent use by multiple goroutines calling Recv.
type Subscription struct {
	bus     *Bus
	matcher *matcher
	domains []Domain
	cursors map[Domain]uint64
}

// domainResult is one domain buffer's answer to a single read attempt.
type domainResult struct {
	domain Domain
	evt    Event
	cursor uint64
	err    error
}

// Recv blocks until an event matching the subscription's pattern is
// available, ctx is done, the subscriber lagged past a domain buffer's
// retention window (*LaggedError), or the bus closed (ErrChannelClosed).
//
// A subscription attached to several domains (e.g. the "**" pattern)
// waits on all of them at once: each attached buffer is polled in its
// own goroutine, and the first matching event from any of them wins.
// Domains that lose the race keep their buffered event for the next
// Recv call rather than being consumed and discarded.
func (s *Subscription) Recv(ctx context.Context) (Event, error) {
	if ctx.Err() != nil {
		return Event{}, ctx.Err()
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan domainResult, len(s.domains))
	spawn := func(d Domain) {
		cursor := s.cursors[d]
		buf := s.bus.domains[d]
		go func() {
			evt, next, err := buf.read(attemptCtx, cursor)
			results <- domainResult{domain: d, evt: evt, cursor: next, err: err}
		}()
	}
	for _, d := range s.domains {
		spawn(d)
	}

	closed := make(map[Domain]bool, len(s.domains))
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case r := <-results:
			if r.err != nil {
				if errors.Is(r.err, context.Canceled) || errors.Is(r.err, context.DeadlineExceeded) {
					if ctx.Err() != nil {
						return Event{}, ctx.Err()
					}
					continue
				}
				var lagged *LaggedError
				if errors.As(r.err, &lagged) {
					s.cursors[r.domain] = r.cursor
					return Event{}, r.err
				}
				if errors.Is(r.err, ErrChannelClosed) {
					s.cursors[r.domain] = r.cursor
					closed[r.domain] = true
					if len(closed) == len(s.domains) {
						return Event{}, ErrChannelClosed
					}
					continue
				}
				return Event{}, r.err
			}
			s.cursors[r.domain] = r.cursor
			if s.matcher.Match(r.evt.Channel.String()) {
				return r.evt, nil
			}
			spawn(r.domain)
		}
	}
}

// Close releases the subscription. The underlying domain buffers are
// shared and unaffected; Close exists for symmetry and future resource
// cleanup (e.g. metrics deregistration).
func (s *Subscription) Close() {}
