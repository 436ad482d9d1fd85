// Package syncengine keeps the shared sketch consistent across peers.
//
// The Engine owns the session state (map authority, relocalization flag, tracked anchors)
// and mutates it only from the goroutine running Run. Inbound peer traffic, roster
// changes and local operations are all marshaled onto that goroutine; local operations
// are submitted as requests and wait for their result.
package syncengine

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dyluth/arsketch/internal/peer"
	"github.com/dyluth/arsketch/internal/perception"
	"github.com/dyluth/arsketch/internal/store"
	"github.com/dyluth/arsketch/pkg/sketch"
)

// Options tune the engine. The zero value is usable.
type Options struct {
	// OutboxSize bounds payloads waiting to be sent. Default 64.
	OutboxSize int

	// RelocalizationTimeout forces relocalization to end after this long.
	// Zero disables the watchdog.
	RelocalizationTimeout time.Duration
}

// Engine is the sync engine for one device.
type Engine struct {
	self       sketch.PeerID
	session    string
	channel    peer.Channel
	perception perception.Subsystem
	store      store.SnapshotStore
	opts       Options

	// Owned by the processing goroutine
	mapAuthority   sketch.PeerID
	relocalizing   bool
	generation     uint64 // Bumped on every adoption and reset; guards stale watchdogs
	anchorIDs      map[string]struct{}
	anchorOrder    []string
	referenceImage []byte
	seq            uint64
	stats          Stats

	payloadsSent atomic.Int64
	sendFailures atomic.Int64
	outboxDrops  atomic.Int64

	requests chan func()
	outbox   chan []byte
	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an engine for the device identified by channel.Self().
// The snapshot store may be nil, in which case save and load report a PersistenceError.
func New(session string, channel peer.Channel, p perception.Subsystem, st store.SnapshotStore, opts Options) *Engine {
	if opts.OutboxSize <= 0 {
		opts.OutboxSize = 64
	}

	return &Engine{
		self:       channel.Self(),
		session:    session,
		channel:    channel,
		perception: p,
		store:      st,
		opts:       opts,
		anchorIDs:  make(map[string]struct{}),
		requests:   make(chan func()),
		outbox:     make(chan []byte, opts.OutboxSize),
		stopped:    make(chan struct{}),
	}
}

// Run processes events until ctx is cancelled. It must be called exactly once.
// Local operations block until Run is processing requests.
func (e *Engine) Run(ctx context.Context) error {
	log.Printf("[Sync] Starting for device '%s' in session '%s'", e.self, e.session)

	e.wg.Add(1)
	go e.sender(ctx)

	defer func() {
		e.stopOnce.Do(func() { close(e.stopped) })
		e.wg.Wait()
		log.Printf("[Sync] Stopped")
	}()

	messages := e.channel.Messages()
	roster := e.channel.RosterEvents()
	transportErrs := e.channel.Errors()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Sync] Shutting down...")
			return nil

		case in, ok := <-messages:
			if !ok {
				log.Printf("[Sync] Peer channel closed, serving local requests only")
				messages = nil
				continue
			}
			// Decode and adoption failures are logged inside; one bad peer must not
			// destabilize the session
			_ = e.handleInbound(ctx, in)

		case ev, ok := <-roster:
			if !ok {
				roster = nil
				continue
			}
			e.logEvent("roster_changed", map[string]interface{}{
				"change": string(ev.Type),
				"peer":   string(ev.Peer),
				"phase":  string(e.phase()),
			})

		case err, ok := <-transportErrs:
			if !ok {
				transportErrs = nil
				continue
			}
			log.Printf("[Sync] Transport error: %v", err)

		case req := <-e.requests:
			req()
		}
	}
}

// call runs fn on the processing goroutine and waits for it to finish. It returns nil
// exactly when fn ran. Once fn has started, cancelling ctx no longer abandons it.
func (e *Engine) call(ctx context.Context, fn func()) error {
	const (
		pending int32 = iota
		running
		abandoned
	)

	var state atomic.Int32
	done := make(chan struct{})
	req := func() {
		defer close(done)
		if !state.CompareAndSwap(pending, running) {
			return
		}
		fn()
	}

	select {
	case e.requests <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrEngineStopped
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		if state.CompareAndSwap(pending, abandoned) {
			return ctx.Err()
		}
	case <-e.stopped:
		if state.CompareAndSwap(pending, abandoned) {
			return ErrEngineStopped
		}
	}
	<-done
	return nil
}

// post queues fn on the processing goroutine without waiting for it.
func (e *Engine) post(fn func()) {
	select {
	case e.requests <- fn:
	case <-e.stopped:
	}
}

// enqueue hands a payload to the sender without blocking the processing goroutine.
func (e *Engine) enqueue(payload []byte) {
	select {
	case e.outbox <- payload:
	default:
		e.outboxDrops.Add(1)
		log.Printf("[Sync] Outbox full, dropping %d byte payload", len(payload))
	}
}

// sender drains the outbox. Delivery failures are per peer and only logged.
func (e *Engine) sender(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case payload := <-e.outbox:
			failures := e.channel.SendToAll(ctx, payload)
			e.payloadsSent.Add(1)
			e.sendFailures.Add(int64(len(failures)))
			for _, f := range failures {
				log.Printf("[Sync] %v", f)
			}
		}
	}
}

// logEvent logs a structured event in JSON format.
func (e *Engine) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "sync"
	data["event_type"] = eventType
	data["session"] = e.session
	data["device"] = string(e.self)

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Sync] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
