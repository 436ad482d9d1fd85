package peer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/dyluth/arsketch/pkg/sketch"
	"github.com/redis/go-redis/v9"
)

// RosterKey returns the Redis key for the session roster set.
// Pattern: arsketch:{session}:peers
func RosterKey(session string) string {
	return fmt.Sprintf("arsketch:%s:peers", session)
}

// InboxChannel returns the Pub/Sub channel a peer receives payloads on.
// Pattern: arsketch:{session}:peer:{peer_id}:inbox
func InboxChannel(session string, peer sketch.PeerID) string {
	return fmt.Sprintf("arsketch:%s:peer:%s:inbox", session, peer)
}

// RosterEventsChannel returns the Pub/Sub channel for join/leave notifications.
// Pattern: arsketch:{session}:roster_events
func RosterEventsChannel(session string) string {
	return fmt.Sprintf("arsketch:%s:roster_events", session)
}

// envelope is the JSON wrapper published to a peer inbox.
type envelope struct {
	From    sketch.PeerID `json:"from"`
	Payload []byte        `json:"payload"`
}

// RedisChannel is a Channel backed by Redis Pub/Sub.
// Create with NewRedisChannel, then call Join before use and Close when done.
// All methods are safe for concurrent use.
type RedisChannel struct {
	rdb     *redis.Client
	session string
	self    sketch.PeerID

	mu     sync.RWMutex
	roster map[sketch.PeerID]struct{}

	messages chan Inbound
	events   chan RosterEvent
	errors   chan error

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// NewRedisChannel creates a transport for one device in a session.
// Returns an error if session or self is empty.
func NewRedisChannel(redisOpts *redis.Options, session string, self sketch.PeerID) (*RedisChannel, error) {
	if session == "" {
		return nil, fmt.Errorf("session name cannot be empty")
	}
	if self == "" {
		return nil, fmt.Errorf("peer id cannot be empty")
	}

	return &RedisChannel{
		rdb:      redis.NewClient(redisOpts),
		session:  session,
		self:     self,
		roster:   make(map[sketch.PeerID]struct{}),
		messages: make(chan Inbound, 64),
		events:   make(chan RosterEvent, 16),
		errors:   make(chan error, 16),
		done:     make(chan struct{}),
	}, nil
}

// Ping verifies Redis connectivity.
func (c *RedisChannel) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *RedisChannel) Self() sketch.PeerID {
	return c.self
}

func (c *RedisChannel) Messages() <-chan Inbound {
	return c.messages
}

func (c *RedisChannel) RosterEvents() <-chan RosterEvent {
	return c.events
}

func (c *RedisChannel) Errors() <-chan error {
	return c.errors
}

// Join subscribes to this peer's inbox and the roster channel, registers in the roster
// and announces itself. The subscription is confirmed before Join returns, so payloads
// sent after Join are not lost.
func (c *RedisChannel) Join(ctx context.Context) error {
	pubsub := c.rdb.Subscribe(ctx, InboxChannel(c.session, c.self), RosterEventsChannel(c.session))

	// Wait for the subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to inbox: %w", err)
	}

	if err := c.rdb.SAdd(ctx, RosterKey(c.session), string(c.self)).Err(); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to register in roster: %w", err)
	}

	members, err := c.rdb.SMembers(ctx, RosterKey(c.session)).Result()
	if err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to read roster: %w", err)
	}

	live, err := c.pruneStale(ctx, members)
	if err != nil {
		pubsub.Close()
		return err
	}

	c.mu.Lock()
	for _, id := range live {
		c.roster[id] = struct{}{}
	}
	c.mu.Unlock()

	if err := c.publishRosterEvent(ctx, RosterJoin); err != nil {
		pubsub.Close()
		return err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.receive(subCtx, pubsub)

	log.Printf("[Peer] %s joined session '%s' with %d other peer(s)", c.self, c.session, len(live))
	return nil
}

// receive demultiplexes inbox payloads and roster events until cancelled.
func (c *RedisChannel) receive(ctx context.Context, pubsub *redis.PubSub) {
	defer close(c.done)
	defer close(c.messages)
	defer close(c.events)
	defer close(c.errors)
	defer pubsub.Close()

	inbox := InboxChannel(c.session, c.self)
	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}

			if msg.Channel == inbox {
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					c.reportError(ctx, fmt.Errorf("failed to unmarshal inbox envelope: %w", err))
					continue
				}
				select {
				case c.messages <- Inbound{From: env.From, Payload: env.Payload}:
				case <-ctx.Done():
					return
				}
				continue
			}

			var ev RosterEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				c.reportError(ctx, fmt.Errorf("failed to unmarshal roster event: %w", err))
				continue
			}
			if ev.Peer == c.self {
				continue
			}

			c.mu.Lock()
			switch ev.Type {
			case RosterJoin:
				c.roster[ev.Peer] = struct{}{}
			case RosterLeave:
				delete(c.roster, ev.Peer)
			}
			c.mu.Unlock()

			select {
			case c.events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *RedisChannel) reportError(ctx context.Context, err error) {
	select {
	case c.errors <- err:
	case <-ctx.Done():
	}
}

// ConnectedPeers returns the cached roster, sorted by peer id.
func (c *RedisChannel) ConnectedPeers() []sketch.PeerID {
	c.mu.RLock()
	peers := make([]sketch.PeerID, 0, len(c.roster))
	for p := range c.roster {
		peers = append(peers, p)
	}
	c.mu.RUnlock()

	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers
}

// SendToAll publishes payload to each connected peer's inbox in turn.
// A peer with no live subscriber counts as a failed delivery and is removed from the roster.
func (c *RedisChannel) SendToAll(ctx context.Context, payload []byte) []SendFailure {
	data, err := json.Marshal(envelope{From: c.self, Payload: payload})
	if err != nil {
		// Marshalling a byte slice cannot fail in practice; report against every peer
		var failures []SendFailure
		for _, p := range c.ConnectedPeers() {
			failures = append(failures, SendFailure{Peer: p, Err: err})
		}
		return failures
	}

	var failures []SendFailure
	for _, p := range c.ConnectedPeers() {
		receivers, err := c.rdb.Publish(ctx, InboxChannel(c.session, p), data).Result()
		if err != nil {
			failures = append(failures, SendFailure{Peer: p, Err: err})
			continue
		}
		if receivers == 0 {
			failures = append(failures, SendFailure{Peer: p, Err: fmt.Errorf("peer not connected")})
			c.evict(ctx, p)
		}
	}

	for _, f := range failures {
		log.Printf("[Peer] Error sending data to peer: %v", f)
	}
	return failures
}

// pruneStale returns the roster members other than self that still have a subscriber
// on their inbox. Members without one left without calling Close and are removed.
func (c *RedisChannel) pruneStale(ctx context.Context, members []string) ([]sketch.PeerID, error) {
	var others []sketch.PeerID
	var inboxes []string
	for _, m := range members {
		if id := sketch.PeerID(m); id != c.self {
			others = append(others, id)
			inboxes = append(inboxes, InboxChannel(c.session, id))
		}
	}
	if len(others) == 0 {
		return nil, nil
	}

	counts, err := c.rdb.PubSubNumSub(ctx, inboxes...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check roster liveness: %w", err)
	}

	live := make([]sketch.PeerID, 0, len(others))
	for i, id := range others {
		if counts[inboxes[i]] > 0 {
			live = append(live, id)
			continue
		}
		log.Printf("[Peer] Removing stale peer %s from session '%s'", id, c.session)
		if err := c.rdb.SRem(ctx, RosterKey(c.session), string(id)).Err(); err != nil {
			log.Printf("[Peer] Failed to remove stale peer %s: %v", id, err)
		}
	}
	return live, nil
}

// evict drops a peer whose inbox has no subscriber from the cached and shared roster.
func (c *RedisChannel) evict(ctx context.Context, p sketch.PeerID) {
	c.mu.Lock()
	delete(c.roster, p)
	c.mu.Unlock()

	if err := c.rdb.SRem(ctx, RosterKey(c.session), string(p)).Err(); err != nil {
		log.Printf("[Peer] Failed to remove unreachable peer %s: %v", p, err)
	}
}

func (c *RedisChannel) publishRosterEvent(ctx context.Context, t RosterEventType) error {
	data, err := json.Marshal(RosterEvent{Type: t, Peer: c.self})
	if err != nil {
		return fmt.Errorf("failed to marshal roster event: %w", err)
	}
	if err := c.rdb.Publish(ctx, RosterEventsChannel(c.session), data).Err(); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", t, err)
	}
	return nil
}

// Close leaves the session, stops the receive loop and closes the Redis connection.
// Safe to call multiple times.
func (c *RedisChannel) Close() error {
	var closeErr error
	c.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if c.cancel != nil {
			if err := c.rdb.SRem(ctx, RosterKey(c.session), string(c.self)).Err(); err != nil {
				log.Printf("[Peer] Failed to leave roster: %v", err)
			}
			if err := c.publishRosterEvent(ctx, RosterLeave); err != nil {
				log.Printf("[Peer] %v", err)
			}
			c.cancel()
			<-c.done
		}

		closeErr = c.rdb.Close()
	})
	return closeErr
}

// ListPeers reads the session roster directly from Redis, sorted.
// Used by tooling that does not join the session.
func ListPeers(ctx context.Context, rdb *redis.Client, session string) ([]sketch.PeerID, error) {
	members, err := rdb.SMembers(ctx, RosterKey(session)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read roster: %w", err)
	}

	peers := make([]sketch.PeerID, len(members))
	for i, m := range members {
		peers[i] = sketch.PeerID(m)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i] < peers[j] })
	return peers, nil
}

var _ Channel = (*RedisChannel)(nil)
