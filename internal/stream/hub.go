package stream

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"backend-ridetrack/internal/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultSendBuffer = 64
	defaultIdleTTL    = 5 * time.Minute
	reapInterval      = time.Minute
)

// RiderPosition is a cached last-known rider location. Entries are upserted
// on report and never evicted by the hub; staleness is the reader's concern.
type RiderPosition struct {
	RiderID     string    `json:"rider_id"`
	DisplayName string    `json:"display_name"`
	Position    Position  `json:"position"`
	LastUpdate  time.Time `json:"last_update"`
}

type tripChannel struct {
	subscribers map[*Client]struct{}
	lastVehicle *Position
	riders      map[string]RiderPosition
	lastReport  time.Time
}

// Client is one live tracking connection. Its Send queue is drained by the
// connection's own writer; the hub never blocks on it.
type Client struct {
	ID   string
	Send chan []byte

	closeOnce sync.Once
}

func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Client{ID: id, Send: make(chan []byte, buffer)}
}

type Options struct {
	SendBuffer int
	IdleTTL    time.Duration
}

// Hub is the process-wide tracking broker: one channel per trip plus a
// direct-address registry keyed by entity identity. All channel mutation and
// fan-out is serialized under one lock so a subscribe racing a broadcast can
// never observe a torn subscriber set or a missed catch-up.
type Hub struct {
	redis     *redis.Client
	collector *metrics.Collector
	nodeID    string
	opts      Options
	now       func() time.Time

	mu          sync.Mutex
	channels    map[string]*tripChannel
	globals     map[string]map[*Client]struct{}
	memberships map[*Client]map[string]struct{}
	globalIDs   map[*Client]map[string]struct{}

	stop chan struct{}
}

func NewHub(redisClient *redis.Client, collector *metrics.Collector, opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = defaultIdleTTL
	}

	h := &Hub{
		redis:       redisClient,
		collector:   collector,
		nodeID:      uuid.NewString(),
		opts:        opts,
		now:         time.Now,
		channels:    map[string]*tripChannel{},
		globals:     map[string]map[*Client]struct{}{},
		memberships: map[*Client]map[string]struct{}{},
		globalIDs:   map[*Client]map[string]struct{}{},
		stop:        make(chan struct{}),
	}

	if redisClient != nil {
		go h.subscribeRedis()
	}
	go h.reapLoop()
	return h
}

// Register creates a connection handle sized to the hub's send buffer.
func (h *Hub) Register() *Client {
	client := NewClient(uuid.NewString(), h.opts.SendBuffer)
	if h.collector != nil {
		h.collector.ConnectedClients.Inc()
	}
	return client
}

// Subscribe adds the client to a trip channel, creating it lazily, and
// synchronously replays cached state: the last vehicle position first, then
// every cached rider entry in last-update order. The replay is enqueued under
// the hub lock, so it happens before any live broadcast the subscribe could
// race with.
func (h *Hub) Subscribe(tripID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := h.channel(tripID)
	ch.subscribers[client] = struct{}{}

	if h.memberships[client] == nil {
		h.memberships[client] = map[string]struct{}{}
	}
	h.memberships[client][tripID] = struct{}{}

	if ch.lastVehicle != nil {
		h.send(client, encodeVehicleBroadcast(tripID, *ch.lastVehicle))
		if h.collector != nil {
			h.collector.CatchupTotal.Inc()
		}
	}
	for _, rider := range sortedRiders(ch.riders) {
		h.send(client, encodeRiderBroadcast(tripID, rider))
		if h.collector != nil {
			h.collector.CatchupTotal.Inc()
		}
	}
}

// Unsubscribe removes the client from a trip channel. Safe to call for a
// client that was never subscribed.
func (h *Hub) Unsubscribe(tripID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if ch, ok := h.channels[tripID]; ok {
		delete(ch.subscribers, client)
	}
	if trips, ok := h.memberships[client]; ok {
		delete(trips, tripID)
	}
}

// RegisterGlobal adds the client to the direct-address registry for a known
// actor identity, orthogonal to trip channels.
func (h *Hub) RegisterGlobal(entityID string, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.globals[entityID] == nil {
		h.globals[entityID] = map[*Client]struct{}{}
	}
	h.globals[entityID][client] = struct{}{}

	if h.globalIDs[client] == nil {
		h.globalIDs[client] = map[string]struct{}{}
	}
	h.globalIDs[client][entityID] = struct{}{}
}

// NotifyGlobal delivers a payload to every connection registered for one
// actor identity.
func (h *Hub) NotifyGlobal(entityID string, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.globals[entityID] {
		h.send(client, payload)
	}
}

// Disconnect removes the client from every registration and closes its send
// queue. Idempotent: a connection closing twice is safe.
func (h *Hub) Disconnect(client *Client) {
	h.mu.Lock()
	for tripID := range h.memberships[client] {
		if ch, ok := h.channels[tripID]; ok {
			delete(ch.subscribers, client)
		}
	}
	delete(h.memberships, client)

	for entityID := range h.globalIDs[client] {
		if set, ok := h.globals[entityID]; ok {
			delete(set, client)
			if len(set) == 0 {
				delete(h.globals, entityID)
			}
		}
	}
	delete(h.globalIDs, client)
	h.mu.Unlock()

	client.closeOnce.Do(func() {
		close(client.Send)
		if h.collector != nil {
			h.collector.ConnectedClients.Dec()
		}
	})
}

// PublishVehicle caches the trip's vehicle position and fans it out to every
// subscriber except the reporter.
func (h *Hub) PublishVehicle(tripID string, from *Client, pos Position) {
	if pos.CapturedAt.IsZero() {
		pos.CapturedAt = h.now()
	}

	h.mu.Lock()
	ch := h.channel(tripID)
	ch.lastVehicle = &pos
	ch.lastReport = h.now()

	payload := encodeVehicleBroadcast(tripID, pos)
	h.fanOut(ch, from, payload)
	h.mu.Unlock()

	h.relay(tripID, payload)
}

// PublishRider upserts one rider's cached position and fans it out to every
// subscriber except the reporter. Rider entries are cumulative across riders.
func (h *Hub) PublishRider(tripID string, from *Client, rider RiderPosition) {
	if rider.Position.CapturedAt.IsZero() {
		rider.Position.CapturedAt = h.now()
	}
	rider.LastUpdate = h.now()

	h.mu.Lock()
	ch := h.channel(tripID)
	ch.riders[rider.RiderID] = rider
	ch.lastReport = h.now()

	payload := encodeRiderBroadcast(tripID, rider)
	h.fanOut(ch, from, payload)
	h.mu.Unlock()

	h.relay(tripID, payload)
}

// Close stops the reaper and the redis relay.
func (h *Hub) Close() {
	close(h.stop)
}

// channel returns the trip channel, creating it lazily. Caller holds h.mu.
func (h *Hub) channel(tripID string) *tripChannel {
	ch, ok := h.channels[tripID]
	if !ok {
		ch = &tripChannel{
			subscribers: map[*Client]struct{}{},
			riders:      map[string]RiderPosition{},
			lastReport:  h.now(),
		}
		h.channels[tripID] = ch
		if h.collector != nil {
			h.collector.ActiveChannels.Set(float64(len(h.channels)))
		}
	}
	return ch
}

// fanOut enqueues the payload for every subscriber but the reporter. Caller
// holds h.mu, which preserves per-trip delivery order across broadcasts.
func (h *Hub) fanOut(ch *tripChannel, from *Client, payload []byte) {
	for client := range ch.subscribers {
		if client == from {
			continue
		}
		h.send(client, payload)
	}
	if h.collector != nil {
		h.collector.BroadcastsTotal.Inc()
	}
}

// send is non-blocking: a slow subscriber drops messages instead of stalling
// delivery to the others. This stream is best-effort last-known positions.
func (h *Hub) send(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		if h.collector != nil {
			h.collector.DroppedTotal.Inc()
		}
	}
}

func sortedRiders(riders map[string]RiderPosition) []RiderPosition {
	out := make([]RiderPosition, 0, len(riders))
	for _, r := range riders {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastUpdate.Before(out[j].LastUpdate) })
	return out
}

// reapLoop drops channels that have no subscribers and have not seen a report
// for the idle TTL, so abandoned trips do not accumulate forever.
func (h *Hub) reapLoop() {
	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			h.reap()
		}
	}
}

func (h *Hub) reap() {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := h.now().Add(-h.opts.IdleTTL)
	for tripID, ch := range h.channels {
		if len(ch.subscribers) == 0 && ch.lastReport.Before(cutoff) {
			delete(h.channels, tripID)
		}
	}
	if h.collector != nil {
		h.collector.ActiveChannels.Set(float64(len(h.channels)))
	}
}

// relayEnvelope wraps cross-node payloads so a node can skip its own echoes.
type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Payload json.RawMessage `json:"payload"`
}

// relay mirrors a broadcast to the other nodes through redis, when configured.
func (h *Hub) relay(tripID string, payload []byte) {
	if h.redis == nil {
		return
	}
	wrapped, _ := json.Marshal(relayEnvelope{Origin: h.nodeID, Payload: payload})
	if err := h.redis.Publish(context.Background(), redisChannel(tripID), wrapped).Err(); err != nil {
		log.Printf("redis publish error: %v", err)
	}
}

func (h *Hub) subscribeRedis() {
	ctx := context.Background()
	pubsub := h.redis.PSubscribe(ctx, "tracking:*:broadcast")
	defer pubsub.Close()

	msgs := pubsub.Channel()
	for {
		select {
		case <-h.stop:
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var env relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			if env.Origin == h.nodeID {
				continue
			}
			tripID := tripIDFromChannel(msg.Channel)
			if tripID == "" {
				continue
			}

			h.mu.Lock()
			if ch, ok := h.channels[tripID]; ok {
				for client := range ch.subscribers {
					h.send(client, env.Payload)
				}
			}
			h.mu.Unlock()
		}
	}
}

func redisChannel(tripID string) string {
	return "tracking:" + tripID + ":broadcast"
}

func tripIDFromChannel(ch string) string {
	// tracking:{trip}:broadcast
	const prefix = "tracking:"
	const suffix = ":broadcast"
	if len(ch) <= len(prefix)+len(suffix) {
		return ""
	}
	return ch[len(prefix) : len(ch)-len(suffix)]
}
