package viewer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"backend-ridetrack/internal/config"
	"backend-ridetrack/internal/routing"
	"backend-ridetrack/internal/shared/geo"
	"backend-ridetrack/internal/stream"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// ErrTrackingStopped is returned when reconnect attempts are exhausted; the
// viewer is expected to show a terminal "tracking stopped" state and not
// retry further.
var ErrTrackingStopped = errors.New("viewer: tracking stopped")

const (
	defaultStaleAfter     = 90 * time.Second
	defaultMaxRetries     = 5
	defaultInitialBackoff = time.Second
	maxBackoff            = 30 * time.Second
)

type Config struct {
	URL     string // tracking websocket endpoint
	TripID  string
	Matcher *routing.Matcher

	StaleAfter     time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

// Session is one rider's view of a tracked trip. It owns its matcher, feeds
// every vehicle broadcast through it, and caches rider positions, hiding
// entries older than the staleness window on read.
type Session struct {
	cfg     Config
	updates chan []geo.Point
	now     func() time.Time

	mu     sync.Mutex
	riders map[string]stream.RiderPosition
}

func NewSession(cfg Config) *Session {
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = defaultInitialBackoff
	}
	s := &Session{
		cfg:     cfg,
		updates: make(chan []geo.Point, 16),
		now:     time.Now,
		riders:  map[string]stream.RiderPosition{},
	}
	if cfg.Matcher != nil {
		cfg.Matcher.SetOnReroute(s.pushUpdate)
	}
	return s
}

// NewSessionFromConfig builds a session for the configured trip, with the
// matcher and staleness tuning taken from the shared configuration.
func NewSessionFromConfig(app config.Config, directions routing.Directions) *Session {
	m := routing.NewMatcher(directions, routing.Config{
		Threshold: app.DeviationThreshold,
		Debounce:  time.Duration(app.RerouteDebounceSec) * time.Second,
	})
	m.SetDestination(geo.Point{Lat: app.DestLat, Lng: app.DestLng})
	return NewSession(Config{
		URL:        app.TrackingURL,
		TripID:     app.TripID,
		Matcher:    m,
		StaleAfter: time.Duration(app.RiderStaleSec) * time.Second,
	})
}

// Updates delivers remaining-path recomputations: one per vehicle broadcast,
// plus the replacement path when an in-flight reroute completes.
func (s *Session) Updates() <-chan []geo.Point {
	return s.updates
}

// Riders returns the cached co-rider positions that are still fresh. The
// broker never evicts entries; hiding stale ones is this read side's job.
func (s *Session) Riders() []stream.RiderPosition {
	cutoff := s.now().Add(-s.cfg.StaleAfter)

	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]stream.RiderPosition, 0, len(s.riders))
	for _, r := range s.riders {
		if r.LastUpdate.After(cutoff) {
			out = append(out, r)
		}
	}
	return out
}

// Run connects, subscribes, and consumes broadcasts until the context is
// cancelled. Dropped connections are retried with capped exponential backoff;
// when the retry budget is exhausted it returns ErrTrackingStopped.
func (s *Session) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.cfg.InitialBackoff
	bo.MaxInterval = maxBackoff
	bo.MaxElapsedTime = 0

	retries := 0
	for {
		if err := s.serve(ctx); err == nil {
			return nil // context cancelled
		}
		retries++
		if retries > s.cfg.MaxRetries {
			return ErrTrackingStopped
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(bo.NextBackOff()):
		}
	}
}

// serve runs one connection lifetime. A nil return means the context ended;
// any error means the transport dropped and the caller may retry.
func (s *Session) serve(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub, _ := json.Marshal(stream.Message{Type: stream.TypeSubscribe, TripID: s.cfg.TripID})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		s.handle(raw)
	}
}

func (s *Session) pushUpdate(path []geo.Point) {
	select {
	case s.updates <- path:
	default:
		log.Printf("viewer: dropped remaining-path update for trip %s", s.cfg.TripID)
	}
}

func (s *Session) handle(raw []byte) {
	var msg stream.Message
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Position == nil {
		return
	}

	switch msg.Type {
	case stream.TypeVehicleBroadcast:
		if s.cfg.Matcher == nil {
			return
		}
		s.pushUpdate(s.cfg.Matcher.OnPositionUpdate(geo.Point{Lat: msg.Position.Lat, Lng: msg.Position.Lng}))
	case stream.TypeRiderBroadcast:
		s.mu.Lock()
		s.riders[msg.RiderID] = stream.RiderPosition{
			RiderID:     msg.RiderID,
			DisplayName: msg.DisplayName,
			Position:    *msg.Position,
			LastUpdate:  s.now(),
		}
		s.mu.Unlock()
	}
}
