package routing

import (
	"context"
	"log"
	"sync"
	"time"

	"backend-ridetrack/internal/metrics"
	"backend-ridetrack/internal/shared/geo"
)

const (
	defaultThreshold = 4e-7 // squared degrees, ~70 m under the planar projection
	defaultDebounce  = 10 * time.Second

	// stored planned-path endpoints are not trusted to equal the live
	// destination exactly
	destEpsilon = 1e-6
)

type Config struct {
	Threshold float64
	Debounce  time.Duration
	Collector *metrics.Collector

	// OnReroute is invoked with the replacement path after a successful
	// reroute, so the owning session can refresh its display immediately.
	OnReroute func(path []geo.Point)
}

// Matcher is one viewing session's route-matching state. It projects each
// vehicle position onto the planned path, recuts the remaining route to the
// destination, and requests a replacement path when the vehicle deviates.
// Instances are per-viewer and recompute from scratch on every update, so an
// externally replaced path self-heals on the next position.
type Matcher struct {
	directions Directions
	cfg        Config
	now        func() time.Time

	mu             sync.Mutex
	planned        []geo.Point
	destination    geo.Point
	hasDestination bool
	lastRerouteAt  time.Time
}

func NewMatcher(directions Directions, cfg Config) *Matcher {
	if cfg.Threshold <= 0 {
		cfg.Threshold = defaultThreshold
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = defaultDebounce
	}
	return &Matcher{
		directions: directions,
		cfg:        cfg,
		now:        time.Now,
	}
}

// SetDestination fixes the trip's destination. Set once per trip.
func (m *Matcher) SetDestination(d geo.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.destination = d
	m.hasDestination = true
}

// SetPlannedPath replaces the planned path wholesale. A path of fewer than 2
// points is treated as absent.
func (m *Matcher) SetPlannedPath(path []geo.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(path) < 2 {
		m.planned = nil
		return
	}
	m.planned = append([]geo.Point(nil), path...)
}

// PlannedPath returns a copy of the current planned path.
func (m *Matcher) PlannedPath() []geo.Point {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]geo.Point(nil), m.planned...)
}

// SetOnReroute registers the callback invoked with each replacement path, so
// the owning session can refresh its display without waiting for the next
// vehicle broadcast.
func (m *Matcher) SetOnReroute(fn func(path []geo.Point)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg.OnReroute = fn
}

// OnPositionUpdate recomputes the remaining path for a new vehicle position.
// The returned slice always starts at current and ends at the destination.
// When the vehicle is off every planned segment, a reroute is requested
// asynchronously at most once per debounce window and the straight line to
// the destination is returned in the interim.
func (m *Matcher) OnPositionUpdate(current geo.Point) []geo.Point {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.hasDestination {
		return nil
	}
	if len(m.planned) < 2 {
		return []geo.Point{current, m.destination}
	}

	bestSq := -1.0
	bestIdx := 0
	var snapped geo.Point
	for i := 0; i+1 < len(m.planned); i++ {
		candidate := geo.ClosestPointOnSegment(current, m.planned[i], m.planned[i+1])
		sq := geo.SquaredDistance(current, candidate)
		if bestSq < 0 || sq < bestSq {
			bestSq = sq
			bestIdx = i
			snapped = candidate
		}
	}

	if bestSq > m.cfg.Threshold {
		straight := []geo.Point{current, m.destination}
		if m.now().Sub(m.lastRerouteAt) < m.cfg.Debounce {
			return straight
		}
		m.lastRerouteAt = m.now()
		go m.reroute(current, m.destination)
		return straight
	}

	remaining := make([]geo.Point, 0, len(m.planned)-bestIdx+2)
	remaining = append(remaining, current, snapped)
	remaining = append(remaining, m.planned[bestIdx+1:]...)
	if geo.SquaredDistance(remaining[len(remaining)-1], m.destination) > destEpsilon {
		remaining = append(remaining, m.destination)
	}
	return remaining
}

// reroute asks the directions provider for a fresh path from the current
// position to the destination only, never the original stop list. A failed
// attempt keeps the straight-line fallback in play; the debounce window
// already recorded is left as is.
func (m *Matcher) reroute(current, destination geo.Point) {
	if m.cfg.Collector != nil {
		m.cfg.Collector.RerouteRequests.Inc()
	}
	if m.directions == nil {
		return
	}

	route, err := m.directions.Route(context.Background(), []geo.Point{current, destination})
	if err != nil {
		if m.cfg.Collector != nil {
			m.cfg.Collector.RerouteFailures.Inc()
		}
		log.Printf("reroute failed: %v", err)
		return
	}
	if len(route.Geometry) < 2 {
		if m.cfg.Collector != nil {
			m.cfg.Collector.RerouteFailures.Inc()
		}
		log.Printf("reroute returned %d points, keeping previous path", len(route.Geometry))
		return
	}

	m.mu.Lock()
	m.planned = append([]geo.Point(nil), route.Geometry...)
	notify := m.cfg.OnReroute
	m.mu.Unlock()

	if notify != nil {
		notify(append([]geo.Point(nil), route.Geometry...))
	}
}
