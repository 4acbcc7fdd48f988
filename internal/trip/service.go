package trip

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"backend-ridetrack/internal/db"
	"backend-ridetrack/internal/shared/geo"

	"github.com/google/uuid"
)

type Service struct {
	db db.Querier
}

func NewService(db db.Querier) *Service {
	return &Service{db: db}
}

func (s *Service) CreateTrip(ctx context.Context, input Trip) (Trip, error) {
	input.ID = uuid.NewString()
	if input.Status == "" {
		input.Status = "scheduled"
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO trips (id, route_name, vehicle_id, origin, destination, departs_at, status)
		VALUES ($1,$2,$3, ST_SetSRID(ST_MakePoint($4,$5), 4326)::geography, ST_SetSRID(ST_MakePoint($6,$7), 4326)::geography, $8, $9)
		RETURNING created_at
	`, input.ID, input.RouteName, input.VehicleID, input.OriginLng, input.OriginLat, input.DestLng, input.DestLat, timePtr(input.DepartsAt), input.Status)
	if err := row.Scan(&input.CreatedAt); err != nil {
		return Trip{}, err
	}
	return input, nil
}

func (s *Service) GetTrip(ctx context.Context, id string) (Trip, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, route_name, vehicle_id,
		       ST_Y(origin::geometry), ST_X(origin::geometry),
		       ST_Y(destination::geometry), ST_X(destination::geometry),
		       departs_at, status, created_at
		FROM trips WHERE id=$1
	`, id)
	var t Trip
	var departs *time.Time // stored as NULL when the trip has no departure time
	if err := row.Scan(&t.ID, &t.RouteName, &t.VehicleID, &t.OriginLat, &t.OriginLng, &t.DestLat, &t.DestLng, &departs, &t.Status, &t.CreatedAt); err != nil {
		return Trip{}, err
	}
	if departs != nil {
		t.DepartsAt = *departs
	}
	return t, nil
}

func (s *Service) DeleteTrip(ctx context.Context, id string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM trips WHERE id=$1`, id)
	return err
}

func (s *Service) AddStop(ctx context.Context, stop Stop) (Stop, error) {
	stop.ID = uuid.NewString()
	_, err := s.db.Exec(ctx, `
		INSERT INTO trip_stops (id, trip_id, name, location, sequence)
		VALUES ($1,$2,$3, ST_SetSRID(ST_MakePoint($4,$5), 4326)::geography, $6)
	`, stop.ID, stop.TripID, stop.Name, stop.Lng, stop.Lat, stop.Sequence)
	if err != nil {
		return Stop{}, err
	}
	return stop, nil
}

func (s *Service) Stops(ctx context.Context, tripID string) ([]Stop, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, trip_id, name, ST_Y(location::geometry), ST_X(location::geometry), sequence
		FROM trip_stops WHERE trip_id=$1
		ORDER BY sequence
	`, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stops []Stop
	for rows.Next() {
		var st Stop
		if err := rows.Scan(&st.ID, &st.TripID, &st.Name, &st.Lat, &st.Lng, &st.Sequence); err != nil {
			return nil, err
		}
		stops = append(stops, st)
	}
	return stops, nil
}

// StopPoints is the ordered coordinate list for the trip's full itinerary:
// origin, boarding stops in sequence, destination. This is what the initial
// directions lookup is fed; reroutes never replay it.
func (s *Service) StopPoints(ctx context.Context, tripID string) ([]geo.Point, error) {
	t, err := s.GetTrip(ctx, tripID)
	if err != nil {
		return nil, err
	}
	stops, err := s.Stops(ctx, tripID)
	if err != nil {
		return nil, err
	}

	points := make([]geo.Point, 0, len(stops)+2)
	points = append(points, geo.Point{Lat: t.OriginLat, Lng: t.OriginLng})
	for _, st := range stops {
		points = append(points, geo.Point{Lat: st.Lat, Lng: st.Lng})
	}
	points = append(points, geo.Point{Lat: t.DestLat, Lng: t.DestLng})
	return points, nil
}

// SetPlannedRoute replaces the trip's stored road polyline wholesale.
func (s *Service) SetPlannedRoute(ctx context.Context, tripID string, path []geo.Point, distanceKm, durationMinutes float64) (PlannedRoute, error) {
	if len(path) < 2 {
		return PlannedRoute{}, errors.New("planned route needs at least 2 points")
	}

	route := PlannedRoute{
		ID:         uuid.NewString(),
		TripID:     tripID,
		RouteWKT:   wktFromPoints(path),
		DistanceKm: distanceKm,
		DurationM:  durationMinutes,
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO planned_routes (id, trip_id, route, distance_km, duration_minutes)
		VALUES ($1,$2, ST_GeogFromText($3), $4, $5)
		ON CONFLICT (trip_id) DO UPDATE
		SET id=EXCLUDED.id, route=EXCLUDED.route, distance_km=EXCLUDED.distance_km, duration_minutes=EXCLUDED.duration_minutes
		RETURNING created_at
	`, route.ID, route.TripID, route.RouteWKT, route.DistanceKm, route.DurationM)
	if err := row.Scan(&route.CreatedAt); err != nil {
		return PlannedRoute{}, err
	}
	return route, nil
}

// PlannedPath loads the trip's stored polyline as ordered points.
func (s *Service) PlannedPath(ctx context.Context, tripID string) ([]geo.Point, error) {
	var wkt string
	row := s.db.QueryRow(ctx, `
		SELECT ST_AsText(route) FROM planned_routes WHERE trip_id=$1
	`, tripID)
	if err := row.Scan(&wkt); err != nil {
		return nil, err
	}
	return pointsFromWKT(wkt)
}

func wktFromPoints(path []geo.Point) string {
	coords := make([]string, len(path))
	for i, p := range path {
		coords[i] = fmt.Sprintf("%g %g", p.Lng, p.Lat)
	}
	return "LINESTRING(" + strings.Join(coords, ",") + ")"
}

func pointsFromWKT(wkt string) ([]geo.Point, error) {
	trimmed := strings.TrimSpace(wkt)
	if !strings.HasPrefix(trimmed, "LINESTRING(") || !strings.HasSuffix(trimmed, ")") {
		return nil, fmt.Errorf("unexpected geometry: %q", wkt)
	}
	inner := trimmed[len("LINESTRING(") : len(trimmed)-1]

	var points []geo.Point
	for _, pair := range strings.Split(inner, ",") {
		fields := strings.Fields(strings.TrimSpace(pair))
		if len(fields) != 2 {
			return nil, fmt.Errorf("unexpected coordinate: %q", pair)
		}
		lng, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, err
		}
		lat, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, err
		}
		points = append(points, geo.Point{Lat: lat, Lng: lng})
	}
	return points, nil
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
