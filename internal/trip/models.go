package trip

import "time"

type Trip struct {
	ID        string    `json:"id"`
	RouteName string    `json:"route_name"`
	VehicleID string    `json:"vehicle_id"`
	OriginLat float64   `json:"origin_lat"`
	OriginLng float64   `json:"origin_lng"`
	DestLat   float64   `json:"dest_lat"`
	DestLng   float64   `json:"dest_lng"`
	DepartsAt time.Time `json:"departs_at"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type Stop struct {
	ID       string  `json:"id"`
	TripID   string  `json:"trip_id"`
	Name     string  `json:"name"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Sequence int     `json:"sequence"`
}

type PlannedRoute struct {
	ID         string    `json:"id"`
	TripID     string    `json:"trip_id"`
	RouteWKT   string    `json:"route"`
	DistanceKm float64   `json:"distance_km"`
	DurationM  float64   `json:"duration_minutes"`
	CreatedAt  time.Time `json:"created_at"`
}
