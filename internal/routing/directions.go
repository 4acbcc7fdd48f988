package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"backend-ridetrack/internal/shared/geo"
)

// Route is a road-following polyline returned by the directions provider.
type Route struct {
	Geometry        []geo.Point
	DistanceKm      float64
	DurationMinutes float64
}

// Directions turns an ordered coordinate list into a road-following route.
// Failure is always an explicit error, never partial geometry.
type Directions interface {
	Route(ctx context.Context, points []geo.Point) (Route, error)
}

// Client calls an OSRM-compatible route service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Geometry struct {
			Coordinates [][]float64 `json:"coordinates"`
		} `json:"geometry"`
		Distance float64 `json:"distance"` // meters
		Duration float64 `json:"duration"` // seconds
	} `json:"routes"`
}

func (c *Client) Route(ctx context.Context, points []geo.Point) (Route, error) {
	if len(points) < 2 {
		return Route{}, errors.New("directions: need at least 2 points")
	}

	coords := make([]string, len(points))
	for i, p := range points {
		coords[i] = fmt.Sprintf("%f,%f", p.Lng, p.Lat)
	}
	url := fmt.Sprintf("%s/route/v1/driving/%s?overview=full&geometries=geojson", c.baseURL, strings.Join(coords, ";"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Route{}, fmt.Errorf("directions: status %d", resp.StatusCode)
	}

	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Route{}, err
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return Route{}, fmt.Errorf("directions: no route (code %q)", body.Code)
	}

	raw := body.Routes[0].Geometry.Coordinates
	if len(raw) < 2 {
		return Route{}, errors.New("directions: malformed geometry")
	}
	geometry := make([]geo.Point, len(raw))
	for i, coord := range raw {
		if len(coord) < 2 {
			return Route{}, errors.New("directions: malformed geometry")
		}
		geometry[i] = geo.Point{Lng: coord[0], Lat: coord[1]}
	}

	return Route{
		Geometry:        geometry,
		DistanceKm:      body.Routes[0].Distance / 1000,
		DurationMinutes: body.Routes[0].Duration / 60,
	}, nil
}
