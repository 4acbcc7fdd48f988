package metrics

import (
	"log"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	ActiveChannels   prometheus.Gauge
	ConnectedClients prometheus.Gauge

	BroadcastsTotal prometheus.Counter
	DroppedTotal    prometheus.Counter
	CatchupTotal    prometheus.Counter

	RerouteRequests prometheus.Counter
	RerouteFailures prometheus.Counter
}

func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ridetrack_active_trip_channels",
			Help: "Number of trip channels currently held by the broker.",
		}),
		ConnectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ridetrack_connected_clients",
			Help: "Number of live tracking connections.",
		}),
		BroadcastsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridetrack_broadcasts_total",
			Help: "Total position broadcasts fanned out to subscribers.",
		}),
		DroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridetrack_dropped_messages_total",
			Help: "Messages dropped on full subscriber queues.",
		}),
		CatchupTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridetrack_catchup_events_total",
			Help: "Cached state events replayed to new subscribers.",
		}),
		RerouteRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridetrack_reroute_requests_total",
			Help: "Reroute requests issued to the directions provider.",
		}),
		RerouteFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ridetrack_reroute_failures_total",
			Help: "Reroute requests that returned an error.",
		}),
	}

	reg.MustRegister(
		c.ActiveChannels, c.ConnectedClients,
		c.BroadcastsTotal, c.DroppedTotal, c.CatchupTotal,
		c.RerouteRequests, c.RerouteFailures,
	)

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}
