package server

import (
	"time"

	"backend-ridetrack/internal/config"
	"backend-ridetrack/internal/metrics"
	"backend-ridetrack/internal/routing"
	"backend-ridetrack/internal/stream"
	"backend-ridetrack/internal/trip"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

type Server struct {
	App       *fiber.App
	Cfg       config.Config
	DB        *pgxpool.Pool
	Redis     *redis.Client
	Hub       *stream.Hub
	Collector *metrics.Collector
}

func NewServer(cfg config.Config, db *pgxpool.Pool, redisClient *redis.Client) *Server {
	app := fiber.New()
	app.Use(recover.New())
	app.Use(logger.New())

	collector := metrics.NewCollector()

	s := &Server{
		App:       app,
		Cfg:       cfg,
		DB:        db,
		Redis:     redisClient,
		Collector: collector,
		Hub: stream.NewHub(redisClient, collector, stream.Options{
			SendBuffer: cfg.SendBuffer,
			IdleTTL:    time.Duration(cfg.ChannelIdleSec) * time.Second,
		}),
	}

	registerRoutes(s)
	return s
}

func registerRoutes(s *Server) {
	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	directions := routing.NewClient(s.Cfg.DirectionsURL, time.Duration(s.Cfg.DirectionsTimeoutSec)*time.Second)

	trip.RegisterRoutes(s.App.Group("/trips"), trip.NewService(s.DB), directions)
	stream.RegisterRoutes(s.App.Group("/tracking"), s.Hub)
}
