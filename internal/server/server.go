package server

import (
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/handler"
)

// Server wraps the Fiber app.
type Server struct {
	app             *fiber.App
	cfg             *config.Config
	jwtManager      *auth.JWTManager
	collabWSHandler *handler.CollabWSHandler
	canvasHandler   *handler.CanvasHandler
	presenceHandler *handler.PresenceHandler
	healthHandler   *handler.HealthHandler
}

// New creates the server around the already-wired handlers.
func New(cfg *config.Config, jwtManager *auth.JWTManager, collabWS *handler.CollabWSHandler, canvas *handler.CanvasHandler, presenceH *handler.PresenceHandler, health *handler.HealthHandler) *Server {
	app := fiber.New(fiber.Config{
		AppName:               "Whiteboard Collaboration Gateway",
		ServerHeader:          "Fiber",
		StrictRouting:         true,
		CaseSensitive:         true,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		Prefork:               false, // incompatible with WebSocket
		DisableStartupMessage: false,
	})

	return &Server{
		app:             app,
		cfg:             cfg,
		jwtManager:      jwtManager,
		collabWSHandler: collabWS,
		canvasHandler:   canvas,
		presenceHandler: presenceH,
		healthHandler:   health,
	}
}

// SetupMiddleware installs the middleware stack.
func (s *Server) SetupMiddleware() {
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	s.app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${ip} | ${method} ${path}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     s.cfg.CORS.AllowOrigins,
		AllowHeaders:     s.cfg.CORS.AllowHeaders,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: true,
	}))
}

// SetupRoutes installs the routes.
func (s *Server) SetupRoutes() {
	s.app.Get("/health", s.healthHandler.Health)

	// REST reads are rate limited per IP; the websocket carries the
	// realtime traffic and is not.
	apiLimiter := limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "too many requests, please try again later",
			})
		},
	})

	projectGroup := s.app.Group("/api/projects", apiLimiter, auth.AuthMiddleware(s.jwtManager))
	projectGroup.Get("/:projectId/shapes", s.canvasHandler.GetShapes)
	projectGroup.Get("/:projectId/comments", s.canvasHandler.GetRecentComments)

	userGroup := s.app.Group("/api/users", apiLimiter, auth.AuthMiddleware(s.jwtManager))
	userGroup.Get("/presence", s.presenceHandler.GetUsersPresence)
	userGroup.Get("/:userId/presence", s.presenceHandler.GetUserPresence)

	// WebSocket upgrade check
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	// Collaboration endpoint. The bearer token rides the handshake (query
	// param or cookie); a connection that fails validation is refused
	// before the upgrade and never gets a session.
	s.app.Get("/ws/collab", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		token := c.Query("token")
		if token == "" {
			token = c.Cookies("access_token")
		}
		if token == "" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		claims, err := s.jwtManager.ValidateAccessToken(token)
		if err != nil {
			return c.SendStatus(fiber.StatusUnauthorized)
		}

		c.Locals("userID", claims.UserID)
		c.Locals("nickname", claims.Nickname)

		return c.Next()
	}, websocket.New(s.collabWSHandler.HandleWebSocket, websocket.Config{
		ReadBufferSize:  s.cfg.WebSocket.ReadBufferSize,
		WriteBufferSize: s.cfg.WebSocket.WriteBufferSize,
	}))
}

// Start runs the server with graceful shutdown on SIGINT/SIGTERM.
func (s *Server) Start() error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("🛑 Shutting down server...")
		if err := s.app.ShutdownWithTimeout(30 * time.Second); err != nil {
			log.Fatalf("Server shutdown error: %v", err)
		}
	}()

	log.Printf("🚀 Whiteboard Collaboration Gateway starting on %s", s.cfg.Server.Port)
	log.Printf("📡 WebSocket endpoint: ws://localhost%s/ws/collab", s.cfg.Server.Port)

	return s.app.Listen(s.cfg.Server.Port)
}

// Shutdown stops the server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(30 * time.Second)
}
