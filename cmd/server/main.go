package main

import (
	"log"
	"os"

	"whiteboard-backend/internal/auth"
	"whiteboard-backend/internal/cache"
	"whiteboard-backend/internal/config"
	"whiteboard-backend/internal/database"
	"whiteboard-backend/internal/handler"
	"whiteboard-backend/internal/hub"
	"whiteboard-backend/internal/presence"
	"whiteboard-backend/internal/server"
	"whiteboard-backend/internal/storage"
)

func main() {
	cfg := config.Load()

	db, err := database.Connect()
	if err != nil {
		log.Fatalf("❌ Database connection failed: %v", err)
	}
	defer database.Close(db)

	if err := database.Ping(db); err != nil {
		log.Fatalf("❌ Database ping failed: %v", err)
	}
	log.Printf("✅ Database connected successfully")

	// Redis is optional: without it the comment feed and presence are
	// skipped, the collaboration core still runs.
	var redisClient *cache.RedisClient
	var presenceManager *presence.Manager
	redisClient, err = cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Printf("⚠️ Redis unavailable, comment feed and presence disabled: %v", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		presenceManager = presence.NewManager(redisClient.Raw())
		log.Printf("✅ Redis connected (comment feed + presence)")
	}

	canvasStore := storage.NewCanvasStore(db)

	collabHub := hub.New(canvasStore, redisClient, hub.Options{
		RoomBufferSize: cfg.Collab.RoomBufferSize,
		PersistTimeout: cfg.Collab.PersistTimeout,
	})

	serverID, _ := os.Hostname()
	collabWS := handler.NewCollabWSHandler(collabHub, presenceManager, cfg, serverID)
	canvas := handler.NewCanvasHandler(canvasStore, redisClient)
	health := handler.NewHealthHandler(db, redisClient)

	var presenceReader handler.PresenceReader
	if presenceManager != nil {
		presenceReader = presenceManager
	}
	presenceH := handler.NewPresenceHandler(presenceReader)

	jwtManager := auth.NewJWTManager(
		cfg.Auth.JWTSecret,
		cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenExpiry,
	)

	srv := server.New(cfg, jwtManager, collabWS, canvas, presenceH, health)
	srv.SetupMiddleware()
	srv.SetupRoutes()

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
