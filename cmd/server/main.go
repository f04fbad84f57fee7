package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"

	"github.com/ammar1510/huddle/internal/api"
	"github.com/ammar1510/huddle/internal/auth"
	"github.com/ammar1510/huddle/internal/config"
	"github.com/ammar1510/huddle/internal/database"
	"github.com/ammar1510/huddle/internal/friends"
	"github.com/ammar1510/huddle/internal/logger"
	"github.com/ammar1510/huddle/internal/metrics"
	"github.com/ammar1510/huddle/internal/profiles"
	"github.com/ammar1510/huddle/internal/realtime"
	"github.com/ammar1510/huddle/internal/session"
	internalWs "github.com/ammar1510/huddle/internal/websocket"
)

var log = logger.New("server")

var logLevels = map[string]int{
	"debug": logger.LevelDebug,
	"info":  logger.LevelInfo,
	"warn":  logger.LevelWarn,
	"error": logger.LevelError,
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Error("Invalid configuration: %v", err)
		os.Exit(1)
	}

	// Log to both console and file
	logFile, err := os.OpenFile(cfg.Logs.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		log.Error("Failed to open log file: %v", err)
		os.Exit(1)
	}
	defer logFile.Close()
	logger.SetOutput(io.MultiWriter(os.Stdout, logFile))
	if level, ok := logLevels[cfg.Logs.Level]; ok {
		logger.SetMinLevel(level)
	}

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	auth.InitJWTKey([]byte(cfg.Auth.JWTSecret))

	store, err := database.NewDatabase(database.DatabaseType(cfg.Database.Type), cfg.Database.URL)
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("Connected to %s database successfully", cfg.Database.Type)

	if cfg.Env == "development" {
		if err := store.Migrate(context.Background()); err != nil {
			log.Warn("Schema migration failed: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker, err := realtime.Open(ctx, cfg, store.DB.DB)
	if err != nil {
		log.Error("Failed to start %s realtime broker: %v", cfg.Realtime.Driver, err)
		os.Exit(1)
	}
	defer broker.Close()
	log.Info("Realtime driver: %s", cfg.Realtime.Driver)

	// Writes publish change events so sessions on this gateway see them
	db := database.WithEvents(store, broker)

	var directory *profiles.Directory
	if cfg.Realtime.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Realtime.RedisURL)
		if err != nil {
			opts = &redis.Options{Addr: cfg.Realtime.RedisURL}
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		directory = profiles.NewDirectory(db, rdb, cfg.Cache.ProfileTTL, cfg.Database.StoreTimeout)
	} else {
		directory = profiles.NewDirectory(db, nil, cfg.Cache.ProfileTTL, cfg.Database.StoreTimeout)
	}
	friendService := friends.NewService(db, cfg.Database.StoreTimeout)

	wsManager := internalWs.NewManager(session.Deps{
		DB:       db,
		Broker:   broker,
		Profiles: directory,
		Friends:  friendService,
		Timeout:  cfg.Database.StoreTimeout,
	}, cfg.HTTP.AllowedOrigins)
	go wsManager.Run()

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), metrics.Middleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.HTTP.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	messageHandler := api.NewMessageHandler(db, friendService, cfg.Database.StoreTimeout)
	profileHandler := api.NewProfileHandler(directory)
	friendHandler := api.NewFriendHandler(friendService)
	feedHandler := api.NewFeedHandler(db, cfg.Database.StoreTimeout)

	authorized := router.Group("/api")
	authorized.Use(api.AuthMiddleware())
	{
		authorized.GET("/profiles/me", profileHandler.GetMe)
		authorized.PUT("/profiles/me", profileHandler.UpdateMe)
		authorized.GET("/profiles/id/:userID", profileHandler.GetProfile)
		authorized.GET("/profiles/username/:username", profileHandler.GetByUsername)
		authorized.GET("/profiles", profileHandler.Search)

		authorized.GET("/friends", friendHandler.ListFriends)
		authorized.GET("/friends/requests", friendHandler.ListRequests)
		authorized.POST("/friends/requests", friendHandler.SendRequest)
		authorized.POST("/friends/requests/:requestID/accept", friendHandler.AcceptRequest)
		authorized.POST("/friends/requests/:requestID/reject", friendHandler.RejectRequest)

		authorized.GET("/conversations", messageHandler.ListConversations)
		authorized.POST("/messages", messageHandler.SendMessage)
		authorized.GET("/messages/:peerID", messageHandler.GetConversation)
		authorized.PUT("/messages/:peerID/read", messageHandler.MarkRead)
		authorized.DELETE("/messages/:peerID", messageHandler.DeleteConversation)

		authorized.GET("/posts", feedHandler.ListPosts)
		authorized.POST("/posts", feedHandler.CreatePost)
		authorized.GET("/room", feedHandler.ListRoomMessages)
		authorized.POST("/room", feedHandler.PostRoomMessage)
	}

	// Browsers cannot set headers on the upgrade request
	router.GET("/ws", api.TokenAuthMiddleware(), wsManager.HandleWebSocket)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("Server starting on port %s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown: %v", err)
	}
	wsManager.Shutdown()

	log.Info("Server exited properly")
}
