package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lachee/reddit-download/internal/cache"
	"github.com/Lachee/reddit-download/internal/server"
	"github.com/Lachee/reddit-download/pkg/av"
	"github.com/Lachee/reddit-download/pkg/common"
	"github.com/Lachee/reddit-download/pkg/logger"
	"github.com/Lachee/reddit-download/pkg/proxy"
	"github.com/Lachee/reddit-download/pkg/reddit"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// proxyCacheBound is the largest payload the proxy persists to the store
const proxyCacheBound = 10 * 1024 * 1024

func main() {
	_ = godotenv.Load()
	logger.Init(os.Getenv("LOG_LEVEL"))
	defer func() { _ = logger.Sync() }()
	zap.S().Infof("reddit-download v%s", common.Version)
	if !av.Available() {
		zap.S().Warn("ffmpeg is not installed, muxed downloads are unavailable")
	}

	// The store holds the proxied media payloads. Without redis we fall
	// back to an in memory cache.
	ttl, _ := time.ParseDuration(os.Getenv("CACHE_TTL"))
	if ttl <= 0 {
		ttl = time.Hour
	}
	var store cache.Interface
	if redisAddress, redisPort := os.Getenv("REDIS_ADDRESS"), os.Getenv("REDIS_PORT"); redisAddress != "" && redisPort != "" {
		var err error
		store, err = cache.NewRedisCache(redisAddress+":"+redisPort, os.Getenv("REDIS_PASSWORD"))
		if err != nil {
			zap.S().Fatalw("cannot connect to redis", "error", err)
		}
	} else {
		store = cache.NewMemoryCache(10 * time.Minute)
	}
	defer store.Close()

	resolver := &reddit.Resolver{}
	creds := reddit.Credentials{
		ClientID:     os.Getenv("CLIENT_ID"),
		ClientSecret: os.Getenv("CLIENT_SECRET"),
		Username:     os.Getenv("BOT_USERNAME"),
		Password:     os.Getenv("BOT_PASSWORD"),
	}
	if creds.IsZero() {
		zap.S().Warn("no CLIENT_ID/CLIENT_SECRET set, nsfw and quarantined posts will not resolve")
	} else {
		resolver.Oauth = reddit.NewOauth(creds, &reddit.TokenCache{})
	}

	srv := &server.Server{
		Resolver: resolver,
		Proxy: &proxy.Proxy{
			Cache:        store,
			TTL:          ttl,
			MaxCacheSize: proxyCacheBound,
		},
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	httpServer := &http.Server{Addr: ":" + port, Handler: srv.Routes()}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.S().Fatalw("server error", "error", err)
		}
	}()
	zap.S().Infow("server starting", "port", port)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	zap.S().Info("shutdown signal received, draining connections")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		zap.S().Errorw("shutdown error", "error", err)
	}
}
