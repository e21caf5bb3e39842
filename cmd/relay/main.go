package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"meta-pixel-relay/internal/capi"
	"meta-pixel-relay/internal/config"
	"meta-pixel-relay/internal/dedup"
	"meta-pixel-relay/internal/httpx"
	"meta-pixel-relay/internal/logx"
	"meta-pixel-relay/internal/track"
	"meta-pixel-relay/pkg/dispatch"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	log.Printf("starting pixel relay on %s", cfg.ListenAddr)

	logger := logx.New(cfg.LogPath, cfg.Settings().EnableLogging, cfg.LogMaxBytes, cfg.LogKeepLines)
	client := capi.New(logger)
	client.HTTPClient.Timeout = cfg.SendTimeout

	var delivery track.Sender
	var dispatcher *dispatch.Dispatcher
	if cfg.AsyncDelivery {
		dispatcher = dispatch.New(client, cfg.QueueSize, 3*cfg.SendTimeout, logger)
		delivery = dispatcher
	}

	tracker := track.New(cfg, client, delivery, dedup.NewMemoryMarkerStore(), logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(httpx.NewHTTPMetrics("relay").Handler())
	router.Use(httpx.CORSMiddleware(cfg.CORSAllowOrigins))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := &handlers{cfg: cfg, tracker: tracker, logger: logger}
	h.register(router)

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("relay server failed: %v", err)
		}
	}()

	graceful(server)
	if dispatcher != nil {
		dispatcher.Close()
	}
	log.Println("relay shutdown complete")
}

func graceful(server *http.Server) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("shutting down pixel relay...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
