package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ranobepub/internal/app"
	"ranobepub/internal/auth"
	"ranobepub/internal/jobs"
	"ranobepub/internal/library"
	"ranobepub/internal/notify"
	synchub "ranobepub/internal/sync"
	"ranobepub/pkg/utils"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := utils.LoadConfig(configPath)
	if err != nil {
		return err
	}
	logger, err := utils.NewLogger(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	a, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	hub := synchub.NewHub(0)
	// jobs report to both the log and the progress hub
	reg := jobs.NewRegistry(jobs.FromConverter(a.Converter), notify.Fanout{notify.Log{Logger: logger}, hub}, logger)
	defer reg.Close()
	reg.Retention = cfg.JobRetention()
	reg.MaxJobs = cfg.Server.MaxJobs
	// evicted jobs take their progress room with them
	reg.OnEvict = hub.Forget
	go reg.Sweep(time.Minute)

	tokens := auth.TokenService{
		Secret:   []byte(cfg.Server.JWTSecret),
		Issuer:   cfg.Server.JWTIssuer,
		Duration: cfg.JWTDuration(),
	}

	router := newRouter(a, hub, reg, tokens, logger)
	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	tcpSrv := synchub.NewServer(cfg.Server.SyncAddr, hub)
	tcpSrv.Logger = logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tcpSrv.Run(ctx); err != nil {
			errCh <- fmt.Errorf("tcp sync: %w", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("http api listening", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-errCh:
		logger.Error("server error", "error", runErr)
		stop()
	}

	logger.Info("shutting down servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", "error", err)
	}
	wg.Wait()
	logger.Info("servers stopped")
	return runErr
}

func newRouter(a *app.App, hub *synchub.Hub, reg *jobs.Registry, tokens auth.TokenService, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		stats := hub.Stats()
		body := gin.H{
			"status":      "ready",
			"tcp_clients": stats.TCPClients,
			"ws_clients":  stats.WSClients,
			"db":          "disabled",
		}
		if a.DB != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := a.DB.PingContext(ctx); err != nil {
				body["status"] = "not_ready"
				body["db_error"] = err.Error()
				c.JSON(http.StatusServiceUnavailable, body)
				return
			}
			body["db"] = "ok"
		}
		c.JSON(http.StatusOK, body)
	})

	router.GET("/ws", synchub.WSHandler(hub, logger))
	router.GET("/events", synchub.HistoryHandler(hub))

	root := router.Group("")
	jobs.NewHandler(reg).RegisterRoutes(root, auth.AuthMiddleware(tokens))
	if a.History != nil {
		library.NewHandler(a.History).RegisterRoutes(root)
	}
	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	logger = logger.With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
