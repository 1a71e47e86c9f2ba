package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/Disc0-0/LOmanGUI-Full/internal/broadcast"
	"github.com/Disc0-0/LOmanGUI-Full/internal/config"
	"github.com/Disc0-0/LOmanGUI-Full/internal/fleet"
	fleethndlr "github.com/Disc0-0/LOmanGUI-Full/internal/http/handlers/fleet"
	mw "github.com/Disc0-0/LOmanGUI-Full/internal/http/middleware"
	"github.com/Disc0-0/LOmanGUI-Full/internal/logtail"
	"github.com/Disc0-0/LOmanGUI-Full/internal/notify"
	"github.com/Disc0-0/LOmanGUI-Full/internal/steam"
	"github.com/Disc0-0/LOmanGUI-Full/internal/supervisor"
	"github.com/Disc0-0/LOmanGUI-Full/internal/tilename"
)

type Config struct {
	ListenAddr  string `yaml:"listen_address"`
	Port        string `yaml:"port"`
	FleetConfig string `yaml:"fleet_config"`
	NameStore   string `yaml:"name_store"`
	ModsStore   string `yaml:"mods_store"`
}

var serverConfig *Config

func init() {
	// Handle version display
	handleVersion()
}

func main() {
	// Read env
	isDev := os.Getenv("ENV") == "dev"

	// Load config
	if err := loadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Create Zap logger
	log := buildLogger()
	defer log.Sync()
	log = log.Named("main")

	fleetCfg, err := config.LoadFleet(serverConfig.FleetConfig)
	if err != nil {
		log.Fatal("fleet config load failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tile-name discovery: tail the game logs, learn server_id → tile_name.
	registry := tilename.NewRegistry(log, serverConfig.NameStore)
	tailer := logtail.New(log)
	scanner := tilename.NewScanner(log, fleetCfg.LogDir(), tailer, registry)
	go scanner.Run(ctx)

	// Notifications and supervision.
	webhook := notify.NewWebhook(log, fleetCfg.ServerStatusWebhook, registry)
	bufs := supervisor.NewBufferManager()
	runners := make([]fleet.TileRunner, 0, fleetCfg.TileNum)
	for _, tile := range fleetCfg.Tiles() {
		runners = append(runners, supervisor.New(log, tile, webhook, bufs.Get(tile.Index)))
	}

	// Steam collaborators.
	steamcmd := steam.NewCmdRunner(log, fleetCfg.SteamCmdPath)
	workshop := steam.NewWorkshopClient(log)
	checker := steam.NewChecker(log, workshop, serverConfig.ModsStore)
	installer := steam.NewInstaller(log, steamcmd, fleetCfg.ModsDir(), serverConfig.ModsStore)
	caster := broadcast.NewWriter(log, fleetCfg)

	ctl := fleet.New(log, fleetCfg, runners, steamcmd, checker, installer, caster, webhook, registry)

	// Bring the fleet up through a full cycle so the binary and mods are
	// current before the first tile launches.
	go func() {
		if err := ctl.RestartCycle(ctx, "Fleet starting", 0); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("initial fleet cycle failed", zap.Error(err))
		}
	}()
	go func() {
		if err := ctl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("maintenance loop failed", zap.Error(err))
		}
	}()

	// Create Gin router
	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}
	gin.DefaultWriter = zap.NewStdLog(log.Named("gin")).Writer() // Configure Gin's logger to use Zap
	r := gin.New()

	// Apply Gin middlewares
	{
		r.Use(gin.Recovery()) // Recovery first (outermost)
		r.Use(mw.RequestID()) // Attach request ID for tracing; early in the chain so it's available everywhere

		if isDev { // Enable CORS for local Vite dev
			r.Use(cors.New(cors.Config{
				AllowOrigins:     []string{"http://localhost:5173", "http://localhost:4173", "http://localhost:3000", "http://127.0.0.1:3000"},
				AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
				AllowHeaders:     []string{"X-Request-ID", "Content-Type", "Authorization"},
				ExposeHeaders:    []string{"X-Request-ID"},
				AllowCredentials: true,
				MaxAge:           12 * time.Hour,
			}))
		} else { // Behind Nginx + TLS
			r.SetTrustedProxies([]string{"127.0.0.1"})
			r.Use(secure.New(secure.Config{
				SSLProxyHeaders: map[string]string{
					"X-Forwarded-Proto": "https", // Fix scheme for secure cookies
				},
			}))
		}

		r.Use(accessLog(log))
		r.Use(mw.LimitConcurrentRequests(64)) // restart cycles make some endpoints slow; shed excess load

		r.Use(func(c *gin.Context) {
			// Enforce a hard 10MB max request body.
			// Protects against oversized or drip-fed request body ("slow body" / RUDY DoS)
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, 10<<20)
			c.Next()
		})
	}

	// Register route handlers
	{
		r.GET("/api/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "pong"}) })

		h := fleethndlr.NewFleetHandler(log, ctl, registry)

		// --- Fleet ---
		r.GET("/api/fleet/status", h.GetStatus)
		r.POST("/api/fleet/start", h.StartFleet)
		r.POST("/api/fleet/stop", h.StopFleet)
		r.POST("/api/fleet/restart", h.RestartCycle)

		// --- Tiles ---
		r.POST("/api/tiles/:id/start", h.StartTile)
		r.POST("/api/tiles/:id/stop", h.StopTile)
		r.GET("/api/tiles/:id/logs", h.GetTileLogs)
		r.GET("/api/tiles/names", h.GetNames)

		// --- Admin ---
		r.POST("/api/admin/message", h.SendAdminMessage)
	}

	httpsrv := &http.Server{
		Addr:              serverConfig.ListenAddr + ":" + serverConfig.Port,
		Handler:           r,
		ReadHeaderTimeout: 2 * time.Second,  // kills header-drip Slowloris
		ReadTimeout:       10 * time.Second, // full request read (incl. body)
		WriteTimeout:      15 * time.Second, // avoid forever-hangs on writes
		IdleTimeout:       60 * time.Second, // keep-alive cap
		MaxHeaderBytes:    1 << 20,          // 1MB cap
	}

	go func() {
		log.Info("running HTTP server", zap.String("addr", httpsrv.Addr))
		if err := httpsrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpsrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := ctl.Shutdown(shutdownCtx); err != nil {
		log.Error("fleet shutdown", zap.Error(err))
	}
	log.Info("server closed")
}

// handleVersion prints build metadata and exits when -v/--version is provided.
func handleVersion() {
	v := flag.Bool("v", false, "print version and exit")
	flag.BoolVar(v, "version", false, "print version and exit")
	flag.Parse()

	if *v {
		fmt.Printf("loman %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildDate)
		os.Exit(0)
	}
}

// accessLog is a Gin middleware that records HTTP request/response details with Zap after handling.
func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		latency := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		// collect all errors from Gin context
		var errs []error
		for _, ge := range c.Errors {
			if ge.Err != nil {
				errs = append(errs, ge.Err)
			}
		}
		// errors.Join returns nil if errs is empty
		joinedErr := errors.Join(errs...)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Duration("latency", latency),
		}
		if joinedErr != nil {
			fields = append(fields, zap.Error(joinedErr))
		}

		switch {
		case status >= 500:
			log.Error("request", fields...)
		case status >= 400:
			log.Warn("request", fields...)
		default:
			log.Info("request", fields...)
		}
	}
}

// helpers

func buildLogger() *zap.Logger {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.TimeKey = ""
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.DisableStacktrace = true
	logConfig.DisableCaller = true
	logConfig.Level.SetLevel(zap.DebugLevel)
	return zap.Must(logConfig.Build())
}

func loadConfig() error {
	data, err := os.ReadFile("loman.yaml")
	if err != nil {
		return err
	}

	if err := yaml.Unmarshal(data, &serverConfig); err != nil {
		return err
	}
	if serverConfig.Port == "" {
		serverConfig.Port = "8080"
	}
	if serverConfig.FleetConfig == "" {
		serverConfig.FleetConfig = "config.json"
	}
	if serverConfig.NameStore == "" {
		serverConfig.NameStore = "tile_mappings.json"
	}
	if serverConfig.ModsStore == "" {
		serverConfig.ModsStore = "mods_info.json"
	}
	return nil
}
