package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"PrintStation/app/agent"
	"PrintStation/app/config"
	"PrintStation/app/database"
	"PrintStation/app/escpos"
	"PrintStation/app/services"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Load .env file if present (ignore error if it doesn't exist)
	godotenv.Load()

	logger := services.NewLoggerService()
	defer logger.RecoverPanic()
	defer logger.Close()

	if err := run(logger); err != nil {
		logger.LogFatal("Print station failed to start", err)
	}
}

func run(logger *services.LoggerService) error {
	cfg, err := loadOrCreateConfig(logger)
	if err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	// Backend database (print queue source of truth); migrations run
	// inside the initialization.
	if err := database.InitializeWithConfig(cfg); err != nil {
		return fmt.Errorf("backend database: %w", err)
	}
	defer database.Close()
	logger.LogInfo("Backend database connected")

	// Local station database (identity + print history)
	configPath, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	if err := database.InitializeLocalDB(filepath.Join(filepath.Dir(configPath), "station.db")); err != nil {
		return fmt.Errorf("local database: %w", err)
	}
	localDB := database.GetLocalDB()
	defer localDB.Close()

	deviceID, err := localDB.GetOrCreateDeviceID()
	if err != nil {
		return fmt.Errorf("device identity: %w", err)
	}
	logger.LogInfo("Station identity", "device: "+deviceID, "tenant: "+cfg.Station.TenantID)

	// Print agent transport
	var signer *agent.Signer
	if cfg.Agent.SigningURL != "" {
		signer = agent.NewSigner(cfg.Agent.SigningURL, cfg.Agent.SigningToken)
	}
	submitTimeout := time.Duration(cfg.Agent.SubmitTimeoutSeconds) * time.Second
	if submitTimeout <= 0 {
		submitTimeout = 30 * time.Second
	}
	client := agent.NewClient(cfg.Agent.URL, signer, submitTimeout)
	defer client.Close()

	state := services.NewStationState()
	state.SetActingAsPrintServer(cfg.Station.PrintServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Keep the transport state current; the listener reacts to reconnects
	go func() {
		defer logger.RecoverPanic()
		monitorTransport(ctx, client, state, logger)
	}()

	// Push channel (optional; reconciliation alone still delivers)
	var nc *nats.Conn
	if cfg.Realtime.NatsURL != "" {
		nc, err = nats.Connect(cfg.Realtime.NatsURL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				logger.LogWarning("NATS disconnected", fmt.Sprintf("%v", err))
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				logger.LogInfo("NATS reconnected")
			}),
		)
		if err != nil {
			logger.LogWarning("NATS unavailable, relying on reconciliation only", err.Error())
			nc = nil
		} else {
			defer nc.Drain()
		}
	}

	// Tenant print-server lease
	var lease services.Lease = services.StaticLease(true)
	if cfg.Station.PrintServer && cfg.Lease.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Lease.RedisAddr,
			Password: cfg.Lease.RedisPassword,
		})
		defer redisClient.Close()

		redisLease := services.NewRedisLease(redisClient, cfg.Station.TenantID, deviceID,
			time.Duration(cfg.Lease.TTLSeconds)*time.Second, logger)
		redisLease.Start()
		defer redisLease.Stop()
		lease = redisLease
	}

	store := services.NewGormJobStore(database.GetDB())
	router := services.NewPrintRouter(client, logger)
	fallback := services.NewFallbackRenderer(cfg.Printing.FallbackPrint, cfg.Printing.FallbackPrinter, logger)
	notifier := &services.LogNotifier{Logger: logger}

	// Each print attempt runs under a fresh config read so settings
	// changes apply to the next job, never halfway through one.
	snapshotConfig := func(ctx context.Context) (services.DispatchConfig, error) {
		current, err := config.LoadConfig()
		if err != nil {
			return services.DispatchConfig{}, fmt.Errorf("config snapshot: %w", err)
		}
		sectors, err := store.Sectors(ctx, current.Station.TenantID)
		if err != nil {
			return services.DispatchConfig{}, fmt.Errorf("sector snapshot: %w", err)
		}
		return services.DispatchConfig{
			KitchenPrinter:      current.Printing.KitchenPrinter,
			CashierPrinter:      current.Printing.CashierPrinter,
			Options:             printOptions(current.Printing),
			DuplicateKitchen:    current.Printing.DuplicateKitchen,
			OpenDrawerOnReceipt: current.Printing.OpenDrawerOnReceipt,
			Sectors:             sectors,
		}, nil
	}

	listener := services.NewQueueListener(store, router, fallback, state, lease, logger, notifier, localDB, nc, snapshotConfig, services.QueueListenerConfig{
		TenantID:       cfg.Station.TenantID,
		DeviceID:       deviceID,
		UnknownTypeTTL: time.Duration(cfg.Lease.UnknownTypeTTLHours) * time.Hour,
	})
	if err := listener.Start(); err != nil {
		return fmt.Errorf("queue listener: %w", err)
	}
	defer listener.Stop()

	apiPort := normalizeAPIPort(os.Getenv("STATUS_API_PORT"))

	statusServer := services.NewStatusAPIServer(apiPort, state, lease, client, localDB, listener, logger, cfg.Station.TenantID, deviceID)
	go func() {
		defer logger.RecoverPanic()
		if err := statusServer.Start(); err != nil {
			logger.LogError("Status API server stopped", err)
		}
	}()
	defer statusServer.Stop()

	announce := services.NewAnnounceService(apiPort, cfg.Station.TenantID, deviceID, logger)
	go func() {
		defer logger.RecoverPanic()
		if err := announce.Start(); err != nil {
			logger.LogWarning("mDNS announcement unavailable", err.Error())
		}
	}()
	defer announce.Stop()

	// Periodic local housekeeping
	go func() {
		defer logger.RecoverPanic()
		cleanupLoop(ctx, localDB, logger)
	}()

	logger.LogInfo("Print station running", "api: "+apiPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.LogInfo("Shutting down", "signal: "+sig.String())
	return nil
}

// normalizeAPIPort accepts both "9977" and ":9977" forms; http.Server
// and the mDNS port parse both need the leading colon.
func normalizeAPIPort(v string) string {
	if v == "" {
		return ":9977"
	}
	if !strings.HasPrefix(v, ":") {
		return ":" + v
	}
	return v
}

// loadOrCreateConfig loads config.json, creating the default on first run
func loadOrCreateConfig(logger *services.LoggerService) (*config.AppConfig, error) {
	exists, err := config.ConfigExists()
	if err != nil {
		return nil, err
	}
	if !exists {
		logger.LogInfo("No configuration found, creating default config.json")
		return config.CreateDefaultConfig()
	}
	return config.LoadConfig()
}

// printOptions maps the device print settings onto formatter options
func printOptions(p config.PrintingConfig) escpos.Options {
	return escpos.Options{
		PaperWidth:   string(p.PaperWidth),
		FontSize:     p.FontSize,
		LineSpacing:  p.LineSpacing,
		LeftMargin:   p.LeftMargin,
		TopMargin:    p.TopMargin,
		BottomMargin: p.BottomMargin,
		CharSpacing:  p.CharSpacing,
		ASCIIOnly:    p.ASCIIOnly,
		AutoCut:      p.AutoCut,
		LogoMode:     p.LogoMode,
		LogoMaxWidth: p.LogoMaxWidth,
	}
}

// monitorTransport keeps the agent connection alive and mirrors its
// state into the station snapshot.
func monitorTransport(ctx context.Context, client *agent.Client, state *services.StationState, logger *services.LoggerService) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	attempt := func() {
		if !client.Connected() {
			if err := client.Connect(ctx); err != nil {
				status := client.Status()
				if status.AgentNotRunning {
					logger.LogWarning("Print agent is not running on this machine")
				} else {
					logger.LogWarning("Print agent connection failed", err.Error())
				}
			}
		}
		state.SetTransportConnected(client.Connected())
	}

	attempt()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			attempt()
		}
	}
}

// cleanupLoop prunes old local print-history entries once a day
func cleanupLoop(ctx context.Context, localDB *database.LocalDB, logger *services.LoggerService) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := localDB.CleanOldEntries(30 * 24 * time.Hour); err != nil {
				logger.LogError("Local print-history cleanup failed", err)
			}
		}
	}
}
