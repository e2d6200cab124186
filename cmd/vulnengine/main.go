// ABOUTME: Entry point for the vulnerability intelligence alerting engine.
// ABOUTME: Handles initialization, configuration parsing, and starts the HTTP server.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vigilsec/vulnengine/internal/alerts"
	"github.com/vigilsec/vulnengine/internal/analyzer"
	"github.com/vigilsec/vulnengine/internal/ext"
	"github.com/vigilsec/vulnengine/internal/kb"
	"github.com/vigilsec/vulnengine/internal/matcher"
	"github.com/vigilsec/vulnengine/internal/metrics"
	"github.com/vigilsec/vulnengine/internal/registry"
	"github.com/vigilsec/vulnengine/internal/server"
	"github.com/vigilsec/vulnengine/internal/sweep"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Port          int
	SweepInterval time.Duration
	SweepSchedule string
	RecordWindow  time.Duration
	KBFile        string
	AlertDBFile   string
	ECRRegion     string
	MockMode      bool
}

func main() {
	config := parseConfig()

	// Set up structured logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	if os.Getenv("LOG_LEVEL") == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
	}()

	engine, err := NewEngine(ctx, config, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create engine")
	}
	defer engine.Close()

	if err := engine.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start engine")
	}
}

func parseConfig() *Config {
	config := &Config{}

	flag.IntVar(&config.Port, "port", 8080, "Port to expose the API on")
	flag.DurationVar(&config.SweepInterval, "sweep-interval", 6*time.Hour, "Interval between matching sweeps")
	flag.StringVar(&config.SweepSchedule, "sweep-schedule", "", "Cron expression for sweep scheduling (overrides interval)")
	flag.DurationVar(&config.RecordWindow, "record-window", 90*24*time.Hour, "How far back published vulnerability records are considered")
	flag.StringVar(&config.KBFile, "kb-file", "", "Path to YAML file with vulnerability records and tracked packages")
	flag.StringVar(&config.AlertDBFile, "alert-db", "", "Path to the persistent alert database (in-memory if empty)")
	flag.StringVar(&config.ECRRegion, "ecr-region", "", "AWS region for ECR registry authentication")
	flag.BoolVar(&config.MockMode, "mock", false, "Enable mock mode with built-in sample data (no external API calls)")
	flag.Parse()

	// Override with environment variables if set
	if envPort := os.Getenv("PORT"); envPort != "" {
		if n, err := fmt.Sscanf(envPort, "%d", &config.Port); err != nil || n != 1 {
			log.Printf("Invalid PORT environment variable: %s", envPort)
		}
	}
	if envInterval := os.Getenv("SWEEP_INTERVAL"); envInterval != "" {
		if interval, err := time.ParseDuration(envInterval); err == nil {
			config.SweepInterval = interval
		}
	}
	if envSchedule := os.Getenv("SWEEP_SCHEDULE"); envSchedule != "" {
		config.SweepSchedule = envSchedule
	}
	if envWindow := os.Getenv("RECORD_WINDOW"); envWindow != "" {
		if window, err := time.ParseDuration(envWindow); err == nil {
			config.RecordWindow = window
		}
	}
	if envKBFile := os.Getenv("KB_FILE"); envKBFile != "" {
		config.KBFile = envKBFile
	}
	if envAlertDB := os.Getenv("ALERT_DB"); envAlertDB != "" {
		config.AlertDBFile = envAlertDB
	}
	if envRegion := os.Getenv("AWS_ECR_REGION"); envRegion != "" {
		config.ECRRegion = envRegion
	}
	if envMock := os.Getenv("MOCK_MODE"); envMock == "true" || envMock == "1" {
		config.MockMode = true
	}

	// Validate configuration
	if !config.MockMode && config.KBFile == "" {
		log.Fatal("Knowledge base file is required (unless using mock mode)")
	}

	return config
}

type Engine struct {
	config  *Config
	logger  *logrus.Logger
	sweeper *sweep.Sweeper
	server  *server.Server
	store   *alerts.BoltStore
}

func NewEngine(ctx context.Context, config *Config, logger *logrus.Logger) (*Engine, error) {
	logger.WithFields(logrus.Fields{
		"port":           config.Port,
		"sweep_interval": config.SweepInterval,
		"sweep_schedule": config.SweepSchedule,
		"mock":           config.MockMode,
	}).Info("Initializing alerting engine")

	clock := ext.NewSystemClock()

	var knowledgeBase kb.KnowledgeBase
	if config.MockMode {
		knowledgeBase = kb.NewMockKnowledgeBase(clock)
	} else {
		knowledgeBase = kb.NewFileKnowledgeBase(config.KBFile, logger)
	}

	var store alerts.Store
	var boltStore *alerts.BoltStore
	if config.AlertDBFile != "" {
		var err error
		boltStore, err = alerts.NewBoltStore(config.AlertDBFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open alert database: %w", err)
		}
		store = boltStore
	} else {
		store = alerts.NewMemoryStore()
	}

	var ecrProvider registry.ECRTokenProvider
	if config.ECRRegion != "" && !config.MockMode {
		provider, err := registry.NewECRAuthProvider(ctx, config.ECRRegion, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create ECR auth provider: %w", err)
		}
		ecrProvider = provider
	}

	broker := registry.NewAuthBroker(ecrProvider, clock, logger)
	fetcher := registry.NewFetcher(logger)
	imageAnalyzer := analyzer.NewAnalyzer(
		broker,
		fetcher,
		analyzer.NewHeuristicScanner(clock),
		analyzer.NewHeuristicBaseImageDetector(),
		clock,
		logger,
	)

	alertManager := alerts.NewManager(store, clock, ext.NewGoogleUUIDGenerator(), logger)
	vulnMatcher := matcher.NewMatcher(matcher.NewNumericComparator(), logger)

	sweeper, err := sweep.NewSweeper(knowledgeBase, vulnMatcher, alertManager, &sweep.Config{
		Interval:     config.SweepInterval,
		Schedule:     config.SweepSchedule,
		RecordWindow: config.RecordWindow,
	}, clock, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create sweeper: %w", err)
	}

	tenants := func() []string {
		names, err := knowledgeBase.Tenants(context.Background())
		if err != nil {
			logger.WithError(err).Error("Failed to list tenants for metrics")
			return nil
		}
		return names
	}

	var metricsHandler http.HandlerFunc = metrics.CreateMetricsHandler(tenants, alertManager, broker, sweeper, logger)

	apiServer := server.NewServer(
		config.Port,
		server.NewAlertsHandler(alertManager, logger),
		server.NewImagesHandler(imageAnalyzer, logger),
		metricsHandler,
		sweeper,
		logger,
	)

	return &Engine{
		config:  config,
		logger:  logger,
		sweeper: sweeper,
		server:  apiServer,
		store:   boltStore,
	}, nil
}

func (e *Engine) Start(ctx context.Context) error {
	go e.sweeper.Start(ctx)
	return e.server.Start(ctx)
}

func (e *Engine) Close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			e.logger.WithError(err).Error("Failed to close alert database")
		}
	}
}
