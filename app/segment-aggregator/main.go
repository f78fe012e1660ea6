package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"

	"github.com/metromind/metromind/app/segment-aggregator/aggregator"
	"github.com/metromind/metromind/foundation/database"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "SEGMENT_AGGREGATOR : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
	if err := run(log); err != nil {
		log.Printf("main: error: %v", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var cfg struct {
		conf.Version
		Args conf.Args
		DB   struct {
			User       string `conf:"default:postgres"`
			Password   string `conf:"default:postgres,noprint"`
			Host       string `conf:"default:0.0.0.0"`
			Name       string `conf:"default:postgres"`
			DisableTLS bool   `conf:"default:true"`
		}
		Stats struct {
			WindowSize            int `conf:"default:200"`
			MinimumSampleCount    int `conf:"default:5"`
			CoverageReportSeconds int `conf:"default:300"`
			LowCoverageThreshold  int `conf:"default:5"`
		}
		NATS struct {
			Url     string `conf:"default:nats://localhost:4222"`
			Subject string `conf:"default:segment-observations"`
		}
		Web struct {
			Port int `conf:"default:8081"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Aggregate segment travel times and answer estimate queries"
	const prefix = "AGGREGATOR"
	if err := conf.Parse(os.Args[1:], prefix, &cfg); err != nil {
		switch err {
		case conf.ErrHelpWanted:
			usage, err := conf.Usage(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage)
			return nil
		case conf.ErrVersionWanted:
			version, err := conf.VersionString(prefix, &cfg)
			if err != nil {
				return fmt.Errorf("generating config version: %w", err)
			}
			fmt.Println(version)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Stats.WindowSize < 1 {
		return fmt.Errorf("stats window size must be at least 1, got %d", cfg.Stats.WindowSize)
	}
	if cfg.Stats.MinimumSampleCount < 1 {
		return fmt.Errorf("minimum sample count must be at least 1, got %d", cfg.Stats.MinimumSampleCount)
	}
	if cfg.Stats.CoverageReportSeconds < 1 {
		return fmt.Errorf("coverage report interval must be at least 1 second, got %d", cfg.Stats.CoverageReportSeconds)
	}

	// =========================================================================
	// App Starting

	log.Printf("main : Started : Application initializing : version %s", build)
	defer log.Println("main: Completed")

	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Printf("main: Config :\n%v\n", out)

	// =========================================================================
	// Start Database

	log.Println("main: Initializing database support")

	db, err := database.Open(database.Config{
		User:       cfg.DB.User,
		Password:   cfg.DB.Password,
		Host:       cfg.DB.Host,
		Name:       cfg.DB.Name,
		DisableTLS: cfg.DB.DisableTLS,
	})
	if err != nil {
		return fmt.Errorf("connecting to db: %w", err)
	}
	defer func() {
		log.Printf("main: Database Stopping : %s", cfg.DB.Host)
		err = db.Close()
		if err != nil {
			log.Printf("main: error closing database: %v", err)
		}
	}()

	// =========================================================================
	// Start NATS

	log.Printf("main: Connecting to NATS at %s", cfg.NATS.Url)
	natsConn, err := nats.Connect(cfg.NATS.Url)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer natsConn.Close()

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	return aggregator.StartSegmentAggregator(log, db, shutdown, natsConn, aggregator.Conf{
		WindowSize:            cfg.Stats.WindowSize,
		MinimumSampleCount:    cfg.Stats.MinimumSampleCount,
		CoverageReportSeconds: cfg.Stats.CoverageReportSeconds,
		LowCoverageThreshold:  cfg.Stats.LowCoverageThreshold,
		NatsSubject:           cfg.NATS.Subject,
		WebPort:               cfg.Web.Port,
	})
}
