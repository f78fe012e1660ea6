package main

import (
	"fmt"
	logger "log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ardanlabs/conf"
	"github.com/nats-io/nats.go"

	"github.com/metromind/metromind/app/segment-monitor/monitor"
	"github.com/metromind/metromind/business/data/routes"
	"github.com/metromind/metromind/foundation/database"
)

var build = "develop"

func main() {
	log := logger.New(os.Stdout, "SEGMENT_MONITOR : ", logger.LstdFlags|logger.Lmicroseconds|logger.Lshortfile)
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
		Feed struct {
			Type           string `conf:"default:siri"`
			Url            string `conf:"default:https://bustime.mta.info/api/siri/vehicle-monitoring.json"`
			ApiKey         string `conf:"default:,noprint"`
			LineRef        string
			DirectionRef   string
			DetailLevel    string `conf:"default:normal"`
			PollSeconds    int    `conf:"default:30"`
			TimeoutSeconds int    `conf:"default:60"`
		}
		Monitor struct {
			MinSegmentSeconds    int `conf:"default:10"`
			MaxSegmentSeconds    int `conf:"default:7200"`
			ExpireVehicleSeconds int `conf:"default:900"`
			QueueDepth           int `conf:"default:64"`
		}
		Store struct {
			BufferSize     int `conf:"default:1024"`
			RetryAttempts  int `conf:"default:5"`
			RetryBackoffMs int `conf:"default:500"`
		}
		NATS struct {
			Url     string `conf:"default:nats://localhost:4222"`
			Subject string `conf:"default:segment-observations"`
		}
		Web struct {
			Port int `conf:"default:8080"`
		}
	}
	cfg.Version.SVN = build
	cfg.Version.Desc = "Track vehicles over a live feed and record stop to stop travel times"
	const prefix = "MONITOR"
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

	if cfg.Feed.PollSeconds < 1 {
		return fmt.Errorf("feed poll interval must be at least 1 second, got %d", cfg.Feed.PollSeconds)
	}
	if cfg.Monitor.MinSegmentSeconds < 1 || cfg.Monitor.MaxSegmentSeconds <= cfg.Monitor.MinSegmentSeconds {
		return fmt.Errorf("segment duration bounds [%d, %d] are not a valid range",
			cfg.Monitor.MinSegmentSeconds, cfg.Monitor.MaxSegmentSeconds)
	}
	if cfg.Monitor.QueueDepth < 1 {
		return fmt.Errorf("vehicle queue depth must be at least 1, got %d", cfg.Monitor.QueueDepth)
	}
	if cfg.Store.BufferSize < 1 || cfg.Store.RetryAttempts < 1 {
		return fmt.Errorf("store buffer size %d and retry attempts %d must both be at least 1",
			cfg.Store.BufferSize, cfg.Store.RetryAttempts)
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
	// Route stop sequences for gap detection

	stopSequences, err := routes.LoadStopSequences(db)
	if err != nil {
		// tracking degrades gracefully without sequences: every stop change is
		// treated as an adjacent traversal
		log.Printf("main: unable to load route stop sequences, gap detection disabled: %v", err)
		stopSequences = routes.MakeStopSequences()
	} else {
		log.Printf("main: loaded stop sequences for %d route directions", stopSequences.KnownRoutes())
	}

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

	return monitor.RunSegmentMonitorLoop(log, db, natsConn, stopSequences, monitor.Config{
		Feed: monitor.FeedConfig{
			Type:           cfg.Feed.Type,
			Url:            cfg.Feed.Url,
			ApiKey:         cfg.Feed.ApiKey,
			LineRef:        cfg.Feed.LineRef,
			DirectionRef:   cfg.Feed.DirectionRef,
			DetailLevel:    cfg.Feed.DetailLevel,
			PollSeconds:    cfg.Feed.PollSeconds,
			TimeoutSeconds: cfg.Feed.TimeoutSeconds,
		},
		MinSegmentSeconds:    cfg.Monitor.MinSegmentSeconds,
		MaxSegmentSeconds:    cfg.Monitor.MaxSegmentSeconds,
		ExpireVehicleSeconds: cfg.Monitor.ExpireVehicleSeconds,
		QueueDepth:           cfg.Monitor.QueueDepth,
		StoreBufferSize:      cfg.Store.BufferSize,
		StoreRetryAttempts:   cfg.Store.RetryAttempts,
		StoreRetryBackoffMs:  cfg.Store.RetryBackoffMs,
		NatsSubject:          cfg.NATS.Subject,
		WebPort:              cfg.Web.Port,
	}, shutdown)
}
