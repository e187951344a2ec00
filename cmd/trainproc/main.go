package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/beamline-data/trainproc/internal/bridge"
	"github.com/beamline-data/trainproc/internal/config"
	"github.com/beamline-data/trainproc/internal/monitor"
	"github.com/beamline-data/trainproc/internal/storage"
	"github.com/beamline-data/trainproc/internal/train/aggregator"
	"github.com/beamline-data/trainproc/internal/train/assembler"
	"github.com/beamline-data/trainproc/internal/train/model"
	"github.com/beamline-data/trainproc/internal/train/pipeline"
	"github.com/beamline-data/trainproc/internal/train/tasks"
	"github.com/beamline-data/trainproc/internal/version"
)

var (
	configPath = flag.String("config", config.DefaultConfigPath, "Path to the tuning config file")
	endpoint   = flag.String("endpoint", "", "Bridge endpoint override (e.g. tcp://10.253.0.53:45454)")
	dbFile     = flag.String("db", "", "Path to the SQLite database file (overrides config)")
	listen     = flag.String("listen", "", "Monitor HTTP listen address (overrides config)")
	migrations = flag.String("migrations", "internal/storage/migrations", "Path to the migration files")
	verbose    = flag.Bool("verbose", false, "Enable diagnostic logging")
)

func main() {
	flag.Parse()

	log.Printf("trainproc %s (%s)", version.Version, version.GitSHA)

	cfg, err := config.LoadTuningConfig(*configPath)
	if err != nil {
		log.Fatalf("failed to load config %s: %v", *configPath, err)
	}
	if *endpoint != "" {
		cfg.BridgeEndpoint = endpoint
	}
	if *dbFile != "" {
		cfg.DatabasePath = dbFile
	}
	if *listen != "" {
		cfg.MonitorAddr = listen
	}

	var diag io.Writer
	if *verbose {
		diag = os.Stderr
	}
	pipeline.SetLogWriters(os.Stderr, diag, nil)
	tasks.SetLogWriters(os.Stderr, diag)
	bridge.SetLogWriters(os.Stderr, nil)
	monitor.SetLogWriters(os.Stderr, diag)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.GetDatabasePath())
	if err != nil {
		log.Fatalf("failed to open database %s: %v", cfg.GetDatabasePath(), err)
	}
	defer db.Close()
	if err := db.MigrateUp(*migrations); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	session, err := db.StartSession(cfg.GetDetectorDevice())
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}
	log.Printf("started session %s for %s", session.ID, session.Detector)

	asm, err := assembler.NewStackAssembler([]assembler.Source{
		{DeviceID: cfg.GetDetectorDevice(), Property: cfg.GetDetectorProperty()},
	})
	if err != nil {
		log.Fatalf("failed to create assembler: %v", err)
	}
	agg := aggregator.NewBeamAggregator(cfg.GetXGMDevice(), cfg.GetXGMProperty())

	manager := model.NewManager()
	store := pipeline.NewStore(cfg.ToShared())

	trains, err := bridge.Stream(ctx, cfg.GetBridgeEndpoint(), cfg.GetBridgeQueue())
	if err != nil {
		log.Fatalf("failed to connect to bridge %s: %v", cfg.GetBridgeEndpoint(), err)
	}

	sched, err := pipeline.NewScheduler(trains, pipeline.SchedulerConfig{
		Assembler:  asm,
		Aggregator: agg,
		Chain:      tasks.NewDefaultChain(manager),
		Store:      store,
		Manager:    manager,
		QueueSize:  cfg.GetQueueSize(),
		Timeout:    cfg.GetTimeout(),
	})
	if err != nil {
		log.Fatalf("failed to create scheduler: %v", err)
	}

	mon := monitor.NewServer(cfg.GetMonitorAddr(), manager, store, sched)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("scheduler stopped: %v", err)
			stop()
		}
		log.Print("scheduler routine terminated")
	}()

	// drain processed trains into the database and the monitor feed
	wg.Add(1)
	go func() {
		defer wg.Done()
		for pt := range sched.Output() {
			mon.Publish(pt)
			if err := db.InsertTrain(session.ID, pt); err != nil {
				log.Printf("failed to persist train %d: %v", pt.TrainID, err)
			}
		}
		log.Print("persist routine terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mon.Run(ctx); err != nil {
			log.Printf("monitor server stopped: %v", err)
			stop()
		}
		log.Print("monitor routine terminated")
	}()

	wg.Wait()

	if err := db.EndSession(session.ID); err != nil {
		log.Printf("failed to end session %s: %v", session.ID, err)
	}
	log.Printf("graceful shutdown complete, processed=%d skipped=%d", sched.Processed(), sched.Skipped())
}
