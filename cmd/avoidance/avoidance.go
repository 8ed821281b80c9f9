// Command avoidance runs the stereo obstacle-avoidance engine: stereo depth,
// detection fusion, collision and road risk, time-to-contact and the brake
// decision, with HTTP monitoring, sqlite recording and optional radar input.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"sync"
	"syscall"

	"github.com/banshee-data/obstacle.report/internal/actuate"
	"github.com/banshee-data/obstacle.report/internal/alerts"
	"github.com/banshee-data/obstacle.report/internal/config"
	"github.com/banshee-data/obstacle.report/internal/db"
	"github.com/banshee-data/obstacle.report/internal/monitor"
	"github.com/banshee-data/obstacle.report/internal/monitoring"
	"github.com/banshee-data/obstacle.report/internal/radarlink"
	"github.com/banshee-data/obstacle.report/internal/timeutil"
	"github.com/banshee-data/obstacle.report/internal/version"
	"github.com/banshee-data/obstacle.report/internal/vision/l5decision"
	"github.com/banshee-data/obstacle.report/internal/vision/pipeline"
)

var (
	listen     = flag.String("listen", ":8080", "HTTP listen address")
	configPath = flag.String("config", "", "JSON config overlay (defaults apply when empty)")
	dbFile     = flag.String("db", "obstacle_data.db", "SQLite database file (empty disables recording)")
	radarUDP   = flag.String("radar-udp", "", "UDP address for radar observations, e.g. :4040")
	radarDev   = flag.String("radar-serial", "", "serial device for radar observations, e.g. /dev/ttyUSB0")
	redisAddr  = flag.String("redis", "", "redis address for alert publication, e.g. localhost:6379")
	plcAddr    = flag.String("plc", "", "Siemens PLC IP for brake actuation")
	egoSpeed   = flag.Float64("ego-speed", 0, "ego vehicle speed in m/s")
	devMode    = flag.Bool("dev", false, "run against a synthetic stereo scene")
)

// multiRecorder fans cycle results out to every sink; the first error wins
// but later sinks still run.
type multiRecorder struct {
	mu    sync.Mutex
	sinks []pipeline.CycleRecorder
}

func (m *multiRecorder) add(r pipeline.CycleRecorder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, r)
}

func (m *multiRecorder) RecordCycle(result *pipeline.CycleResult) error {
	m.mu.Lock()
	sinks := append([]pipeline.CycleRecorder(nil), m.sinks...)
	m.mu.Unlock()

	var first error
	for _, s := range sinks {
		if err := s.RecordCycle(result); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func main() {
	flag.Parse()

	monitoring.Logf("obstacle avoidance engine %s", version.String())

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Brake path: decision layer dispatches to the PLC when one is
	// configured; the directive log is always attached.
	brake := l5decision.NewBrakeInterface()
	if err := brake.RegisterHandler(func(d l5decision.BrakeDirective) {
		monitoring.Logf("brake: engaged=%v level=%.2f reason=%s", d.ShouldBrake, d.BrakeLevel, d.Reason)
	}); err != nil {
		log.Fatalf("brake log handler: %v", err)
	}
	if *plcAddr != "" {
		plc := actuate.NewSiemensPLC(*plcAddr)
		if err := plc.Connect(); err != nil {
			monitoring.Logf("plc unreachable, will retry on first directive: %v", err)
		}
		defer plc.Disconnect()
		if err := brake.RegisterHandler(actuate.NewActuator(plc).Handler()); err != nil {
			log.Fatalf("plc handler: %v", err)
		}
	}

	coordinator := l5decision.NewCoordinator(cfg.Radar, cfg.Decision, brake)

	var publisher alerts.Publisher = alerts.LogPublisher{}
	if *redisAddr != "" {
		redisPub := alerts.NewRedisPublisher(*redisAddr, "obstacle.alerts")
		defer redisPub.Close()
		publisher = redisPub
	}

	recorder := &multiRecorder{}
	var (
		database *db.DB
		runID    string
	)
	if *dbFile != "" {
		var err error
		database, err = db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("database: %v", err)
		}
		defer database.Close()

		dbRec, err := db.NewRecorder(database, cfg)
		if err != nil {
			log.Fatalf("recorder: %v", err)
		}
		runID = dbRec.RunID()
		recorder.add(dbRec)
		monitoring.Logf("recording run %s to %s", runID, *dbFile)
	}

	var source pipeline.StereoSource
	var detector pipeline.Detector
	if *devMode {
		scene := newSyntheticScene(cfg.Camera, cfg.Pipeline.CycleBudget)
		source = scene
		detector = scene
		monitoring.Logf("dev mode: synthetic approach scene")
	} else {
		log.Fatal("no capture source wired; run with -dev or attach a StereoSource")
	}

	engine, err := pipeline.NewEngine(pipeline.EngineOptions{
		Config:      cfg,
		Detector:    detector,
		Coordinator: coordinator,
		Alerts:      publisher,
		Recorder:    recorder,
	})
	if err != nil {
		log.Fatalf("engine: %v", err)
	}
	engine.SetEgoSpeed(*egoSpeed)

	web := monitor.NewWebServer(monitor.WebServerConfig{
		Address: *listen,
		Engine:  engine,
		Config:  cfg,
		DB:      database,
		RunID:   runID,
	})
	recorder.add(web)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := web.Start(ctx); err != nil {
			monitoring.Logf("web server: %v", err)
		}
	}()

	if *radarUDP != "" {
		udp, err := radarlink.ListenUDP(*radarUDP, coordinator, timeutil.RealClock{})
		if err != nil {
			log.Fatalf("radar udp: %v", err)
		}
		monitoring.Logf("radar observations on udp %s", udp.Addr())
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := udp.Serve(ctx); err != nil && ctx.Err() == nil {
				monitoring.Logf("radar udp: %v", err)
			}
		}()
	}

	if *radarDev != "" {
		port, err := radarlink.OpenSerialPort(*radarDev, radarlink.DefaultPortMode())
		if err != nil {
			log.Fatalf("radar serial: %v", err)
		}
		link := radarlink.NewLink(port, coordinator, timeutil.RealClock{})
		monitoring.Logf("radar observations on serial %s", *radarDev)
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Closing the port is what unblocks Monitor's read loop.
			go func() {
				<-ctx.Done()
				link.Close()
			}()
			if err := link.Monitor(ctx); err != nil && ctx.Err() == nil {
				monitoring.Logf("radar serial: %v", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := engine.Run(ctx, source); err != nil && ctx.Err() == nil {
			monitoring.Logf("engine: %v", err)
		}
	}()

	<-ctx.Done()
	monitoring.Logf("shutting down")
	wg.Wait()

	stats := engine.Stats()
	monitoring.Logf("run complete: %d cycles, %d dropped, avg %.1f ms",
		stats.Frames, stats.Dropped, stats.AvgCycleMs)
}
