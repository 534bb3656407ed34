package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"

	"github.com/acqlab/instrumentd/pkg/api"
	"github.com/acqlab/instrumentd/pkg/channel"
	"github.com/acqlab/instrumentd/pkg/config"
	"github.com/acqlab/instrumentd/pkg/device"
	"github.com/acqlab/instrumentd/pkg/gate"
	"github.com/acqlab/instrumentd/pkg/logging"
	"github.com/acqlab/instrumentd/pkg/measure"
	"github.com/acqlab/instrumentd/pkg/metrics"
	"github.com/acqlab/instrumentd/pkg/operator"
	"github.com/acqlab/instrumentd/pkg/profile"
	"github.com/acqlab/instrumentd/pkg/ratelimit"
	"github.com/acqlab/instrumentd/pkg/shutdown"
	"github.com/acqlab/instrumentd/pkg/store"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "instrumentd",
	Short: "Laboratory instrument control daemon",
	Long:  `instrumentd controls laboratory instruments through asynchronous operators, coordinates measurement runs over completion gates, and exposes an HTTP control surface.`,
	RunE:  run,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "path to config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	log := logging.New(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)
	log.Info("starting instrumentd", logging.Fields{"listen": cfg.ListenAddr})

	sd := shutdown.New(cfg.ShutdownTimeout, log)

	// Persistence
	var st store.Store
	if cfg.DBPath != "" {
		sqliteStore, err := store.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			return err
		}
		st = sqliteStore
		log.Info("using sqlite store", logging.Fields{"path": cfg.DBPath})
	} else {
		st = store.NewMemoryStore()
		log.Info("using in-memory store")
	}
	sd.Register("store", shutdown.CloseResource(st))

	// Core plumbing: the two process gates, the dispatch loop and the
	// metrics recorder watching them
	runGate := gate.New("run")
	stepGate := gate.New("step")
	rec := metrics.NewRecorder(runGate, stepGate)

	loop := operator.NewLoop(cfg.DispatchBuffer)
	loop.Start()
	sd.Register("dispatch loop", func(ctx context.Context) error {
		loop.Stop()
		return nil
	})

	hub := channel.NewHub()
	registry := device.NewRegistry(hub)
	manager := device.NewManager(loop, runGate, log, rec)
	sd.Register("devices", func(ctx context.Context) error {
		manager.Shutdown()
		return nil
	})

	controller := measure.NewController(runGate, stepGate, st, log)
	controller.SetRecorder(rec)

	// Attach the profile devices before accepting requests
	if cfg.ProfilePath != "" {
		if err := activateProfile(cfg.ProfilePath, registry, manager, log); err != nil {
			return err
		}
	}

	// HTTP surface
	handler := api.NewHandler(controller, manager, registry, st,
		[]*gate.Gate{runGate, stepGate}, hub, rec.Handler(), log)

	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	limiter := ratelimit.NewLimiter(cfg.RateRPS, cfg.RateBurst)
	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     limiter.Middleware(ratelimit.IPKeyFunc)(router),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	sd.Register("http server", srv.Shutdown)

	go func() {
		log.Info("api listening", logging.Fields{"addr": cfg.ListenAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", logging.Fields{"error": err.Error()})
		}
	}()

	sd.Wait()
	return nil
}

// activateProfile attaches every device a profile declares and waits for
// each to settle. A device that fails to come up aborts startup.
func activateProfile(path string, registry *device.Registry, manager *device.Manager, log *logging.Logger) error {
	p, err := profile.Load(path)
	if err != nil {
		return err
	}
	log.Info("activating profile", logging.Fields{"profile": p.Name, "devices": len(p.Devices)})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	for _, spec := range p.Devices {
		op, args, err := registry.Build(spec.Kind, spec.Name, spec.Args)
		if err != nil {
			return err
		}
		d, err := manager.Activate(spec, op, args)
		if err != nil {
			return err
		}
		if err := d.WaitSettled(ctx); err != nil {
			return err
		}
	}
	return nil
}
