package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voxelgrowth.ai/internal/persistence/archive"
	"voxelgrowth.ai/internal/persistence/indexdb"
	persistlog "voxelgrowth.ai/internal/persistence/log"
	"voxelgrowth.ai/internal/persistence/snapshot"
	"voxelgrowth.ai/internal/sim/catalogs"
	"voxelgrowth.ai/internal/sim/tuning"
	"voxelgrowth.ai/internal/sim/world"
	"voxelgrowth.ai/internal/telemetry"
	"voxelgrowth.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "", "world id (default: tuning world.id)")
		seed       = flag.Int64("seed", 0, "world seed for a fresh world (default: tuning world.seed)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to species.yaml (default: <configs>/species.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite index (tick/audit/growth + snapshot metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")

		seedReactions   = flag.Int("seed_reactions", 4, "reactions queued on a fresh world")
		telemetryWindow = flag.Int("telemetry_window", 50, "ticks per telemetry.csv row (0 disables)")
		observeRemote   = flag.Bool("observe_remote", false, "allow non-loopback observer clients")
		enablePprof     = flag.Bool("pprof", false, "serve /debug/pprof")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "species.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		if tune, err = tuning.Load(""); err != nil {
			logger.Fatalf("tuning defaults: %v", err)
		}
	}
	if *worldID == "" {
		*worldID = tune.World.ID
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	snapDir := filepath.Join(worldDir, "snapshots")
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	// Optional read model; does not affect sim determinism.
	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index", "world.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index: upsert catalogs: %v", err)
		}
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = archive.LatestSnapshot(snapDir)
	}

	var w *world.World
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		w, err = world.ImportSnapshot(cats, tune, snap)
		if err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d automatons=%d", filepath.Base(snapshotToLoad), w.CurrentTick(), len(snap.Automatons))
	} else {
		cfg := world.ConfigFrom(tune.World)
		cfg.ID = *worldID
		if *seed != 0 {
			cfg.Seed = *seed
		}
		w, err = world.New(cfg, cats, tune)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		for _, r := range initialReactions(w, *seedReactions) {
			w.Trigger() <- r
		}
		logger.Printf("fresh world id=%s seed=%d", cfg.ID, cfg.Seed)
	}
	w.SetLogger(logger)

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	auditLog := persistlog.NewAuditLogger(worldDir)
	growthLog := persistlog.NewGrowthLogger(worldDir)
	defer tickLog.Close()
	defer auditLog.Close()
	defer growthLog.Close()

	if idx != nil {
		w.SetTickLogger(multiTickLogger{tickLog, idx})
		w.SetAuditLogger(multiAuditLogger{auditLog, idx})
		w.AddEventSink(idx)
	} else {
		w.SetTickLogger(tickLog)
		w.SetAuditLogger(auditLog)
	}
	w.AddEventSink(growthLog)

	status := &statusSink{}
	w.AddTickSink(status)

	if *telemetryWindow > 0 {
		out, err := telemetry.NewOutput(filepath.Join(worldDir, "telemetry"))
		if err != nil {
			logger.Fatalf("telemetry: %v", err)
		}
		defer out.Close()
		col := telemetry.NewCollector(*telemetryWindow, out, logger)
		w.AddEventSink(col)
		w.AddTickSink(col)
	}

	hub := observer.NewHub(w, w.Config().Height, logger)
	w.AddEffectsSink(hub)
	w.AddTickSink(hub)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	archiveEvery := uint64(max(tune.World.ArchiveEveryTicks, 0))
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := archive.SnapshotPath(snapDir, snap.Header.Tick)
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.Printf("snapshot write: %v", err)
					continue
				}
				idx.RecordSnapshot(path, snap)
				if n, archived, ok, err := archive.ArchiveCheckpoint(worldDir, path, snap, archiveEvery); err != nil {
					logger.Printf("archive checkpoint: %v", err)
				} else if ok {
					logger.Printf("archived checkpoint %d at %s", n, archived)
				}
				if _, err := archive.PruneSnapshots(snapDir, tune.World.KeepSnapshots); err != nil {
					logger.Printf("prune snapshots: %v", err)
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(*worldID, status, idx, hub))
	mux.HandleFunc("/v1/react", reactHandler(w.Trigger()))

	obs := observer.NewServer(w, hub, logger)
	obs.AllowRemote = *observeRemote
	obs.Register(mux)

	if *enablePprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s", *addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	if err := growthLog.Err(); err != nil {
		logger.Printf("growth log: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// reactHandler queues a ReactionRequest posted as JSON. The world applies it
// at the next tick boundary.
func reactHandler(inbox chan<- world.ReactionRequest) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req world.ReactionRequest
		if err := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4096)).Decode(&req); err != nil {
			http.Error(rw, fmt.Sprintf("bad reaction: %v", err), http.StatusBadRequest)
			return
		}
		if req.Species == "" || req.Spores < 0 || req.Water < 0 {
			http.Error(rw, "species required, budgets must be >= 0", http.StatusBadRequest)
			return
		}
		select {
		case inbox <- req:
			rw.WriteHeader(http.StatusAccepted)
		default:
			http.Error(rw, "inbox full", http.StatusServiceUnavailable)
		}
	}
}
