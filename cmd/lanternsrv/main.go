package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/lantern-mud/lanternmush/pkg/ansi"
	"github.com/lantern-mud/lanternmush/pkg/archive"
	"github.com/lantern-mud/lanternmush/pkg/attrstore"
	"github.com/lantern-mud/lanternmush/pkg/boltstore"
	"github.com/lantern-mud/lanternmush/pkg/config"
	"github.com/lantern-mud/lanternmush/pkg/create"
	"github.com/lantern-mud/lanternmush/pkg/events"
	"github.com/lantern-mud/lanternmush/pkg/gamedb"
	"github.com/lantern-mud/lanternmush/pkg/help"
	"github.com/lantern-mud/lanternmush/pkg/logger"
	"github.com/lantern-mud/lanternmush/pkg/metrics"
	"github.com/lantern-mud/lanternmush/pkg/registry"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("LANTERN_CONF", ""), "Path to game config file (env: LANTERN_CONF)")
	restoreArchive := flag.String("restore", envDefault("LANTERN_RESTORE", ""), "Restore from archive before boot (env: LANTERN_RESTORE)")
	keepConf := flag.Bool("keep-conf", os.Getenv("LANTERN_KEEP_CONF") == "true", "Keep the live config when restoring (env: LANTERN_KEEP_CONF)")
	metricsAddr := flag.String("metrics", envDefault("LANTERN_METRICS", ""), "Prometheus listen address, overrides config (env: LANTERN_METRICS)")
	flag.Parse()

	cfg, err := config.Load(*confFile)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *confFile != "" {
		log.Printf("Loaded game config from %s", *confFile)
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	// Pre-boot restore from archive. A restored config file takes
	// effect on the next start; this run keeps the paths it booted
	// with.
	if *restoreArchive != "" {
		log.Printf("Restoring from archive: %s", *restoreArchive)
		result, err := archive.Restore(archive.RestoreParams{
			ArchivePath: *restoreArchive,
			BoltDest:    cfg.BoltFile,
			AttrDest:    cfg.AttrFile,
			HelpDest:    cfg.HelpDir,
			ConfDest:    *confFile,
			KeepConf:    *keepConf,
		})
		if err != nil {
			log.Fatalf("Restore failed: %v", err)
		}
		log.Printf("Restore complete: %d files restored", result.FilesRestored)
		for _, w := range result.Warnings {
			log.Printf("Restore warning: %s", w)
		}
	}

	for _, dir := range []string{cfg.DataDir, cfg.LogDir, cfg.HelpDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Error creating %s: %v", dir, err)
		}
	}

	lg := logger.NewServerLog(filepath.Join(cfg.LogDir, "server.log"), cfg.ServerLogMaxMB, cfg.ServerLogBackups)
	logger.SetDefault(lg)
	lg.Info("%s starting", cfg.MudName)

	store, err := boltstore.Open(cfg.BoltFile)
	if err != nil {
		log.Fatalf("Error opening record store: %v", err)
	}
	if store.HasData() {
		if err := store.LoadAll(); err != nil {
			log.Fatalf("Error loading records: %v", err)
		}
		counts := store.DB().Counts()
		lg.Info("Loaded %s: %d objects, %d scripts, %d accounts, %d channels",
			cfg.BoltFile, counts["object"], counts["script"], counts["account"], counts["channel"])
	} else {
		lg.Info("No records in %s, starting empty", cfg.BoltFile)
	}

	m := metrics.New(store.DB().Counts)

	attrs, err := attrstore.Open(cfg.AttrFile,
		attrstore.WithCompress(cfg.CompressAttrs),
		attrstore.WithResolver(gamedb.Resolver{DB: store.DB()}),
		attrstore.WithCache(time.Duration(cfg.AttrCacheTTLSecs)*time.Second, cfg.AttrCacheKeys),
		attrstore.WithMetrics(m),
	)
	if err != nil {
		log.Fatalf("Error opening attribute store: %v", err)
	}

	bus := events.NewBus()
	creator := &create.Creator{
		DB:               store.DB(),
		Store:            store,
		Attrs:            attrs,
		Bus:              bus,
		Log:              lg,
		DefaultHome:      gamedb.DBRef(cfg.DefaultHome),
		ChannelLogDir:    cfg.LogDir,
		ChannelLogRotate: cfg.ChannelLogRotateBytes,
		ChannelLogTail:   cfg.ChannelLogTailLines,
	}

	bootstrapWorld(creator, lg)

	scripts := registry.NewScriptRegistry(creator, lg, m)
	for name, gs := range cfg.GlobalScripts {
		err := scripts.Register(name, registry.ScriptSpec{
			TypePath:   gs.TypePath,
			Desc:       gs.Desc,
			Interval:   gs.Interval,
			StartDelay: gs.StartDelay,
			Repeats:    gs.Repeats,
			Persistent: !gs.Transient,
		})
		if err != nil {
			log.Fatalf("Error registering global script %q: %v", name, err)
		}
	}
	if err := scripts.EnsureInitialized(); err != nil {
		log.Fatalf("Error reconciling global scripts: %v", err)
	}

	options := registerDisplayOptions(lg)

	lib, err := help.OpenLibrary(cfg.HelpDir)
	if err != nil {
		log.Fatalf("Error loading help files: %v", err)
	}
	lg.Info("Help library: %d entries from %s", lib.EntryCount(), cfg.HelpDir)
	stopHelp := func() {}
	if stop, err := lib.Watch(func(file string) {
		lg.Info("Reloaded help file %s", filepath.Base(file))
	}); err != nil {
		lg.Warn("Help watcher disabled: %v", err)
	} else {
		stopHelp = stop
	}

	var metricsSrv *http.Server
	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", m.Handler())
		metricsSrv = &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				lg.Error("Metrics endpoint failed: %v", err)
			}
		}()
		lg.Info("Metrics endpoint on http://%s/metrics", cfg.MetricsAddr)
	}

	lg.Info("%s is ready: %d global scripts, %d display options", cfg.MudName, len(scripts.Names()), len(options.Names()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	lg.Info("Received %s, shutting down", s)

	// Shutdown order: stop intake (scrapes, file watcher), flush and
	// close the attribute store, close the record store, then the
	// shared channel logs. The server log closes last so every step
	// can still report.
	if metricsSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsSrv.Shutdown(ctx); err != nil {
			lg.Error("Metrics shutdown: %v", err)
		}
		cancel()
	}
	stopHelp()
	if err := attrs.Checkpoint(); err != nil {
		lg.Error("Attribute checkpoint: %v", err)
	}
	if err := attrs.Close(); err != nil {
		lg.Error("Attribute store close: %v", err)
	}
	if err := store.Close(); err != nil {
		lg.Error("Record store close: %v", err)
	}
	logger.CloseSharedLogs()
	lg.Info("%s halted", cfg.MudName)
	lg.Close()
}

// bootstrapWorld creates the default home room on a first boot so that
// object creation has somewhere to send things.
func bootstrapWorld(c *create.Creator, lg *logger.Logger) {
	if len(c.DB.Objects) > 0 || c.DefaultHome == gamedb.Nothing {
		return
	}
	limbo, err := c.Object(create.ObjectOpts{
		Key:      "Limbo",
		TypePath: "objects.Room",
		NoHome:   true,
		Attributes: map[string]any{
			"desc": "Welcome to %chLanternMUSH%cn! This room is the default home for everything new.",
		},
	})
	if err != nil {
		log.Fatalf("Error creating default home: %v", err)
	}
	lg.Info("First boot: created default home %s (%s)", limbo.Key, limbo.Ref)
}

// registerDisplayOptions fills the account-preference registry with the
// built-in color options. Values are single %c color codes validated
// against what the colorizer actually understands.
func registerDisplayOptions(lg *logger.Logger) *registry.OptionRegistry {
	colorCode := func(v any) error {
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("want a color code string, got %T", v)
		}
		if len(s) != 1 || ansi.Parse("%c"+s) == "%c"+s {
			return fmt.Errorf("%q is not a color code", s)
		}
		return nil
	}

	options := registry.NewOptionRegistry()
	defaults := []struct {
		name, desc, value string
	}{
		{"border_color", "Headers, footers, table borders", "m"},
		{"header_star_color", "The * in header lines", "m"},
		{"header_text_color", "Text inside header lines", "w"},
		{"column_names_color", "Table column names", "w"},
		{"help_category_color", "Help category names", "w"},
		{"help_entry_color", "Help entry text", "w"},
	}
	for _, d := range defaults {
		err := options.Register(d.name, registry.OptionSpec{
			Desc:     d.desc,
			Default:  d.value,
			Validate: colorCode,
		})
		if err != nil {
			log.Fatalf("Error registering option %q: %v", d.name, err)
		}
	}
	lg.Info("Registered %d display options", len(options.Names()))
	return options
}
