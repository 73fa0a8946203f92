package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/kwv/claimmesh/claims"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *claims.Config
	Host       claims.Host
	Names      *claims.NameIndex
	Merger     *claims.ForceMerger
	MQTTClient *claims.MQTTClient
	Publisher  *claims.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile   string
	World        string
	ImportFile   string
	ExportFile   string
	SnapshotFile string
	RestoreFile  string
	HttpPort     int
	HttpMode     bool
	MqttMode     bool

	out       io.Writer
	closeHost func() error
	mu        sync.Mutex
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{out: os.Stdout}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.World = opts.World
	a.ImportFile = opts.ImportFile
	a.ExportFile = opts.ExportFile
	a.SnapshotFile = opts.SnapshotFile
	a.RestoreFile = opts.RestoreFile
	a.HttpPort = opts.HttpPort
	a.HttpMode = opts.HttpMode
	a.MqttMode = opts.MqttMode
}

// setup loads the configuration and opens the host store unless they were
// provided already, then builds the name index and force-merge runner.
func (a *App) setup() error {
	if a.Config == nil {
		cfg, err := claims.LoadConfig(a.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w (looked at %s)", err, a.ConfigFile)
		}
		a.Config = cfg
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	if a.Host == nil {
		host, closeFn, err := claims.OpenHost(a.Config)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", a.Config.Store.Driver, err)
		}
		a.Host = host
		a.closeHost = closeFn
		log.Printf("[STORE] opened %s store with worlds %v", a.Config.Store.Driver, host.Worlds())
	}

	if a.Names == nil {
		a.Names = claims.NewNameIndex(a.Host)
		a.Names.Load()
	}

	if a.Merger == nil {
		opts := []claims.ForceMergerOption{claims.WithRemovalListener(a.Names)}
		if a.Config.Snapshots.Dir != "" {
			opts = append(opts, claims.WithSnapshotDir(a.Config.Snapshots.Dir))
		}
		if a.Publisher != nil {
			opts = append(opts, claims.WithReportPublisher(a.Publisher))
		}
		a.Merger = claims.NewForceMerger(a.Host, opts...)
	}
	return nil
}

// Close releases the store and the MQTT connection.
func (a *App) Close() error {
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	if a.closeHost != nil {
		err := a.closeHost()
		a.closeHost = nil
		return err
	}
	return nil
}

// targetWorlds returns --world, or every world the host knows.
func (a *App) targetWorlds() []string {
	if a.World != "" {
		return []string{a.World}
	}
	return a.Host.Worlds()
}

func (a *App) requireWorld(flagName string) (claims.WorldStore, error) {
	if a.World == "" {
		return nil, fmt.Errorf("--%s requires --world", flagName)
	}
	return a.Host.World(a.World)
}

// RunForceMerge merges every eligible group in the target worlds and prints
// one report per world.
func (a *App) RunForceMerge() error {
	if err := a.setup(); err != nil {
		return err
	}

	failed := 0
	for _, world := range a.targetWorlds() {
		report, err := a.Merger.Run(world)
		if err != nil {
			return err
		}
		printReport(a.out, report)
		failed += report.Failed()
	}
	if failed > 0 {
		fmt.Fprintf(a.out, "\n%d group(s) could not be merged\n", failed)
	}
	return nil
}

// RunDryRun prints the groups a force-merge would attempt.
func (a *App) RunDryRun() error {
	if err := a.setup(); err != nil {
		return err
	}

	for _, world := range a.targetWorlds() {
		groups, err := a.Merger.Preview(world)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "=== %s ===\n", world)
		if len(groups) == 0 {
			fmt.Fprintln(a.out, "No mergeable groups")
			continue
		}
		for _, g := range groups {
			fmt.Fprintf(a.out, "  %s <- %s\n", g.Representative, strings.Join(g.Absorbed(), ", "))
		}
		fmt.Fprintf(a.out, "%d group(s) would be merged\n", len(groups))
	}
	return nil
}

// RunImport loads regions from ImportFile, a path or an http(s) URL, into
// the world the document names.
func (a *App) RunImport() error {
	if err := a.setup(); err != nil {
		return err
	}

	var f *claims.ImportFile
	var err error
	if claims.IsRemoteImport(a.ImportFile) {
		f, err = claims.FetchImport(context.Background(), a.ImportFile)
	} else {
		f, err = claims.LoadImportFile(a.ImportFile)
	}
	if err != nil {
		return err
	}
	if a.World != "" && a.World != f.World {
		return fmt.Errorf("import file is for world %q, not %q", f.World, a.World)
	}

	n, err := claims.ImportRegions(a.Host, f)
	a.indexImported(f)
	if err != nil {
		return fmt.Errorf("imported %d region(s) before failing: %w", n, err)
	}
	fmt.Fprintf(a.out, "Imported %d region(s) into %s\n", n, f.World)
	return nil
}

// indexImported refreshes the names of the imported regions that reached the
// store, including those of a partial import.
func (a *App) indexImported(f *claims.ImportFile) {
	w, err := a.Host.World(f.World)
	if err != nil {
		return
	}
	for _, ir := range f.Regions {
		r, ok := w.Region(ir.ID)
		if !ok {
			continue
		}
		a.Names.Set(f.World, r.ID, r.Name())
	}
}

// RunExport writes the regions of --world to ExportFile as GeoJSON.
func (a *App) RunExport() error {
	if err := a.setup(); err != nil {
		return err
	}
	w, err := a.requireWorld("export")
	if err != nil {
		return err
	}

	fc := claims.WorldFeatureCollection(w)
	if err := claims.SaveFeatureCollection(fc, a.ExportFile); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Exported %d region(s) from %s to %s\n", len(fc.Features), w.Name(), a.ExportFile)
	return nil
}

// RunSnapshot writes a snapshot of --world to SnapshotFile.
func (a *App) RunSnapshot() error {
	if err := a.setup(); err != nil {
		return err
	}
	w, err := a.requireWorld("snapshot")
	if err != nil {
		return err
	}

	if err := claims.WriteSnapshot(a.SnapshotFile, w); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Wrote snapshot of %s to %s\n", w.Name(), a.SnapshotFile)
	return nil
}

// RunRestore replaces a world's regions with the contents of RestoreFile.
// The world defaults to the one recorded in the snapshot.
func (a *App) RunRestore() error {
	if err := a.setup(); err != nil {
		return err
	}

	snap, err := claims.ReadSnapshot(a.RestoreFile)
	if err != nil {
		return err
	}
	world := a.World
	if world == "" {
		world = snap.Header.World
	}
	w, err := a.Host.World(world)
	if err != nil {
		return err
	}

	if err := claims.RestoreSnapshot(w, snap); err != nil {
		return err
	}
	a.Names.Load()
	fmt.Fprintf(a.out, "Restored %d region(s) into %s from snapshot taken %s\n",
		len(snap.Regions), world, snap.Header.CreatedAt.Format(time.RFC3339))
	return nil
}

// RunService runs the HTTP admin server and/or the MQTT request listener
// until interrupted.
func (a *App) RunService() error {
	fmt.Fprintln(a.out, "Starting claimmesh service...")

	if a.Config == nil {
		cfg, err := claims.LoadConfig(a.ConfigFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w (looked at %s)", err, a.ConfigFile)
		}
		a.Config = cfg
		log.Printf("Loaded config from %s", a.ConfigFile)
	}

	if err := a.start(); err != nil {
		return err
	}

	port := a.HttpPort
	if port == 0 {
		port = a.Config.HTTP.Port
	}

	if a.HttpMode {
		handler := newHTTPServer(a.Host, a.Merger, a.Names)
		go func() {
			addr := fmt.Sprintf(":%d", port)
			log.Printf("[HTTP] server starting on %s", addr)
			if err := http.ListenAndServe(addr, handler); err != nil {
				log.Fatalf("HTTP server error: %v", err)
			}
		}()
	}

	fmt.Fprintln(a.out, "\nService Running")
	fmt.Fprintln(a.out, "===============")
	fmt.Fprintf(a.out, "Worlds: %s\n", strings.Join(a.Host.Worlds(), ", "))
	if a.MqttMode {
		prefix := a.Config.MQTT.PublishPrefix
		fmt.Fprintln(a.out, "\nMQTT:")
		fmt.Fprintf(a.out, "  Requests:  %s\n", a.MQTTClient.RequestTopic())
		fmt.Fprintf(a.out, "  Reports:   %s/forcemerge/{world}\n", prefix)
		fmt.Fprintf(a.out, "  Summary:   %s/forcemerge/last\n", prefix)
	}
	if a.HttpMode {
		fmt.Fprintf(a.out, "\nHTTP endpoints (port %d):\n", port)
		fmt.Fprintln(a.out, "  GET  /health                         - Health check")
		fmt.Fprintln(a.out, "  GET  /worlds                         - Worlds and region counts")
		fmt.Fprintln(a.out, "  GET  /worlds/{world}/groups          - Mergeable groups (dry run)")
		fmt.Fprintln(a.out, "  GET  /worlds/{world}/regions.geojson - Regions as GeoJSON")
		fmt.Fprintln(a.out, "  GET  /names/{world}/{name}           - Region ids by display name")
		fmt.Fprintln(a.out, "  POST /admin/forcemerge?world={world} - Run a force-merge")
	}
	fmt.Fprintln(a.out, "\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	fmt.Fprintln(a.out, "\nShutting down service...")
	if err := a.Close(); err != nil {
		log.Printf("[STORE] close: %v", err)
	}
	fmt.Fprintln(a.out, "Service stopped")
	return nil
}

// start connects MQTT when enabled and finishes setup. Requests that arrive
// before it returns wait on mu.
func (a *App) start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.MqttMode {
		client, err := claims.InitMQTT(a.Config.MQTT, a.handleMergeRequest)
		if err != nil {
			return fmt.Errorf("failed to initialize MQTT: %w", err)
		}
		if client == nil {
			return errors.New("MQTT broker not configured (set mqtt.broker or MQTT_BROKER)")
		}
		a.MQTTClient = client
		a.Publisher = claims.NewPublisher(client.Client(), a.Config.MQTT.PublishPrefix)
	}
	return a.setup()
}

// handleMergeRequest runs a force-merge requested over MQTT.
func (a *App) handleMergeRequest(world string) {
	a.mu.Lock()
	merger := a.Merger
	a.mu.Unlock()
	if merger == nil {
		log.Printf("[MQTT] ignoring request for %s: service not ready", world)
		return
	}
	report, err := merger.Run(world)
	if err != nil {
		log.Printf("[MQTT] force-merge of %s failed: %v", world, err)
		return
	}
	log.Printf("[MQTT] force-merge of %s: %d merged, %d failed", world, report.Merged(), report.Failed())
}

// printReport writes a human-readable force-merge report.
func printReport(out io.Writer, r *claims.Report) {
	fmt.Fprintf(out, "=== %s ===\n", r.World)
	if r.Snapshot != "" {
		fmt.Fprintf(out, "Snapshot: %s\n", r.Snapshot)
	}
	if len(r.Groups) == 0 {
		fmt.Fprintln(out, "Nothing to merge")
		return
	}
	for _, g := range r.Groups {
		line := fmt.Sprintf("  [%s] %s <- %s", g.Status, g.Representative, strings.Join(g.Absorbed, ", "))
		if g.Error != "" {
			line += ": " + g.Error
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "Merged %d of %d group(s) in %v\n", r.Merged(), len(r.Groups), r.Duration.Round(time.Millisecond))
}
