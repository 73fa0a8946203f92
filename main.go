package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line.
type AppOptions struct {
	ConfigFile   string
	World        string
	ForceMerge   bool
	DryRun       bool
	ImportFile   string
	ExportFile   string
	SnapshotFile string
	RestoreFile  string
	HttpMode     bool
	MqttMode     bool
	HttpPort     int
}

// Runner is the set of modes the CLI can dispatch to.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunForceMerge() error
	RunDryRun() error
	RunImport() error
	RunExport() error
	RunSnapshot() error
	RunRestore() error
	RunService() error
}

func main() {
	app := NewApp()
	defer app.Close()

	if err := run(os.Args[1:], os.Stdout, app); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("Error: %v", err)
	}
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("claimmesh", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.World, "world", "", "Limit the operation to one world (default: all configured worlds)")
	fs.BoolVar(&opts.ForceMerge, "force-merge", false, "Merge every group of equivalent overlapping claims and exit")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "List the groups --force-merge would merge and exit")
	fs.StringVar(&opts.ImportFile, "import", "", "Import regions from a JSON file or http(s) URL and exit")
	fs.StringVar(&opts.ExportFile, "export", "", "Export a world's regions as GeoJSON and exit (requires --world)")
	fs.StringVar(&opts.SnapshotFile, "snapshot", "", "Write a compressed snapshot of a world and exit (requires --world)")
	fs.StringVar(&opts.RestoreFile, "restore", "", "Replace a world's regions with a snapshot and exit")
	fs.BoolVar(&opts.HttpMode, "http", false, "Run the HTTP admin server")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Publish reports and accept force-merge requests over MQTT")
	fs.IntVar(&opts.HttpPort, "http-port", 0, "HTTP server port (default: from config, else 8080)")

	if err := fs.Parse(args); err != nil {
		return err
	}

	fmt.Fprintf(out, "claimmesh version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.ImportFile != "":
		return app.RunImport()
	case opts.RestoreFile != "":
		return app.RunRestore()
	case opts.SnapshotFile != "":
		return app.RunSnapshot()
	case opts.ExportFile != "":
		return app.RunExport()
	case opts.DryRun:
		return app.RunDryRun()
	case opts.ForceMerge:
		return app.RunForceMerge()
	case opts.HttpMode || opts.MqttMode:
		return app.RunService()
	}

	fmt.Fprintln(out, "No mode selected.")
	fmt.Fprintln(out, "Use --dry-run to list mergeable claim groups")
	fmt.Fprintln(out, "Use --force-merge to merge them")
	fmt.Fprintln(out, "Use --import FILE / --export FILE to move regions in and out")
	fmt.Fprintln(out, "Use --snapshot FILE / --restore FILE to back up a world")
	fmt.Fprintln(out, "Use --http and/or --mqtt to run the service")
	return nil
}
