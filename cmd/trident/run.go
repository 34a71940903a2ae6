package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/wahl-sec/trident/daemon"
	"github.com/wahl-sec/trident/internal/config"
	"github.com/wahl-sec/trident/logging"
)

type runFlags struct {
	configPath       string
	section          string
	verbose          bool
	quiet            bool
	workers          int
	noStore          bool
	globalStore      string
	pathStore        string
	dontStoreOnError bool
	filterResults    string
	watch            bool
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every enabled plugin in the configuration document",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrident(cmd.Context(), flags)
		},
	}

	cmd.Flags().StringVarP(&flags.configPath, "config", "c", "trident.json", "path to the Trident configuration document")
	cmd.Flags().StringVar(&flags.section, "section", "", "named section of the configuration document to run (required if it defines more than one)")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug-level logging")
	cmd.Flags().BoolVarP(&flags.quiet, "quiet", "q", false, "suppress all logging below error level")
	cmd.Flags().IntVarP(&flags.workers, "workers", "w", 0, "override the configured number of concurrent workers")
	cmd.Flags().BoolVar(&flags.noStore, "no-store", false, "disable recording results to a data store")
	cmd.Flags().StringVar(&flags.globalStore, "global-store", "", "path to a single store file every runner's results are recorded into")
	cmd.Flags().StringVar(&flags.pathStore, "path-store", "", "override the configured store directory or file path")
	cmd.Flags().BoolVar(&flags.dontStoreOnError, "dont-store-on-error", false, "escalate plugin errors instead of recording partial results")
	cmd.Flags().StringVar(&flags.filterResults, "filter-results", "", "regular expression; only matching results are recorded or notified")
	cmd.Flags().BoolVar(&flags.watch, "watch", false, "log external edits to store files while the daemon runs")

	return cmd
}

func runTrident(ctx context.Context, flags *runFlags) error {
	raw, err := os.ReadFile(flags.configPath)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}

	file, err := config.ParseFile(raw)
	if err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}

	doc, err := file.Section(flags.section)
	if err != nil {
		return fmt.Errorf("selecting config section: %w", err)
	}

	applyOverrides(doc, flags)

	level := logging.Info
	if doc.Verbose {
		level = logging.Debug
	}
	if doc.Quiet {
		level = logging.Error
	}
	log := logging.New(level)

	d, err := daemon.New(doc, log)
	if err != nil {
		return fmt.Errorf("initializing daemon: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if flags.watch {
		stopWatch := watchStores(doc, log)
		defer stopWatch()
	}

	d.Start(ctx)

	go func() {
		<-ctx.Done()
		log.Info("received shutdown signal, stopping runners")
		d.Stop()
	}()

	errs := d.Join()
	if len(errs) > 0 {
		return fmt.Errorf("%d plugin(s) failed", len(errs))
	}
	return nil
}

func applyOverrides(doc *config.Document, flags *runFlags) {
	if flags.verbose {
		doc.Verbose = true
	}
	if flags.quiet {
		doc.Quiet = true
	}
	if flags.workers > 0 {
		doc.Daemon.Workers = flags.workers
	}
	if flags.noStore {
		doc.Store.NoStore = true
	}
	if flags.globalStore != "" {
		doc.Store.GlobalStore = flags.globalStore
	}
	if flags.pathStore != "" {
		doc.Store.PathStore = flags.pathStore
	}
	if flags.dontStoreOnError {
		doc.Daemon.DontStoreOnError = true
	}
	if flags.filterResults != "" {
		for id, desc := range doc.Plugins {
			desc.FilterResult = flags.filterResults
			doc.Plugins[id] = desc
		}
	}
}

// watchStores logs external edits made to a plugin's store file path
// while the daemon is running, a debug aid grounded on the same
// filesystem-watch idiom OPA's own config loader reload path uses.
func watchStores(doc *config.Document, log logging.Logger) func() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("could not start store watcher: %v", err)
		return func() {}
	}

	seen := map[string]struct{}{}
	for _, desc := range doc.Enabled() {
		storeCfg := doc.Store
		if desc.Store != nil {
			storeCfg = *desc.Store
		}
		if storeCfg.NoStore || storeCfg.PathStore == "" {
			continue
		}
		if _, ok := seen[storeCfg.PathStore]; ok {
			continue
		}
		seen[storeCfg.PathStore] = struct{}{}
		if err := watcher.Add(storeCfg.PathStore); err != nil {
			log.Warn("could not watch store path %q: %v", storeCfg.PathStore, err)
		}
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				log.Debug("external edit to store path detected: %s (%s)", event.Name, event.Op)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("store watcher error: %v", err)
			}
		}
	}()

	return func() { watcher.Close() }
}
