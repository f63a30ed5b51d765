// discdiff walks one or more directory roots, hashes every regular file it
// finds, and prints the paths whose content changed since the last run.
//
// USAGE:
//
//	discdiff [flags] root [root...]
//	discdiff history <path> --history PATH
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"discdiff/internal/coordinator"
	"discdiff/internal/fdsem"
	"discdiff/internal/fspart"
	"discdiff/internal/hashlog"
	"discdiff/internal/hashpool"
	"discdiff/internal/history"
	"discdiff/internal/livewatch"
	"discdiff/internal/logging"
	"discdiff/internal/rootsmanifest"
	"discdiff/internal/runconfig"
	"discdiff/internal/termbus"
	"discdiff/internal/walker"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "history" {
		os.Exit(runHistory(os.Args[2:]))
	}
	os.Exit(run(os.Args[1:]))
}

func runHistory(args []string) int {
	fs := flag.NewFlagSet("discdiff history", flag.ExitOnError)
	historyPath := fs.String("history", "", "path to the history ledger")
	fs.Parse(args)
	// flag parsing stops at the first positional argument, so flags that
	// follow <path> are parsed in further passes.
	var positional []string
	for fs.NArg() > 0 {
		positional = append(positional, fs.Arg(0))
		fs.Parse(fs.Args()[1:])
	}

	if len(positional) != 1 {
		fmt.Fprintln(os.Stderr, "usage: discdiff history <path> --history PATH")
		return 1
	}
	if *historyPath == "" {
		fmt.Fprintln(os.Stderr, "discdiff history: --history PATH is required")
		return 1
	}
	target := positional[0]

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store, err := history.Open(*historyPath, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discdiff history: %v\n", err)
		return 1
	}
	defer store.Close()

	records, err := store.History(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discdiff history: %v\n", err)
		return 1
	}
	for _, r := range records {
		fmt.Printf("%s\t%016x\t%s\n", r.ObservedAt.Format(time.RFC3339Nano), r.Hash, r.RunID)
	}
	return 0
}

func run(args []string) int {
	fs := flag.NewFlagSet("discdiff", flag.ExitOnError)
	dataPath := fs.String("data", "", "prior-run hash database (read-only)")
	fs.StringVar(dataPath, "d", "", "shorthand for --data")
	outputPath := fs.String("output-data", "", "output hash database (read-then-append)")
	fs.StringVar(outputPath, "o", "", "shorthand for --output-data")
	maxFilesOpen := fs.Int("max-files-open", 0, "FD budget (0 uses the config/default)")
	fs.IntVar(maxFilesOpen, "f", 0, "shorthand for --max-files-open")
	configPath := fs.String("config", "", "optional TOML config file")
	fs.StringVar(configPath, "c", "", "shorthand for --config")
	manifestPath := fs.String("roots-manifest", "", "optional JSON roots/ignore manifest")
	historyPath := fs.String("history", "", "optional SQLite forensic ledger")
	watch := fs.Bool("watch", false, "stay resident and keep emitting changes")
	logFormat := fs.String("log-format", "", "text or json")
	logLevel := fs.String("log-level", "", "debug, info, warn, or error")
	fs.Parse(args)

	cfg, err := runconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discdiff: %v\n", err)
		return 1
	}
	if *maxFilesOpen > 0 {
		cfg.MaxFilesOpen = *maxFilesOpen
	}
	if *logFormat != "" {
		cfg.LogFormat = *logFormat
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discdiff: %v\n", err)
		return 1
	}
	format := logging.FormatText
	if cfg.LogFormat == "json" {
		format = logging.FormatJSON
	}
	appLog, err := logging.New(&logging.Config{
		Level:          level,
		Format:         format,
		Output:         "stderr",
		Component:      "discdiff",
		RedactPatterns: cfg.RedactPaths,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "discdiff: init logging: %v\n", err)
		return 1
	}
	defer appLog.Close()
	runID := uuid.NewString()
	log := appLog.WithRunID(runID).Logger

	roots := fs.Args()
	if *manifestPath != "" {
		m, err := rootsmanifest.Load(*manifestPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "discdiff: %v\n", err)
			return 1
		}
		roots = rootsmanifest.UnionRoots(m.Roots, roots)
	}
	if len(roots) == 0 {
		fmt.Fprintln(os.Stderr, "usage: discdiff [flags] root [root...]")
		return 1
	}

	groups, err := fspart.Partition(roots)
	if err != nil {
		fmt.Fprintf(os.Stderr, "discdiff: partition roots: %v\n", err)
		return 1
	}

	var historyStore *history.Store
	if *historyPath != "" {
		historyStore, err = history.Open(*historyPath, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "discdiff: open history: %v\n", err)
			return 1
		}
		defer historyStore.Close()
	}

	bus := termbus.New()
	termbus.WatchSignals(bus)

	stdout := bufio.NewWriter(os.Stdout)
	defer stdout.Flush()

	coord, prior, err := coordinator.New(coordinator.Config{
		DataPath:   *dataPath,
		OutputPath: *outputPath,
		Stdout:     stdout,
		Log:        log,
		History:    historyStore,
		RunID:      runID,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "discdiff: %v\n", err)
		return 1
	}
	defer coord.Close()

	readDone := make(chan struct{})
	go coord.LoadPrior(readDone)

	sem := fdsem.New(cfg.MaxFilesOpen)
	hashc := make(chan hashlog.Entry, 256)
	workerErrc := make(chan error, 8)
	go func() {
		for err := range workerErrc {
			bus.TermErr(err)
		}
	}()

	stopCh := make(chan struct{})
	go func() {
		for !termbus.IsSet() {
			time.Sleep(50 * time.Millisecond)
		}
		close(stopCh)
	}()

	var wg sync.WaitGroup
	for i, g := range groups {
		wg.Add(1)
		go func(i int, g fspart.Group) {
			defer wg.Done()
			pathc := make(chan string, 256)
			go func() {
				walker.Walk(g.Roots, prior, pathc, log, stopCh)
				close(pathc)
			}()
			hashpool.Run(pathc, hashc, workerErrc, sem, log, stopCh, hashpool.Options{
				Label: fmt.Sprintf("partition-%d", i),
			})
		}(i, g)
	}

	if *watch {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWatch(groups, hashc, workerErrc, sem, log, stopCh)
		}()
	}

	go func() {
		wg.Wait()
		close(hashc)
		close(workerErrc)
	}()

	if err := coord.Run(hashc, bus.Errors(), bus.Done(), readDone); err != nil {
		fmt.Fprintf(os.Stderr, "discdiff: %v\n", err)
		return 1
	}
	return 0
}

// runWatch starts one LiveWatch per partition once the cold scan is
// underway, feeding rehashed paths through a dedicated hash pool so
// --watch keeps emitting diffs after the initial pass completes.
func runWatch(groups []fspart.Group, hashc chan<- hashlog.Entry, errBus chan<- error, sem *fdsem.Semaphore, log *slog.Logger, stop <-chan struct{}) {
	watchPaths := make(chan string, 256)
	defer close(watchPaths)

	var watchers []*livewatch.Watcher
	for _, g := range groups {
		w, err := livewatch.New(watchPaths, log, 0)
		if err != nil {
			log.Error("discdiff: livewatch init failed", "error", err)
			continue
		}
		for _, root := range g.Roots {
			if err := livewatch.AddTreeRoot(w, root); err != nil {
				log.Warn("discdiff: livewatch could not watch root", "root", root, "error", err)
			}
		}
		watchers = append(watchers, w)
		go w.Run(stop)
	}
	defer func() {
		for _, w := range watchers {
			w.Close()
		}
	}()

	hashpool.Run(watchPaths, hashc, errBus, sem, log, stop, hashpool.Options{Label: "watch"})
}
