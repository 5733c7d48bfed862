package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jaimejim/home-search/internal/config"
	"github.com/jaimejim/home-search/internal/maprender"
	"github.com/jaimejim/home-search/internal/metrics"
	"github.com/jaimejim/home-search/internal/metrics/datadog"
	"github.com/jaimejim/home-search/internal/scrape"
	"github.com/jaimejim/home-search/internal/storage"

	// register all storage backends with the factory.
	// flags/config pick which one a run uses, but support for all of them is
	// built in.
	_ "github.com/jaimejim/home-search/internal/storage/all"
)

// logRecord is emitted as JSONL to stdout for each URL processed.
//
// This output is intended for machine parsing. Additive changes are safe;
// renames/removals are breaking changes for downstream log consumers.
type logRecord struct {
	Timestamp  string `json:"ts"`
	URL        string `json:"url"`
	Outcome    string `json:"outcome"`
	DurationMs int64  `json:"duration_ms"`
	Address    string `json:"address,omitempty"`
	File       string `json:"file,omitempty"`
	Error      string `json:"error,omitempty"`
}

const (
	outcomeAdded     = "added"
	outcomeDuplicate = "duplicate"
	outcomeFailed    = "failed"
)

// backendCloser is the minimal interface used by this command to manage a metrics backend.
type backendCloser interface {
	metrics.Backend
	Close() error
}

// deps are external seams for testability.
//
// When to use:
//   - Unit tests: inject fake backend factory and capture stdout/stderr.
//   - Alternate runtimes: swap metrics backend or output sinks.
type deps struct {
	Stdout io.Writer
	Stderr io.Writer

	BackendFactory func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error)
	Now            func() time.Time
	Sleep          func(d time.Duration)
}

// runConfig holds the parsed flags for a run. set records which flags were
// passed explicitly, so defaults do not clobber file or env values.
type runConfig struct {
	URLFile    string
	CSVPath    string
	MapPath    string
	StoreKind  string
	StoreDSN   string
	ConfigPath string
	Timeout    time.Duration
	Delay      time.Duration
	Jitter     time.Duration
	UserAgent  string
	DumpDir    string
	JobName    string
	Metrics    string
	TagsCSV    string
	FlushEvery time.Duration
	Quiet      bool
	Validate   bool

	set map[string]bool
}

// main is intentionally small: it wires real dependencies and exits with a code.
func main() {
	code := run(context.Background(), os.Args[1:], deps{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		BackendFactory: func(ctx context.Context, jobName string, tags []string, flushEvery time.Duration) (backendCloser, error) {
			return datadog.NewBackend(ctx, datadog.Options{
				JobName:    jobName,
				Tags:       tags,
				FlushEvery: flushEvery,
			})
		},
		Now:   time.Now,
		Sleep: time.Sleep,
	})
	os.Exit(code)
}

// run executes the scan command and returns an exit code.
//
// Exit codes:
//   - 0: run completed (individual URLs may still have failed).
//   - 1: the store or an output file failed mid-run.
//   - 2: configuration/initialization error, including an unreadable URL file.
func run(ctx context.Context, args []string, d deps) int {
	if d.Stdout == nil {
		d.Stdout = io.Discard
	}
	if d.Stderr == nil {
		d.Stderr = io.Discard
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Sleep == nil {
		d.Sleep = time.Sleep
	}

	rc, err := parseFlags(args)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}

	cfg, err := config.Load(rc.ConfigPath)
	if err != nil {
		fmt.Fprintln(d.Stderr, err.Error())
		return 2
	}
	applyFlags(&cfg, rc)

	hasError := false
	for _, iss := range config.Validate(cfg) {
		fmt.Fprintf(d.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		return 2
	}
	if rc.Validate {
		fmt.Fprintln(d.Stderr, "configuration is valid")
		return 0
	}

	// Read the URL list before touching any output: an unreadable input must
	// leave the store and the map exactly as they were.
	urls, err := readURLs(rc.URLFile)
	if err != nil {
		fmt.Fprintf(d.Stderr, "error reading urls: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	switch rc.Metrics {
	case "datadog":
		if d.BackendFactory == nil {
			fmt.Fprintln(d.Stderr, "internal error: BackendFactory is nil")
			return 2
		}
		tags := append(datadog.ParseTagsCSV(rc.TagsCSV), "tool:homescan")
		backend, err := d.BackendFactory(ctx, rc.JobName, tags, rc.FlushEvery)
		if err != nil {
			fmt.Fprintf(d.Stderr, "datadog backend init failed: %v\n", err)
			return 2
		}
		metrics.SetBackend(backend)
		defer func() {
			_ = metrics.Flush()
			_ = backend.Close()
		}()
	case "", "none":
		// metrics disabled; nop backend remains
	default:
		fmt.Fprintf(d.Stderr, "metrics: unknown backend %q; metrics disabled\n", rc.Metrics)
	}

	if rc.DumpDir != "" {
		if err := os.MkdirAll(rc.DumpDir, 0o755); err != nil {
			fmt.Fprintf(d.Stderr, "failed to create dump directory: %v\n", err)
			return 2
		}
	}

	store, err := storage.Open(ctx, storage.Config{
		Kind: cfg.Store.Kind,
		Path: cfg.Store.Path,
		DSN:  cfg.Store.DSN,
	})
	if err != nil {
		fmt.Fprintf(d.Stderr, "open store: %v\n", err)
		return 2
	}
	defer func() {
		_ = store.Close()
	}()

	loader := scrape.NewLoader(newHTTPClient(time.Duration(cfg.Timeout)), time.Duration(cfg.Timeout), cfg.UserAgent)

	rng := rand.New(rand.NewSource(d.Now().UnixNano()))
	sl := newSleeper(rng, time.Duration(cfg.Delay), time.Duration(cfg.Jitter), d.Sleep)

	enc := json.NewEncoder(d.Stdout)

	var added, duplicates, failed int
	for _, u := range urls {
		if ctx.Err() != nil {
			fmt.Fprintf(d.Stderr, "canceled: %v\n", ctx.Err())
			return 1
		}

		rec, storeErr := processURL(ctx, loader, store, u, sl, rc.DumpDir, d.Now)
		if !rc.Quiet {
			_ = enc.Encode(rec)
		}
		metrics.RecordOutcome(rec.Outcome)

		if storeErr != nil {
			fmt.Fprintf(d.Stderr, "store: %v\n", storeErr)
			return 1
		}

		switch rec.Outcome {
		case outcomeAdded:
			added++
		case outcomeDuplicate:
			duplicates++
		default:
			failed++
		}
	}

	// The map always renders from a fresh full read so it reflects every
	// record ever stored, not just this run's.
	records, err := store.All(ctx)
	if err != nil {
		fmt.Fprintf(d.Stderr, "read store: %v\n", err)
		return 1
	}
	html, stats, err := maprender.New(maprender.Config{
		TileURL:     cfg.Tiles.URL,
		APIKey:      cfg.Tiles.APIKey,
		Attribution: cfg.Tiles.Attribution,
		MaxZoom:     cfg.Tiles.MaxZoom,
	}).Render(records)
	if err != nil {
		fmt.Fprintf(d.Stderr, "render map: %v\n", err)
		return 1
	}
	for _, label := range stats.Skipped {
		fmt.Fprintf(d.Stderr, "map: skipping %s: no coordinates\n", label)
	}
	if _, err := writeBodyToFile(rc.MapPath, bytes.NewReader(html)); err != nil {
		fmt.Fprintf(d.Stderr, "write map: %v\n", err)
		return 1
	}

	metrics.RecordRun()
	_ = metrics.Flush()

	fmt.Fprintf(d.Stderr, "done: added=%d duplicates=%d failed=%d map=%s markers=%d skipped=%d\n",
		added, duplicates, failed, rc.MapPath, stats.Markers, len(stats.Skipped))
	return 0
}

// processURL runs one URL through fetch, extract, and append. The returned
// error is a store failure, which aborts the whole run; fetch and parse
// problems only mark this URL's record as failed.
func processURL(
	ctx context.Context,
	loader *scrape.Loader,
	store storage.Store,
	rawURL string,
	sl *sleeper,
	dumpDir string,
	now func() time.Time,
) (rec logRecord, err error) {
	start := now()
	rec = logRecord{
		Timestamp: start.UTC().Format("2006-01-02T15:04:05.000Z"),
		URL:       rawURL,
		Outcome:   outcomeFailed,
	}
	defer func() {
		rec.DurationMs = now().Sub(start).Milliseconds()
	}()

	// Known URLs are skipped without a fetch so reruns stay cheap and do not
	// hammer the portal.
	seen, herr := store.HasURL(ctx, rawURL)
	if herr != nil {
		rec.Error = herr.Error()
		return rec, fmt.Errorf("has url %s: %w", rawURL, herr)
	}
	if seen {
		rec.Outcome = outcomeDuplicate
		return rec, nil
	}

	sl.Sleep()

	fetchStart := now()
	html, ferr := loader.Load(ctx, scrape.Input{URL: rawURL})
	metrics.RecordStep("fetch", ferr, now().Sub(fetchStart))
	if ferr != nil {
		rec.Error = ferr.Error()
		return rec, nil
	}

	if dumpDir != "" {
		path := filepath.Join(dumpDir, hashString(rawURL)+".html")
		if _, derr := writeBodyToFile(path, strings.NewReader(html)); derr != nil {
			// A failed dump is an anomaly worth surfacing, not a failed URL.
			rec.Error = fmt.Sprintf("dump: %v", derr)
		} else {
			rec.File = path
		}
	}

	extractStart := now()
	l, xerr := scrape.Extract(html)
	metrics.RecordStep("extract", xerr, now().Sub(extractStart))
	if xerr != nil {
		rec.Error = xerr.Error()
		return rec, nil
	}

	// The fetched URL is the source of record for the listing's location.
	if strings.TrimSpace(l.URL) == "" {
		l.URL = rawURL
	}
	l.ScrapedAt = now().UTC()
	rec.Address = l.Address

	appendStart := now()
	wasAdded, aerr := store.Append(ctx, *l)
	metrics.RecordStep("store", aerr, now().Sub(appendStart))
	if aerr != nil {
		rec.Error = aerr.Error()
		return rec, fmt.Errorf("append %s: %w", rawURL, aerr)
	}
	if wasAdded {
		rec.Outcome = outcomeAdded
	} else {
		rec.Outcome = outcomeDuplicate
	}
	return rec, nil
}

// parseFlags parses command arguments into a validated runConfig.
//
// Errors:
//   - Returns an error for invalid/missing required flags.
//   - Does not exit the process (caller decides exit code).
func parseFlags(args []string) (runConfig, error) {
	fs := flag.NewFlagSet("homescan", flag.ContinueOnError)

	// Capture help/usage text instead of writing to stdout.
	var usageBuf strings.Builder
	fs.SetOutput(&usageBuf)

	fs.Usage = func() {
		fmt.Fprintf(&usageBuf, "Usage: %s [flags] <url_file>\n", fs.Name())
		fs.PrintDefaults()
	}

	cfg := runConfig{set: map[string]bool{}}
	fs.StringVar(&cfg.CSVPath, "csv", "properties.csv", "CSV store path (with -store csv)")
	fs.StringVar(&cfg.MapPath, "map", "index.html", "Output map HTML path")
	fs.StringVar(&cfg.StoreKind, "store", "csv", "Record store backend (csv, sqlite, postgres, mssql)")
	fs.StringVar(&cfg.StoreDSN, "dsn", "", "Database DSN for SQL store backends")
	fs.StringVar(&cfg.ConfigPath, "config", "", "Optional YAML config path")
	fs.DurationVar(&cfg.Timeout, "timeout", 30*time.Second, "HTTP timeout per request (e.g. 30s)")
	fs.DurationVar(&cfg.Delay, "delay", 500*time.Millisecond, "Base sleep before each request")
	fs.DurationVar(&cfg.Jitter, "jitter", 250*time.Millisecond, "Max jitter added to sleeps")
	fs.StringVar(&cfg.UserAgent, "ua", "", "User-Agent header override")
	fs.StringVar(&cfg.DumpDir, "dump-dir", "", "Directory to save fetched page HTML (off when empty)")
	fs.StringVar(&cfg.JobName, "name", "home_scan", "Logical job name used in metrics tags")
	fs.StringVar(&cfg.Metrics, "metrics", "none", "Metrics backend (datadog, none)")
	fs.StringVar(&cfg.TagsCSV, "metrics-tags", "", "Extra Datadog tags CSV (e.g. env:prod,service:homescan)")
	fs.DurationVar(&cfg.FlushEvery, "metrics-flush", 1*time.Minute, "Datadog flush interval (default 1m)")
	fs.BoolVar(&cfg.Quiet, "quiet", false, "Suppress per-URL JSON records on stdout")
	fs.BoolVar(&cfg.Validate, "validate", false, "Validate the configuration and exit")

	if err := fs.Parse(args); err != nil {
		// When -h / -help is passed, flag.Parse returns flag.ErrHelp.
		// Return the captured usage text so caller prints it.
		if errors.Is(err, flag.ErrHelp) {
			return runConfig{}, errors.New(usageBuf.String())
		}
		// For other parse errors, return the error plus usage (nice UX).
		return runConfig{}, fmt.Errorf("%v\n\n%s", err, usageBuf.String())
	}

	fs.Visit(func(f *flag.Flag) { cfg.set[f.Name] = true })

	if fs.NArg() == 0 && !cfg.Validate {
		return runConfig{}, errors.New("missing required <url_file> argument")
	}
	if fs.NArg() > 1 {
		return runConfig{}, fmt.Errorf("unexpected extra arguments: %v", fs.Args()[1:])
	}
	cfg.URLFile = fs.Arg(0)

	return cfg, nil
}

// applyFlags lays explicitly-passed flags over the loaded configuration.
// Flags a user did not type keep whatever the file or environment said.
func applyFlags(cfg *config.Config, rc runConfig) {
	if rc.set["store"] {
		cfg.Store.Kind = rc.StoreKind
	}
	if rc.set["csv"] {
		cfg.Store.Path = rc.CSVPath
	}
	if rc.set["dsn"] {
		cfg.Store.DSN = rc.StoreDSN
	}
	if rc.set["timeout"] {
		cfg.Timeout = config.Duration(rc.Timeout)
	}
	if rc.set["delay"] {
		cfg.Delay = config.Duration(rc.Delay)
	}
	if rc.set["jitter"] {
		cfg.Jitter = config.Duration(rc.Jitter)
	}
	if rc.set["ua"] {
		cfg.UserAgent = rc.UserAgent
	}
}

// writeBodyToFile writes r to outputPath atomically.
//
// Behavior:
//   - Writes to a temp file in the same directory.
//   - Renames into place on success.
//   - On failure, attempts to remove the temp file.
//
// Returns the number of bytes written.
func writeBodyToFile(outputPath string, r io.Reader) (int64, error) {
	dir := filepath.Dir(outputPath)
	tmp, err := os.CreateTemp(dir, ".homescan-*")
	if err != nil {
		return 0, err
	}
	tmpName := tmp.Name()

	n, copyErr := io.Copy(tmp, r)
	closeErr := tmp.Close()

	if copyErr != nil {
		_ = os.Remove(tmpName)
		return n, copyErr
	}
	if closeErr != nil {
		_ = os.Remove(tmpName)
		return n, closeErr
	}
	if err := os.Rename(tmpName, outputPath); err != nil {
		_ = os.Remove(tmpName)
		return n, err
	}
	return n, nil
}

func newHTTPClient(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        16,
		MaxIdleConnsPerHost: 4,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func readURLs(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, scanner.Err()
}

func hashString(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

type sleeper struct {
	rng       *rand.Rand
	base      time.Duration
	jitterMax time.Duration
	sleep     func(d time.Duration)
}

func newSleeper(rng *rand.Rand, base, jitterMax time.Duration, sleep func(d time.Duration)) *sleeper {
	if sleep == nil {
		sleep = time.Sleep
	}
	return &sleeper{
		rng:       rng,
		base:      base,
		jitterMax: jitterMax,
		sleep:     sleep,
	}
}

func (s *sleeper) Sleep() {
	jitter := time.Duration(0)
	if s.jitterMax > 0 {
		jitter = time.Duration(s.rng.Int63n(int64(s.jitterMax) + 1))
	}
	s.sleep(s.base + jitter)
}
