// Command extract-listing reads a listing page (from stdin, a file, or a
// URL), extracts the embedded record, and prints JSON.
//
// Usage (stdin):
//
//	cat page.html | extract-listing
//
// Usage (file):
//
//	extract-listing -pretty page.html
//
// Usage (fetch URL):
//
//	extract-listing -url "https://asunnot.example.fi/kohde/123"
//
// Debug (print outer HTML blocks):
//
//	cat page.html | extract-listing -selector "table.details-grid"
//
// Debug (print text for selector matches):
//
//	cat page.html | extract-listing -selector ".listing-details" -text
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/jaimejim/home-search/internal/scrape"
)

func main() {
	os.Exit(run(
		context.Background(),
		os.Args[1:],
		os.Stdin,
		os.Stdout,
		os.Stderr,
		http.DefaultClient,
	))
}

// run is split out from main so we can unit test the command without spawning
// an OS process.
//
// It returns a Unix-style exit code:
//   - 0 for success
//   - 2 for usage/config errors
//   - 1 for operational/runtime errors
func run(
	ctx context.Context,
	args []string,
	stdin io.Reader,
	stdout io.Writer,
	stderr io.Writer,
	httpClient *http.Client,
) int {
	fs := flag.NewFlagSet("extract-listing", flag.ContinueOnError)
	fs.SetOutput(stderr)

	onlyText := fs.Bool("text", false, "Debug: print text blocks for -selector matches (not JSON)")
	debugSelector := fs.String("selector", "", "Debug: CSS selector to print matches for (not JSON)")
	urlFlag := fs.String("url", "", "Optional: fetch HTML from URL instead of stdin")
	pretty := fs.Bool("pretty", false, "Indent the JSON output")
	timeout := fs.Duration("timeout", 20*time.Second, "Timeout for -url fetch")
	userAgent := fs.String("ua", "", "User-Agent header override for -url fetch")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 1 {
		fmt.Fprintf(stderr, "unexpected extra arguments: %v\n", fs.Args()[1:])
		return 2
	}
	if fs.NArg() == 1 && *urlFlag != "" {
		fmt.Fprintln(stderr, "pass either a file argument or -url, not both")
		return 2
	}

	// A file argument replaces stdin as the page source.
	if fs.NArg() == 1 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(stderr, "open file: %v\n", err)
			return 1
		}
		defer f.Close()
		stdin = f
	}

	loader := scrape.NewLoader(httpClient, *timeout, *userAgent)

	html, err := loader.Load(ctx, scrape.Input{
		URL:   *urlFlag,
		Stdin: stdin,
	})
	if err != nil {
		fmt.Fprintf(stderr, "load html: %v\n", err)
		return 1
	}

	// Debug selector mode prints raw matches instead of the record.
	if *debugSelector != "" {
		if err := scrape.DumpSelector(stdout, html, *debugSelector, *onlyText); err != nil {
			fmt.Fprintf(stderr, "debug selector: %v\n", err)
			return 1
		}
		return 0
	}

	l, err := scrape.Extract(html)
	if err != nil {
		fmt.Fprintf(stderr, "extract: %v\n", err)
		return 1
	}
	if *urlFlag != "" && l.URL == "" {
		l.URL = *urlFlag
	}

	enc := json.NewEncoder(stdout)
	enc.SetEscapeHTML(false)
	if *pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(l); err != nil {
		fmt.Fprintf(stderr, "encode json: %v\n", err)
		return 1
	}
	return 0
}
