// Package export produces the JSONL knowledge corpus the chatbot
// retrieves from. The primary source is a directory of rendered HTML
// pages; when none are found it falls back to a live crawl of the site.
package export

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yonasatinafu/portfolio-bot/internal/config"
	"github.com/yonasatinafu/portfolio-bot/internal/textutil"
)

const maxSummaryChars = 20000

// Row is one corpus document.
type Row struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Exporter builds the knowledge corpus.
type Exporter struct {
	cfg         config.ExportConfig
	summaryPath string
	logger      *slog.Logger
}

// New creates an exporter.
func New(cfg config.ExportConfig, summaryPath string, logger *slog.Logger) *Exporter {
	return &Exporter{cfg: cfg, summaryPath: summaryPath, logger: logger}
}

// Run collects rows from the configured sources, deduplicates them, and
// writes one JSON object per line to the output path. Returns the number
// of rows written.
func (e *Exporter) Run() (int, error) {
	rows, err := e.fromRenderedHTML()
	if err != nil {
		return 0, err
	}
	source := "rendered html"

	if len(rows) == 0 && e.cfg.BaseURL != "" {
		rows, err = e.crawl()
		if err != nil {
			return 0, err
		}
		source = "live crawl"
	}

	rows = append(e.summaryRow(), rows...)
	rows = deduplicate(rows)

	if err := e.write(rows); err != nil {
		return 0, err
	}

	e.logger.Info("knowledge exported",
		"rows", len(rows),
		"source", source,
		"output", e.cfg.OutputPath,
	)
	return len(rows), nil
}

// fromRenderedHTML reads every *.html file in the export directory,
// skipping underscore-prefixed build artifacts, in sorted order so the
// output is deterministic.
func (e *Exporter) fromRenderedHTML() ([]Row, error) {
	entries, err := os.ReadDir(e.cfg.HTMLDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading html dir: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "_") || !strings.HasSuffix(name, ".html") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([]Row, 0, len(names))
	for _, name := range names {
		path := filepath.Join(e.cfg.HTMLDir, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		doc, err := goquery.NewDocumentFromReader(f)
		f.Close()
		if err != nil {
			e.logger.Warn("skipping unparseable page", "path", path, "error", err)
			continue
		}

		title, text := extractVisibleText(doc)
		if text == "" {
			continue
		}
		rows = append(rows, Row{URL: routeFromFilename(name), Title: title, Text: text})
	}
	return rows, nil
}

// summaryRow loads the optional personal summary as a corpus row.
func (e *Exporter) summaryRow() []Row {
	if e.summaryPath == "" {
		return nil
	}
	raw, err := os.ReadFile(e.summaryPath)
	if err != nil {
		return nil
	}
	summary := textutil.Normalize(string(raw), maxSummaryChars)
	if summary == "" {
		return nil
	}
	return []Row{{URL: "/about", Title: "Personal Summary", Text: summary}}
}

// deduplicate drops exact repeats, preserving first-seen order.
func deduplicate(rows []Row) []Row {
	seen := make(map[Row]struct{}, len(rows))
	unique := make([]Row, 0, len(rows))
	for _, row := range rows {
		if _, ok := seen[row]; ok {
			continue
		}
		seen[row] = struct{}{}
		unique = append(unique, row)
	}
	return unique
}

func (e *Exporter) write(rows []Row) error {
	if dir := filepath.Dir(e.cfg.OutputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}

	f, err := os.Create(e.cfg.OutputPath)
	if err != nil {
		return fmt.Errorf("creating output: %w", err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, row := range rows {
		if err := enc.Encode(row); err != nil {
			return fmt.Errorf("writing row: %w", err)
		}
	}
	return nil
}
