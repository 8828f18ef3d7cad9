package export

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yonasatinafu/portfolio-bot/internal/config"
	"github.com/yonasatinafu/portfolio-bot/internal/log"
)

func TestRouteFromFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		file string
		want string
	}{
		{"index is root", "index.html", "/"},
		{"error page keeps route", "404.html", "/404"},
		{"regular page", "projects.html", "/projects"},
		{"nested path uses base", "out/blog.html", "/blog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, routeFromFilename(tt.file))
		})
	}
}

func writePage(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func readRows(t *testing.T, path string) []Row {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var rows []Row
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var row Row
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &row))
		rows = append(rows, row)
	}
	require.NoError(t, scanner.Err())
	return rows
}

func TestRun_RenderedHTML(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	htmlDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(htmlDir, 0o755))

	writePage(t, htmlDir, "index.html", `<html><head><title>Home</title>
		<style>body { color: red }</style></head>
		<body><main><h1>Welcome</h1><p>Portfolio of a Go engineer.</p>
		<script>console.log("skip me")</script></main></body></html>`)
	writePage(t, htmlDir, "projects.html", `<html><head><title>Projects</title></head>
		<body><p>Backend services written in Go.</p></body></html>`)
	writePage(t, htmlDir, "_app.html", `<html><head><title>Ignored</title></head><body>framework shell</body></html>`)
	writePage(t, htmlDir, "notes.txt", "not a page")

	summaryPath := filepath.Join(dir, "summary.txt")
	require.NoError(t, os.WriteFile(summaryPath, []byte("Engineer building web services."), 0o644))

	output := filepath.Join(dir, "site_text.jsonl")
	exp := New(config.ExportConfig{HTMLDir: htmlDir, OutputPath: output}, summaryPath, log.NewNop())

	n, err := exp.Run()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows := readRows(t, output)
	require.Len(t, rows, 3)

	// Summary row comes first.
	assert.Equal(t, Row{URL: "/about", Title: "Personal Summary", Text: "Engineer building web services."}, rows[0])

	assert.Equal(t, "/", rows[1].URL)
	assert.Equal(t, "Home", rows[1].Title)
	assert.Contains(t, rows[1].Text, "Portfolio of a Go engineer.")
	assert.NotContains(t, rows[1].Text, "skip me")
	assert.NotContains(t, rows[1].Text, "color: red")

	assert.Equal(t, "/projects", rows[2].URL)
	assert.Contains(t, rows[2].Text, "Backend services written in Go.")
}

func TestRun_BodyFallbackAndUntitled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	htmlDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(htmlDir, 0o755))

	writePage(t, htmlDir, "plain.html", `<html><body><p>No main element here.</p></body></html>`)

	output := filepath.Join(dir, "site_text.jsonl")
	exp := New(config.ExportConfig{HTMLDir: htmlDir, OutputPath: output}, "", log.NewNop())

	_, err := exp.Run()
	require.NoError(t, err)

	rows := readRows(t, output)
	require.Len(t, rows, 1)
	assert.Equal(t, "Untitled", rows[0].Title)
	assert.Equal(t, "No main element here.", rows[0].Text)
}

func TestRun_DeduplicatesRows(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	htmlDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(htmlDir, 0o755))

	// The summary file duplicates what a page already says through the
	// same (url, title, text) triple only if all three match; distinct
	// routes always survive.
	page := `<html><head><title>Same</title></head><body><main>Identical text.</main></body></html>`
	writePage(t, htmlDir, "a.html", page)
	writePage(t, htmlDir, "b.html", page)

	output := filepath.Join(dir, "site_text.jsonl")
	exp := New(config.ExportConfig{HTMLDir: htmlDir, OutputPath: output}, "", log.NewNop())

	n, err := exp.Run()
	require.NoError(t, err)
	assert.Equal(t, 2, n, "same content on different routes is kept")

	rows := readRows(t, output)
	assert.Equal(t, "/a", rows[0].URL)
	assert.Equal(t, "/b", rows[1].URL)
}

func TestRun_MissingSourcesWritesEmptyCorpus(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	output := filepath.Join(dir, "knowledge", "site_text.jsonl")
	exp := New(config.ExportConfig{
		HTMLDir:    filepath.Join(dir, "absent"),
		OutputPath: output,
	}, "", log.NewNop())

	n, err := exp.Run()
	require.NoError(t, err)
	assert.Zero(t, n)

	// Output file exists so downstream tooling sees a corpus, even if
	// empty.
	_, err = os.Stat(output)
	assert.NoError(t, err)
}

func TestExtractVisibleText_Truncation(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	htmlDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(htmlDir, 0o755))

	long := strings.Repeat("word ", 10000)
	writePage(t, htmlDir, "big.html", `<html><head><title>Big</title></head><body><main>`+long+`</main></body></html>`)

	output := filepath.Join(dir, "site_text.jsonl")
	exp := New(config.ExportConfig{HTMLDir: htmlDir, OutputPath: output}, "", log.NewNop())

	_, err := exp.Run()
	require.NoError(t, err)

	rows := readRows(t, output)
	require.Len(t, rows, 1)
	assert.LessOrEqual(t, len(rows[0].Text), maxExportTextChars)
	assert.True(t, strings.HasSuffix(rows[0].Text, "..."))
}
