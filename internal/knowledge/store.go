package knowledge

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/yonasatinafu/portfolio-bot/internal/textutil"
)

// Normalization caps applied while loading documents.
const (
	maxSummaryChars = 16000
	maxURLChars     = 300
	maxTitleChars   = 300
	maxDocChars     = 20000
)

// Page-context boost factors. A chunk from the exact page the visitor
// is on gets a multiplicative lift plus an additive floor so same-page
// content surfaces even with weak lexical overlap; a parent-path match
// gets a small lift only.
const (
	exactPageMultiplier  = 1.45
	exactPageFloor       = 0.8
	parentPathMultiplier = 1.1
)

// Params controls corpus loading and retrieval.
type Params struct {
	SummaryPath   string
	KnowledgePath string
	ChunkWords    int
	OverlapWords  int
	MinTopScore   float64
}

// Store holds the chunked corpus and its lexical index. Built once,
// read-only afterwards; safe for concurrent Retrieve calls.
type Store struct {
	chunks      []Chunk
	index       *bm25
	minTopScore float64
}

// corpusLine is one JSONL record of the exported site corpus.
type corpusLine struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// Load reads the personal summary (optional) and the JSONL corpus
// (required), chunks every document and builds the index. A missing
// corpus file or an empty chunk set is fatal; individual malformed
// lines are skipped with a warning.
func Load(p Params, logger *slog.Logger) (*Store, error) {
	var docs []Document

	if p.SummaryPath != "" {
		if raw, err := os.ReadFile(p.SummaryPath); err == nil {
			if summary := textutil.Normalize(string(raw), maxSummaryChars); summary != "" {
				docs = append(docs, Document{Title: "Personal Summary", URL: "/about", Text: summary})
			}
		}
	}

	f, err := os.Open(p.KnowledgePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s (run the export step first)", ErrCorpusMissing, p.KnowledgePath)
	}
	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var payload corpusLine
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			logger.Warn("skipping invalid JSONL line", "error", err)
			continue
		}
		url := textutil.Normalize(payload.URL, maxURLChars)
		title := textutil.Normalize(payload.Title, maxTitleChars)
		text := textutil.Normalize(payload.Text, maxDocChars)
		if url == "/404" {
			continue
		}
		if text == "" {
			continue
		}
		if title == "" {
			title = "Untitled"
		}
		if url == "" {
			url = "/"
		}
		docs = append(docs, Document{Title: title, URL: url, Text: text})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading corpus: %w", err)
	}

	return Build(docs, p, logger)
}

// Build chunks the documents and constructs the index. Exposed
// separately from Load so tests can build a store from in-memory
// documents.
func Build(docs []Document, p Params, logger *slog.Logger) (*Store, error) {
	var chunks []Chunk
	for _, doc := range docs {
		for _, part := range chunkText(doc.Text, p.ChunkWords, p.OverlapWords) {
			tokens := textutil.Tokenize(part)
			if len(tokens) == 0 {
				continue
			}
			chunks = append(chunks, Chunk{Title: doc.Title, URL: doc.URL, Text: part, Tokens: tokens})
		}
	}
	if len(chunks) == 0 {
		return nil, ErrNoChunks
	}

	tokenLists := make([][]string, len(chunks))
	for i, c := range chunks {
		tokenLists[i] = c.Tokens
	}

	logger.Info("knowledge loaded", "documents", len(docs), "chunks", len(chunks))

	return &Store{
		chunks:      chunks,
		index:       newBM25(tokenLists),
		minTopScore: p.MinTopScore,
	}, nil
}

// chunkText splits text into windows of at most chunkWords
// whitespace-delimited words, advancing by chunkWords-overlap each
// step. The final window may be shorter; every word lands in at least
// one window.
func chunkText(text string, chunkWords, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	stride := chunkWords - overlap
	if stride < 1 {
		stride = 1
	}
	var parts []string
	for start := 0; start < len(words); start += stride {
		end := start + chunkWords
		if end > len(words) {
			end = len(words)
		}
		if part := strings.TrimSpace(strings.Join(words[start:end], " ")); part != "" {
			parts = append(parts, part)
		}
		if end >= len(words) {
			break
		}
	}
	return parts
}

// Len returns the number of chunks in the store.
func (s *Store) Len() int {
	return len(s.chunks)
}

// Retrieve scores every chunk against the query, applies the
// page-context boost for pageURL, and returns up to topK chunks with
// positive adjusted scores, ordered by score descending. Ties keep
// index order, so results are fully deterministic.
func (s *Store) Retrieve(query, pageURL string, topK int) []ScoredChunk {
	queryTokens := textutil.Tokenize(query)
	if len(queryTokens) == 0 {
		return nil
	}

	scores := s.index.scores(queryTokens)

	if page := textutil.NormalizePagePath(pageURL); page != "" {
		for i, chunk := range s.chunks {
			chunkPath := textutil.NormalizePagePath(chunk.URL)
			switch {
			case chunkPath == page:
				scores[i] = scores[i]*exactPageMultiplier + exactPageFloor
			case chunkPath != "" && strings.Contains(chunkPath, page):
				scores[i] *= parentPathMultiplier
			}
		}
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] > scores[order[b]]
	})

	candidates := 3 * topK
	if candidates < topK {
		candidates = topK
	}
	if candidates > len(order) {
		candidates = len(order)
	}

	var results []ScoredChunk
	for _, idx := range order[:candidates] {
		if scores[idx] <= 0 {
			continue
		}
		results = append(results, ScoredChunk{Chunk: s.chunks[idx], Score: scores[idx]})
		if len(results) >= topK {
			break
		}
	}
	return results
}

// Sufficient reports whether retrieved context is strong enough to
// answer from: either the top score clears the configured threshold,
// or the two best positive scores together clear 1.4x the threshold.
// Empty results are never sufficient.
func (s *Store) Sufficient(results []ScoredChunk) bool {
	if len(results) == 0 {
		return false
	}
	if results[0].Score >= s.minTopScore {
		return true
	}
	var positives []float64
	for _, r := range results {
		if r.Score > 0 {
			positives = append(positives, r.Score)
		}
	}
	return len(positives) >= 2 && positives[0]+positives[1] >= s.minTopScore*1.4
}
