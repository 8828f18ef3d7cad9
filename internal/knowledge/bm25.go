package knowledge

import "math"

// BM25 Okapi parameters. These are the conventional defaults; changing
// them changes every score in the index, so they are fixed constants
// rather than configuration.
const (
	bm25K1      = 1.5
	bm25B       = 0.75
	bm25Epsilon = 0.25
)

// bm25 is an Okapi BM25 index over tokenized chunks.
//
// IDF uses the classic ln((N-n+0.5)/(n+0.5)) formulation. Terms that
// appear in more than half the corpus get a negative IDF there; those
// are floored to epsilon times the average IDF so common-but-present
// terms still contribute a small positive weight instead of penalizing
// a match.
type bm25 struct {
	termFreqs []map[string]int
	docLens   []int
	avgDocLen float64
	idf       map[string]float64
}

func newBM25(docs [][]string) *bm25 {
	idx := &bm25{
		termFreqs: make([]map[string]int, len(docs)),
		docLens:   make([]int, len(docs)),
		idf:       make(map[string]float64),
	}

	docFreq := make(map[string]int)
	totalLen := 0
	for i, tokens := range docs {
		freq := make(map[string]int, len(tokens))
		for _, tok := range tokens {
			freq[tok]++
		}
		idx.termFreqs[i] = freq
		idx.docLens[i] = len(tokens)
		totalLen += len(tokens)
		for tok := range freq {
			docFreq[tok]++
		}
	}
	if len(docs) > 0 {
		idx.avgDocLen = float64(totalLen) / float64(len(docs))
	}

	n := float64(len(docs))
	idfSum := 0.0
	var negative []string
	for tok, df := range docFreq {
		idf := math.Log((n - float64(df) + 0.5) / (float64(df) + 0.5))
		idx.idf[tok] = idf
		idfSum += idf
		if idf < 0 {
			negative = append(negative, tok)
		}
	}
	if len(docFreq) > 0 {
		avgIDF := idfSum / float64(len(docFreq))
		floor := bm25Epsilon * avgIDF
		for _, tok := range negative {
			idx.idf[tok] = floor
		}
	}

	return idx
}

// scores computes the BM25 score of every document against the query
// tokens, in document order. Query tokens absent from the corpus
// contribute nothing.
func (idx *bm25) scores(query []string) []float64 {
	scores := make([]float64, len(idx.termFreqs))
	for _, tok := range query {
		idf, ok := idx.idf[tok]
		if !ok {
			continue
		}
		for i, freqs := range idx.termFreqs {
			f := float64(freqs[tok])
			if f == 0 {
				continue
			}
			norm := 1 - bm25B + bm25B*float64(idx.docLens[i])/idx.avgDocLen
			scores[i] += idf * (f * (bm25K1 + 1)) / (f + bm25K1*norm)
		}
	}
	return scores
}
