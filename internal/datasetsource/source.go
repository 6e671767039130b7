// Package datasetsource defines the dataset-source search boundary the
// dataset agent calls. Provider internals (the actual Kaggle/etc. search
// API) are explicitly out of scope — this package only defines the
// contract and a thin HTTP-based implementation that issues a single
// request per search (no retry).
package datasetsource

import "context"

// Candidate is one dataset search result.
type Candidate struct {
	Name            string
	DownloadURL     string
	SizeBytes       int64
	KeywordCoverage int // how many of the requested keywords this candidate matched
	Popularity      int
}

// Provider searches a dataset source for archives matching keywords.
type Provider interface {
	Search(ctx context.Context, keywords []string, maxSizeBytes int64) ([]Candidate, error)
}

// Rank orders candidates by the tie-break chain 
// step 2: keyword coverage, then popularity, then smaller size.
func Rank(candidates []Candidate) []Candidate {
	ranked := make([]Candidate, len(candidates))
	copy(ranked, candidates)
	for i := 1; i < len(ranked); i++ {
		j := i
		for j > 0 && less(ranked[j], ranked[j-1]) {
			ranked[j], ranked[j-1] = ranked[j-1], ranked[j]
			j--
		}
	}
	return ranked
}

// less reports whether a should rank ahead of b.
func less(a, b Candidate) bool {
	if a.KeywordCoverage != b.KeywordCoverage {
		return a.KeywordCoverage > b.KeywordCoverage
	}
	if a.Popularity != b.Popularity {
		return a.Popularity > b.Popularity
	}
	return a.SizeBytes < b.SizeBytes
}
