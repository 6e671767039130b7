package datasetsource

import "testing"

func TestRank_OrdersByKeywordCoverageThenPopularityThenSize(t *testing.T) {
	in := []Candidate{
		{Name: "a", KeywordCoverage: 1, Popularity: 5, SizeBytes: 100},
		{Name: "b", KeywordCoverage: 2, Popularity: 1, SizeBytes: 500},
		{Name: "c", KeywordCoverage: 2, Popularity: 1, SizeBytes: 200},
	}
	out := Rank(in)
	if out[0].Name != "c" || out[1].Name != "b" || out[2].Name != "a" {
		t.Fatalf("unexpected rank order: %+v", out)
	}
}
