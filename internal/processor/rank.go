package processor

import "sort"

// FlagConfig is one indexer's user-configured ranking preference, sourced
// from the `prowlarr_indexers` configuration key.
type FlagConfig struct {
	IndexerName     string
	Priority        int // higher wins; ties broken by preferred-format match, then seeders
	PreferredFormat string
}

// rank sorts candidates by (indexer priority desc, preferred-format match
// desc, seeders desc, original position asc) so selection is deterministic
// given the same inputs, as spec.md §9 requires. candidates is not mutated;
// a new, sorted slice is returned.
func rank(candidates []RankedCandidate, flags []FlagConfig) []RankedCandidate {
	priorityOf := make(map[string]int, len(flags))
	preferredFormatOf := make(map[string]string, len(flags))
	for _, f := range flags {
		priorityOf[f.IndexerName] = f.Priority
		preferredFormatOf[f.IndexerName] = f.PreferredFormat
	}

	out := make([]RankedCandidate, len(candidates))
	copy(out, candidates)

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		pa, pb := priorityOf[a.IndexerName], priorityOf[b.IndexerName]
		if pa != pb {
			return pa > pb
		}
		fa := a.Format != "" && a.Format == preferredFormatOf[a.IndexerName]
		fb := b.Format != "" && b.Format == preferredFormatOf[b.IndexerName]
		if fa != fb {
			return fa
		}
		if a.Seeders != b.Seeders {
			return a.Seeders > b.Seeders
		}
		return false // stable sort keeps original order for remaining ties
	})
	return out
}

// RankedCandidate is the subset of clients.Candidate fields the ranking
// algorithm needs, decoupled from the client package so rank stays a pure
// function over plain data.
type RankedCandidate struct {
	IndexerName string
	Title       string
	DownloadURL string
	Protocol    string
	Format      string
	Seeders     int
}
