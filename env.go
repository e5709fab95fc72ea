package fetch

import "time"

// RoundKind classifies a round by the shape of its grouped frontier.
type RoundKind int

const (
	// RoundOne is a single source asked for a single identity.
	RoundOne RoundKind = iota
	// RoundMany is a single source asked for several identities at once.
	RoundMany
	// RoundConcurrent is several sources queried in parallel.
	RoundConcurrent
)

func (k RoundKind) String() string {
	switch k {
	case RoundOne:
		return "one"
	case RoundMany:
		return "many"
	case RoundConcurrent:
		return "concurrent"
	default:
		return "unknown"
	}
}

// SourceQuery records one source's share of a round.
type SourceQuery struct {
	Source     string
	Identities []string
	CacheHits  int
	Fetched    int
	// Batched reports whether the group dispatched as a FetchMany call.
	Batched bool
}

// Round records one engine step: the wall-clock window, the per-source
// breakdown, and whether the round was served entirely from cache.
type Round struct {
	Start   time.Time
	End     time.Time
	Kind    RoundKind
	Cached  bool
	Queries []SourceQuery
}

// Duration is the wall-clock span of the round.
func (r Round) Duration() time.Duration { return r.End.Sub(r.Start) }

// classifyRound derives the round kind from the grouped shape.
func classifyRound(queries []SourceQuery) RoundKind {
	if len(queries) > 1 {
		return RoundConcurrent
	}
	if len(queries) == 1 && len(queries[0].Identities) > 1 {
		return RoundMany
	}
	return RoundOne
}

// Env is the execution environment threaded between rounds: the current
// cache and the append-only round log, ordered by execution time.
type Env struct {
	Cache  Cache
	Rounds []Round
}

// TotalFetched counts identities actually requested from data sources.
func (e *Env) TotalFetched() int {
	n := 0
	for _, r := range e.Rounds {
		for _, q := range r.Queries {
			n += q.Fetched
		}
	}
	return n
}

// TotalBatches counts FetchMany dispatches.
func (e *Env) TotalBatches() int {
	n := 0
	for _, r := range e.Rounds {
		for _, q := range r.Queries {
			if q.Batched && q.Fetched > 0 {
				n++
			}
		}
	}
	return n
}

// TotalCacheHits counts identities served from the cache.
func (e *Env) TotalCacheHits() int {
	n := 0
	for _, r := range e.Rounds {
		for _, q := range r.Queries {
			n += q.CacheHits
		}
	}
	return n
}
