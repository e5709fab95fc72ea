// Package fetch implements a batched, deduplicating, concurrent data-fetch
// planner: callers describe a computation over remote data as a composable
// Fetch value, and the engine executes that description so that independent
// requests to the same source are coalesced into one batch, independent
// requests to distinct sources are issued in parallel, and every distinct
// identity is fetched at most once per execution through a caller-supplied
// cache.
//
// # Execution Model
//
// A Fetch is an immutable description tree in one of three states:
//   - done: the value is already known.
//   - failed: an error has been lifted into the description.
//   - blocked: a frontier of independent data requests plus a continuation
//     that consumes their results and produces the next tree.
//
// Execution proceeds in rounds. Each round the engine:
//
//	A. Planning
//	   - Walks the blocked frontier (never through a FlatMap boundary) and
//	     groups its requests by data-source name, deduplicating identities
//	     within a group.
//	B. Cache filtering
//	   - Identities already present in the environment cache are served from
//	     it; a group left empty after filtering dispatches nothing. A round
//	     served entirely from cache is recorded with Cached=true.
//	C. Dispatch
//	   - Each remaining group becomes one source call: FetchOne for a single
//	     identity, FetchMany otherwise. Groups run in parallel; the first
//	     failure cancels the siblings and the round writes nothing.
//	D. Completion
//	   - Every dispatched identity must resolve. A missing identity aborts
//	     the execution with a FetchFailedError carrying the environment as
//	     of the failing round. Results merge into the cache, the round is
//	     appended to the log, and the continuation resumes with the union of
//	     cached and fetched values.
//
// The loop repeats until the tree is done or failed. For a description with
// monadic depth d the engine performs at least d rounds; purely applicative
// composition never adds depth.
//
// # Composition
//
// Pure, Fail and New construct leaves. Map and FlatMap compose sequentially:
// a FlatMap is a strict data dependency and never widens the current
// frontier. Join composes in parallel, merging the two frontiers into one;
// Sequence and Traverse fold with Join so an entire list exposes a single
// frontier. Continuations are pure; resuming a tree allocates fresh nodes and
// never mutates the original, so a Fetch value may be executed any number of
// times.
//
// # Caching
//
// The Cache interface is functional: Update returns the cache reflecting the
// write. The default in-memory cache is a persistent copy-on-write map, so an
// environment captured at failure time is a snapshot. Custom caches (bounded,
// layered, shared, or deliberately forgetful) plug in via WithCache; the
// engine keeps no memo of its own, so a cache that discards writes forces a
// refetch on every later round.
//
// # Observability
//
// The engine publishes typed events (execution, round, and per-source fetch
// boundaries) on the process-global eventbus. The otel, metrics and logging
// subpackages attach subscribers that translate those events into traces,
// prometheus series and structured logs respectively; RunEnv additionally
// returns the environment with the full round log.
package fetch
