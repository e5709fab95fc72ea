package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TimothyKlim/fetch/eventbus"
	"github.com/TimothyKlim/fetch/events"
	"github.com/TimothyKlim/fetch/execid"
)

// Run executes a description and returns its value, discarding the
// environment.
func Run[A any](ctx context.Context, fa Fetch[A], opts ...RunOption) (A, error) {
	_, v, err := RunEnv(ctx, fa, opts...)
	return v, err
}

// RunEnv executes a description and returns the environment alongside the
// value. The environment is returned even on failure, reflecting the rounds
// performed up to that point.
func RunEnv[A any](ctx context.Context, fa Fetch[A], opts ...RunOption) (*Env, A, error) {
	env, final, err := RunFetch(ctx, fa, opts...)
	if err != nil {
		var zero A
		return env, zero, err
	}
	v, _ := final.Value()
	return env, v, nil
}

// RunFetch executes a description and returns the environment together with
// the terminal description.
func RunFetch[A any](ctx context.Context, fa Fetch[A], opts ...RunOption) (*Env, Fetch[A], error) {
	cfg := defaultRunConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	id, ok := execid.FromContext(ctx)
	if !ok {
		ctx, id = execid.NewContext(ctx)
	}
	env := &Env{Cache: cfg.cache}

	start := time.Now()
	eventbus.Publish(ctx, events.ExecStart{ExecID: id})
	env, fa, err := runLoop(ctx, env, fa)
	eventbus.Publish(ctx, events.ExecFinish{
		ExecID:   id,
		Rounds:   len(env.Rounds),
		Err:      err,
		Duration: time.Since(start),
	})
	return env, fa, err
}

func runLoop[A any](ctx context.Context, env *Env, fa Fetch[A]) (*Env, Fetch[A], error) {
	for {
		if err := ctx.Err(); err != nil {
			return env, fa, err
		}
		switch {
		case fa.failed():
			return env, fa, fa.err
		case fa.done():
			return env, fa, nil
		}
		res, err := executeRound(ctx, env, fa.reqs)
		if err != nil {
			return env, fa, err
		}
		fa = fa.cont(res)
	}
}

// groupDispatch tracks one source group through a round.
type groupDispatch struct {
	group       *sourceGroup
	missingIDs  []any
	missingKeys []CacheKey
	fetched     map[string]any
	query       *SourceQuery
}

// executeRound performs one engine step against the frontier: cache
// filtering, parallel dispatch, completeness checking, cache merge and round
// recording. On success it returns the union of cached and fetched values
// for the frontier. The environment is advanced in place; a failed round
// advances it only for a missing identity (the failing round is recorded
// before the error is wrapped).
func executeRound(ctx context.Context, env *Env, reqs *requestSet) (roundResults, error) {
	plan := planRound(reqs)
	execID, _ := execid.FromContext(ctx)
	round := len(env.Rounds)

	start := time.Now()
	res := make(roundResults, len(reqs.order))
	queries := make([]SourceQuery, len(plan.groups))
	dispatches := make([]*groupDispatch, 0, len(plan.groups))
	sources := make([]string, 0, len(plan.groups))

	for i, g := range plan.groups {
		sources = append(sources, g.source.name)
		sq := &queries[i]
		sq.Source = g.source.name
		sq.Identities = make([]string, 0, len(g.keys))
		d := &groupDispatch{group: g, query: sq}
		for j, key := range g.keys {
			sq.Identities = append(sq.Identities, key.Identity)
			if v, ok := env.Cache.Get(key); ok {
				res[key] = v
				sq.CacheHits++
				continue
			}
			d.missingIDs = append(d.missingIDs, g.ids[j])
			d.missingKeys = append(d.missingKeys, key)
		}
		if len(d.missingIDs) > 0 {
			dispatches = append(dispatches, d)
		}
	}

	eventbus.Publish(ctx, events.RoundStart{
		ExecID:     execID,
		Round:      round,
		Sources:    sources,
		Identities: len(reqs.order),
	})

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range dispatches {
		g.Go(func() error { return dispatchGroup(gctx, execID, round, d) })
	}
	err := g.Wait()
	end := time.Now()

	if err != nil {
		eventbus.Publish(ctx, events.RoundFinish{
			ExecID:   execID,
			Round:    round,
			Kind:     classifyRound(queries).String(),
			Err:      err,
			Duration: end.Sub(start),
		})
		var missing *MissingIdentityError
		if !errors.As(err, &missing) {
			// Effect-level failure: propagate unchanged, record nothing.
			return nil, err
		}
		env.Rounds = append(env.Rounds, Round{
			Start:   start,
			End:     end,
			Kind:    classifyRound(queries),
			Queries: queries,
		})
		return nil, &FetchFailedError{Env: env, Err: err}
	}

	entries := make(map[CacheKey]any)
	for _, d := range dispatches {
		d.query.Fetched = len(d.missingKeys)
		for _, key := range d.missingKeys {
			v := d.fetched[key.Identity]
			entries[key] = v
			res[key] = v
		}
	}
	if len(entries) > 0 {
		env.Cache = MergeInto(env.Cache, entries)
	}

	rec := Round{
		Start:   start,
		End:     end,
		Kind:    classifyRound(queries),
		Cached:  len(dispatches) == 0,
		Queries: queries,
	}
	env.Rounds = append(env.Rounds, rec)

	eventbus.Publish(ctx, events.RoundFinish{
		ExecID:    execID,
		Round:     round,
		Kind:      rec.Kind.String(),
		Cached:    rec.Cached,
		CacheHits: rec.cacheHits(),
		Fetched:   len(entries),
		Duration:  end.Sub(start),
	})
	return res, nil
}

func (r Round) cacheHits() int {
	n := 0
	for _, q := range r.Queries {
		n += q.CacheHits
	}
	return n
}

// dispatchGroup issues one source call for a group's uncached identities and
// verifies completeness. Results land on the dispatch; nothing touches
// shared state, so groups run concurrently without locks.
func dispatchGroup(ctx context.Context, execID int64, round int, d *groupDispatch) error {
	src := d.group.source
	batch := len(d.missingIDs) > 1
	d.query.Batched = batch

	start := time.Now()
	eventbus.Publish(ctx, events.SourceFetchStart{
		ExecID:     execID,
		Round:      round,
		Source:     src.name,
		Identities: len(d.missingIDs),
		Batch:      batch,
	})
	err := fetchGroup(ctx, d)
	eventbus.Publish(ctx, events.SourceFetchFinish{
		ExecID:     execID,
		Round:      round,
		Source:     src.name,
		Identities: len(d.missingIDs),
		Batch:      batch,
		Err:        err,
		Duration:   time.Since(start),
	})
	return err
}

func fetchGroup(ctx context.Context, d *groupDispatch) error {
	src := d.group.source
	if len(d.missingIDs) == 1 {
		key := d.missingKeys[0]
		v, ok, err := src.fetchOne(ctx, d.missingIDs[0])
		if err != nil {
			return fmt.Errorf("fetch: source %q: %w", src.name, err)
		}
		if !ok {
			return &MissingIdentityError{Source: key.Source, Identity: key.Identity}
		}
		d.fetched = map[string]any{key.Identity: v}
		return nil
	}

	m, err := src.fetchMany(ctx, d.missingIDs)
	if err != nil {
		return fmt.Errorf("fetch: source %q: %w", src.name, err)
	}
	// Copy out only what was requested; extra entries a source volunteers
	// are not cached.
	fetched := make(map[string]any, len(d.missingKeys))
	for _, key := range d.missingKeys {
		v, ok := m[key.Identity]
		if !ok {
			return &MissingIdentityError{Source: key.Source, Identity: key.Identity}
		}
		fetched[key.Identity] = v
	}
	d.fetched = fetched
	return nil
}
