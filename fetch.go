package fetch

// CacheKey identifies a fetched value globally: the source's stable name
// plus the deterministic identity key.
type CacheKey struct {
	Source   string
	Identity string
}

// request is one pending leaf: an identity bound to its source.
type request struct {
	source *boundSource
	id     any
	key    CacheKey
}

// requestSet is an insertion-ordered set of requests, deduplicated by cache
// key. Sets are treated as immutable; union allocates.
type requestSet struct {
	order []*request
	byKey map[CacheKey]*request
}

func singletonRequestSet(r *request) *requestSet {
	return &requestSet{
		order: []*request{r},
		byKey: map[CacheKey]*request{r.key: r},
	}
}

func (s *requestSet) union(o *requestSet) *requestSet {
	merged := &requestSet{
		order: make([]*request, 0, len(s.order)+len(o.order)),
		byKey: make(map[CacheKey]*request, len(s.order)+len(o.order)),
	}
	for _, r := range s.order {
		merged.order = append(merged.order, r)
		merged.byKey[r.key] = r
	}
	for _, r := range o.order {
		if _, dup := merged.byKey[r.key]; dup {
			continue
		}
		merged.order = append(merged.order, r)
		merged.byKey[r.key] = r
	}
	return merged
}

// roundResults carries one round's resolved values (cached and fetched) into
// the resuming continuations.
type roundResults map[CacheKey]any

// Fetch is an immutable description of a computation over remote data.
// The zero value is not meaningful; build descriptions with Pure, Fail, New
// and the combinators. A Fetch may be executed repeatedly; execution never
// mutates the description.
type Fetch[A any] struct {
	value A
	err   error
	reqs  *requestSet
	cont  func(roundResults) Fetch[A]
}

func (f Fetch[A]) blocked() bool { return f.err == nil && f.reqs != nil }
func (f Fetch[A]) failed() bool  { return f.err != nil }
func (f Fetch[A]) done() bool    { return f.err == nil && f.reqs == nil }

// Value returns the resolved value of a terminal description, as produced by
// RunFetch. It is the zero value unless the description is done.
func (f Fetch[A]) Value() (A, bool) { return f.value, f.done() }

// Err returns the lifted error of a failed description.
func (f Fetch[A]) Err() error { return f.err }

// Pure lifts an already-known value.
func Pure[A any](v A) Fetch[A] { return Fetch[A]{value: v} }

// Fail lifts an error; it surfaces unchanged from Run.
func Fail[A any](err error) Fetch[A] { return Fetch[A]{err: err} }

// New describes fetching one identity from a source. Nothing is requested
// until the description is run.
func New[I comparable, R any](src DataSource[I, R], id I) Fetch[R] {
	bs := bindSource(src)
	key := CacheKey{Source: bs.name, Identity: bs.keyOf(id)}
	req := &request{source: bs, id: id, key: key}
	return Fetch[R]{
		reqs: singletonRequestSet(req),
		cont: func(res roundResults) Fetch[R] {
			v, ok := res[key]
			if !ok {
				return Fail[R](&MissingIdentityError{Source: key.Source, Identity: key.Identity})
			}
			return Pure(v.(R))
		},
	}
}

// Map applies a pure function to the eventual value.
func Map[A, B any](fa Fetch[A], f func(A) B) Fetch[B] {
	switch {
	case fa.failed():
		return Fail[B](fa.err)
	case fa.done():
		return Pure(f(fa.value))
	default:
		return Fetch[B]{
			reqs: fa.reqs,
			cont: func(res roundResults) Fetch[B] { return Map(fa.cont(res), f) },
		}
	}
}

// FlatMap sequences a dependent fetch after fa. The dependency is strict:
// nothing described by f joins the current frontier, so two fetches composed
// with FlatMap always occupy distinct rounds.
func FlatMap[A, B any](fa Fetch[A], f func(A) Fetch[B]) Fetch[B] {
	switch {
	case fa.failed():
		return Fail[B](fa.err)
	case fa.done():
		return f(fa.value)
	default:
		return Fetch[B]{
			reqs: fa.reqs,
			cont: func(res roundResults) Fetch[B] { return FlatMap(fa.cont(res), f) },
		}
	}
}

// Pair is the positional result of Join.
type Pair[A, B any] struct {
	First  A
	Second B
}

// Join composes two independent fetches. Their frontiers merge, so requests
// to the same source batch together and requests to distinct sources share a
// round; the continuation reassembles the halves positionally. Neither side
// may observe the other's result.
func Join[A, B any](fa Fetch[A], fb Fetch[B]) Fetch[Pair[A, B]] {
	switch {
	case fa.failed():
		return Fail[Pair[A, B]](fa.err)
	case fb.failed():
		return Fail[Pair[A, B]](fb.err)
	case fa.done() && fb.done():
		return Pure(Pair[A, B]{First: fa.value, Second: fb.value})
	case fa.done():
		return Fetch[Pair[A, B]]{
			reqs: fb.reqs,
			cont: func(res roundResults) Fetch[Pair[A, B]] { return Join(fa, fb.cont(res)) },
		}
	case fb.done():
		return Fetch[Pair[A, B]]{
			reqs: fa.reqs,
			cont: func(res roundResults) Fetch[Pair[A, B]] { return Join(fa.cont(res), fb) },
		}
	default:
		return Fetch[Pair[A, B]]{
			reqs: fa.reqs.union(fb.reqs),
			cont: func(res roundResults) Fetch[Pair[A, B]] { return Join(fa.cont(res), fb.cont(res)) },
		}
	}
}

// Sequence turns a list of fetches into a fetch of the list, folding with
// Join so the whole list exposes one frontier.
func Sequence[A any](fas []Fetch[A]) Fetch[[]A] {
	acc := Pure(make([]A, 0, len(fas)))
	for _, fa := range fas {
		acc = Map(Join(acc, fa), appendPair[A])
	}
	return acc
}

// Traverse describes fetching f(id) for every id, with the same applicative
// folding as Sequence: one round frontier, positional results.
func Traverse[I any, A any](ids []I, f func(I) Fetch[A]) Fetch[[]A] {
	acc := Pure(make([]A, 0, len(ids)))
	for _, id := range ids {
		acc = Map(Join(acc, f(id)), appendPair[A])
	}
	return acc
}

// appendPair extends the accumulated slice without sharing backing arrays
// between executions of the same description.
func appendPair[A any](p Pair[[]A, A]) []A {
	out := make([]A, len(p.First)+1)
	copy(out, p.First)
	out[len(p.First)] = p.Second
	return out
}
