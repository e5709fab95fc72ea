package fetch

import (
	"context"
	"fmt"
)

// Option is a value that may be absent. FetchOne returns None to report that
// the source has no record for the identity.
type Option[R any] struct {
	value   R
	present bool
}

// Some wraps a present value.
func Some[R any](v R) Option[R] { return Option[R]{value: v, present: true} }

// None is the absent value.
func None[R any]() Option[R] { return Option[R]{} }

// Get returns the value and whether it is present.
func (o Option[R]) Get() (R, bool) { return o.value, o.present }

// IsNone reports absence.
func (o Option[R]) IsNone() bool { return !o.present }

// DataSource resolves identities of type I to results of type R.
//
// Name must be stable: it namespaces the cache and lets the planner merge
// requests from disparate parts of a description into one batch. FetchMany
// over a single-element slice must agree with FetchOne for that identity.
// Implementations must not rely on call ordering across sources within a
// round; groups run concurrently. The returned map may omit identities the
// source cannot resolve — the engine turns any omission into a failure — and
// entries for identities that were not requested are ignored.
type DataSource[I comparable, R any] interface {
	Name() string
	FetchOne(ctx context.Context, id I) Query[Option[R]]
	FetchMany(ctx context.Context, ids []I) Query[map[I]R]
}

// Keyer optionally overrides identity-key derivation for a source. The key
// must be stable and deterministic, and unique per identity within the
// source. Sources whose identities have no canonical textual form (or whose
// %#v rendering is unstable) should implement it.
type Keyer[I comparable] interface {
	KeyOf(id I) string
}

// identityKey derives the default cache key for an identity value.
func identityKey(id any) string {
	switch v := id.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%#v", v)
	}
}

// boundSource is the engine-facing view of a DataSource with the type
// parameters erased. Requests from any source shape can then share one
// frontier; values round-trip through the cache as any and are re-asserted
// by the leaf continuation that knows R.
type boundSource struct {
	name      string
	keyOf     func(id any) string
	fetchOne  func(ctx context.Context, id any) (any, bool, error)
	fetchMany func(ctx context.Context, ids []any) (map[string]any, error)
}

func bindSource[I comparable, R any](src DataSource[I, R]) *boundSource {
	keyOf := func(id any) string {
		typed := id.(I)
		if k, ok := src.(Keyer[I]); ok {
			return k.KeyOf(typed)
		}
		return identityKey(typed)
	}
	return &boundSource{
		name:  src.Name(),
		keyOf: keyOf,
		fetchOne: func(ctx context.Context, id any) (any, bool, error) {
			opt, err := RunQuery(ctx, src.FetchOne(ctx, id.(I)))
			if err != nil {
				return nil, false, err
			}
			v, ok := opt.Get()
			if !ok {
				return nil, false, nil
			}
			return v, true, nil
		},
		fetchMany: func(ctx context.Context, ids []any) (map[string]any, error) {
			typed := make([]I, len(ids))
			for i, id := range ids {
				typed[i] = id.(I)
			}
			m, err := RunQuery(ctx, src.FetchMany(ctx, typed))
			if err != nil {
				return nil, err
			}
			out := make(map[string]any, len(m))
			for id, v := range m {
				out[keyOf(id)] = v
			}
			return out, nil
		},
	}
}
