package fetch

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func frontierOf[A any](t *testing.T, fa Fetch[A]) *requestSet {
	t.Helper()
	if !fa.blocked() {
		t.Fatal("description is not blocked")
	}
	return fa.reqs
}

func TestPlanGroupsBySource(t *testing.T) {
	ints := newCountingSource("Ints")
	other := newCountingSource("Other")
	fa := Join(Join(New[int, int](ints, 1), New[int, int](other, 2)), New[int, int](ints, 3))

	plan := planRound(frontierOf(t, fa))
	if len(plan.groups) != 2 {
		t.Fatalf("groups = %d, want 2", len(plan.groups))
	}
	got := map[string][]any{}
	for _, g := range plan.groups {
		got[g.source.name] = g.ids
	}
	want := map[string][]any{
		"Ints":  {1, 3},
		"Other": {2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("plan mismatch (-want +got):\n%s", diff)
	}
}

func TestPlanDeduplicatesIdentities(t *testing.T) {
	ints := newCountingSource("Ints")
	fa := Join(Join(New[int, int](ints, 1), New[int, int](ints, 1)), New[int, int](ints, 2))
	plan := planRound(frontierOf(t, fa))
	if len(plan.groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(plan.groups))
	}
	if diff := cmp.Diff([]any{1, 2}, plan.groups[0].ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

func TestFlatMapKeepsFrontierNarrow(t *testing.T) {
	ints := newCountingSource("Ints")
	fa := FlatMap(New[int, int](ints, 1), func(int) Fetch[int] { return New[int, int](ints, 2) })
	plan := planRound(frontierOf(t, fa))
	if len(plan.groups) != 1 || len(plan.groups[0].ids) != 1 {
		t.Fatalf("frontier = %v, want only the first request", plan.groups)
	}
	if plan.groups[0].ids[0] != 1 {
		t.Fatalf("frontier id = %v, want 1", plan.groups[0].ids[0])
	}
}

func TestMergedSourcesSameNameShareGroup(t *testing.T) {
	// Two distinct values with the same stable name count as the same
	// source for planning.
	a := newCountingSource("Ints")
	b := newCountingSource("Ints")
	fa := Join(New[int, int](a, 1), New[int, int](b, 2))
	plan := planRound(frontierOf(t, fa))
	if len(plan.groups) != 1 {
		t.Fatalf("groups = %d, want 1", len(plan.groups))
	}
	if diff := cmp.Diff([]any{1, 2}, plan.groups[0].ids); diff != "" {
		t.Fatalf("ids mismatch (-want +got):\n%s", diff)
	}
}

type keyedID struct {
	Region string
	Num    int
}

type keyedSource struct{}

func (keyedSource) Name() string { return "Keyed" }

func (keyedSource) KeyOf(id keyedID) string { return fmt.Sprintf("%s#%d", id.Region, id.Num) }

func (keyedSource) FetchOne(ctx context.Context, id keyedID) Query[Option[int]] {
	return Now[Option[int]]{Value: Some(id.Num)}
}

func (keyedSource) FetchMany(ctx context.Context, ids []keyedID) Query[map[keyedID]int] {
	out := make(map[keyedID]int, len(ids))
	for _, id := range ids {
		out[id] = id.Num
	}
	return Now[map[keyedID]int]{Value: out}
}

func TestKeyerOverridesIdentityKey(t *testing.T) {
	fa := New[keyedID, int](keyedSource{}, keyedID{Region: "eu", Num: 1})
	reqs := frontierOf(t, fa)
	want := CacheKey{Source: "Keyed", Identity: "eu#1"}
	if _, ok := reqs.byKey[want]; !ok {
		t.Fatalf("keys = %v, want %v", reqs.byKey, want)
	}
}
