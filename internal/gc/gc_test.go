package gc_test

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jcorbin/corelisp/internal/gc"
	"github.com/jcorbin/corelisp/internal/heap"
	"github.com/jcorbin/corelisp/internal/value"
)

func TestRootedValueSurvivesCollection(t *testing.T) {
	h := heap.New()
	c := gc.New(h)

	root := h.MakePair(h.MakeFixnum(1), h.MakeFixnum(2))
	pop := c.ScopedRoot(&root)
	defer pop()

	freed := c.Collect()
	assert.True(t, c.Reachable(root), "rooted pair should survive a collection")
	assert.GreaterOrEqual(t, freed, 0)
}

func TestUnrootedValueIsCollected(t *testing.T) {
	h := heap.New()
	c := gc.New(h)

	garbage := h.MakePair(h.MakeFixnum(1), h.MakeFixnum(2))
	c.Collect()
	assert.False(t, c.Reachable(garbage), "unrooted pair must not survive a collection")
}

func TestInternedSymbolsAreAlwaysLive(t *testing.T) {
	h := heap.New()
	c := gc.New(h)

	sym := h.Intern("loop")
	c.Collect()
	assert.True(t, c.Reachable(sym), "interned symbols are roots regardless of the root stack")
}

func TestPushPopRootBalance(t *testing.T) {
	h := heap.New()
	c := gc.New(h)
	require.Equal(t, 0, c.RootStackDepth())

	var a, b value.Value
	c.PushRoot(&a)
	c.PushRoot(&b)
	assert.Equal(t, 2, c.RootStackDepth())

	require.NoError(t, c.PopRoot(&a)) // non-LIFO pop is tolerated
	assert.Equal(t, 1, c.RootStackDepth())
	require.NoError(t, c.PopRoot(&b))
	assert.Equal(t, 0, c.RootStackDepth())
}

func TestPopRootDesyncError(t *testing.T) {
	h := heap.New()
	c := gc.New(h)

	var unpushed value.Value
	err := c.PopRoot(&unpushed)
	require.Error(t, err)
	var desync gc.RootStackDesyncError
	assert.ErrorAs(t, err, &desync)
}

func TestTraceFollowsVectorElements(t *testing.T) {
	h := heap.New()
	c := gc.New(h)

	inner := h.MakePair(h.MakeFixnum(9), h.MakeFixnum(10))
	vec := h.MakeVector(1, h.EmptyList())
	h.VectorSet(vec, 0, inner)
	pop := c.ScopedRoot(&vec)
	defer pop()

	c.Collect()
	assert.True(t, c.Reachable(vec))
	assert.True(t, c.Reachable(inner), "values reachable only via a vector slot must be traced")
}

// TestReachableSetMatchesOldListMembership checks Testable Property 2: after
// a collection, the set of cells transitively reachable from roots is
// exactly the membership of the heap's old list, independently recomputed
// here by walking TraceChildren from the same roots the collector used.
func TestReachableSetMatchesOldListMembership(t *testing.T) {
	h := heap.New()
	c := gc.New(h)

	a := h.MakeFixnum(1)
	b := h.MakeFixnum(2)
	root := h.MakePair(a, b)
	vec := h.MakeVector(1, h.EmptyList())
	h.VectorSet(vec, 0, root)
	pop := c.ScopedRoot(&vec)
	defer pop()

	_ = h.MakePair(h.MakeFixnum(99), h.MakeFixnum(100)) // unrooted garbage

	c.Collect()

	seen := map[value.Value]bool{}
	var walk func(value.Value)
	walk = func(v value.Value) {
		if v == value.None || seen[v] {
			return
		}
		seen[v] = true
		for _, child := range h.TraceChildren(v) {
			walk(child)
		}
	}
	for _, r := range h.AlwaysLiveRoots() {
		walk(r)
	}
	walk(vec)

	var wantReachable []value.Value
	for v := range seen {
		wantReachable = append(wantReachable, v)
	}

	var gotOld []value.Value
	for v := h.OldHead(); v != value.None; v = h.Next(v) {
		gotOld = append(gotOld, v)
	}

	sortValues := func(vs []value.Value) {
		sort.Slice(vs, func(i, j int) bool { return vs[i] < vs[j] })
	}
	sortValues(wantReachable)
	sortValues(gotOld)

	if diff := cmp.Diff(wantReachable, gotOld); diff != "" {
		t.Errorf("reachable set vs old-list membership mismatch (-want +got):\n%s", diff)
	}
}

func TestProtectDuringGCRootsThenRestores(t *testing.T) {
	h := heap.New()
	c := gc.New(h)

	car := h.MakeFixnum(11)
	cdr := h.MakeFixnum(12)

	require.NotNil(t, h.ProtectDuringGC)
	restore := h.ProtectDuringGC(car, cdr)
	require.Equal(t, 2, c.RootStackDepth())

	c.Collect()
	assert.True(t, c.Reachable(car), "protected value must survive a collection mid-construction")
	assert.True(t, c.Reachable(cdr))

	restore()
	assert.Equal(t, 0, c.RootStackDepth(), "restore must pop exactly what it pushed")
}
