package hardlink

import (
	"sort"
	"testing"
)

func TestSingleGroupBasic(t *testing.T) {
	r := New()
	key := Key{Dev: 0xFD00, Ino: 12345}

	if !r.Register(key, 0) {
		t.Fatal("first registration should report true")
	}
	if r.Register(key, 5) {
		t.Fatal("second registration should report false")
	}
	if r.Register(key, 10) {
		t.Fatal("third registration should report false")
	}

	if got := r.Resolve(0); got.Action != Transfer {
		t.Errorf("resolve(0) = %v, want Transfer", got.Action)
	}
	if !r.IsSource(0) {
		t.Error("0 should be a hardlink source")
	}

	for _, idx := range []int64{5, 10} {
		got := r.Resolve(idx)
		if got.Action != LinkTo || got.Target != 0 {
			t.Errorf("resolve(%d) = %+v, want LinkTo(0)", idx, got)
		}
		if r.IsSource(idx) {
			t.Errorf("%d should not be a source", idx)
		}
	}

	if r.FileCount() != 3 {
		t.Errorf("FileCount() = %d, want 3", r.FileCount())
	}
	if r.GroupCount() != 1 {
		t.Errorf("GroupCount() = %d, want 1", r.GroupCount())
	}

	groups := r.Groups()
	if len(groups) != 1 || groups[0].Source != 0 {
		t.Fatalf("groups = %+v", groups)
	}
	if got := groups[0].Links; len(got) != 2 || got[0] != 5 || got[1] != 10 {
		t.Errorf("links = %v, want [5 10]", got)
	}
	if groups[0].TotalCount() != 3 {
		t.Errorf("TotalCount() = %d, want 3", groups[0].TotalCount())
	}
}

func TestMultipleGroups(t *testing.T) {
	r := New()
	k1 := Key{Dev: 1, Ino: 100}
	k2 := Key{Dev: 1, Ino: 200}
	k3 := Key{Dev: 1, Ino: 300}

	r.Register(k1, 0)
	r.Register(k1, 1)
	r.Register(k2, 2)
	r.Register(k2, 3)
	r.Register(k2, 4)
	r.Register(k3, 5) // singleton, never linked

	cases := []struct {
		index int64
		want  Action
		tgt   int64
	}{
		{0, Transfer, 0},
		{1, LinkTo, 0},
		{2, Transfer, 0},
		{3, LinkTo, 2},
		{4, LinkTo, 2},
		{5, Transfer, 0},
	}
	for _, c := range cases {
		got := r.Resolve(c.index)
		if got.Action != c.want || (c.want == LinkTo && got.Target != c.tgt) {
			t.Errorf("resolve(%d) = %+v, want %v target=%d", c.index, got, c.want, c.tgt)
		}
	}

	if r.IsSource(5) {
		t.Error("singleton registration must not be a hardlink source")
	}
	if r.FileCount() != 6 {
		t.Errorf("FileCount() = %d, want 6", r.FileCount())
	}
	if r.GroupCount() != 2 {
		t.Errorf("GroupCount() = %d, want 2 (singleton group excluded)", r.GroupCount())
	}
}

func TestCrossDeviceNotLinked(t *testing.T) {
	r := New()
	for i, dev := range []uint64{0, 1, 2} {
		r.Register(Key{Dev: dev, Ino: 12345}, int64(i))
	}
	for i := int64(0); i < 3; i++ {
		if got := r.Resolve(i); got.Action != Transfer {
			t.Errorf("resolve(%d) = %v, want Transfer", i, got.Action)
		}
		if r.IsSource(i) {
			t.Errorf("%d should not be a source (no group links)", i)
		}
	}
	if r.GroupCount() != 0 {
		t.Errorf("GroupCount() = %d, want 0", r.GroupCount())
	}
}

func TestUnregisteredIndexIsSkip(t *testing.T) {
	r := New()
	got := r.Resolve(999)
	if got.Action != Skip {
		t.Errorf("resolve(unregistered) = %v, want Skip", got.Action)
	}
	if _, ok := r.Target(999); ok {
		t.Error("Target(unregistered) should report ok=false")
	}
}

func TestGroupsIteratorSkipsSingletons(t *testing.T) {
	r := New()
	for i := int64(0); i < 5; i++ {
		r.Register(Key{Dev: 1, Ino: uint64(i)}, i)
	}
	key := Key{Dev: 1, Ino: 100}
	r.Register(key, 10)
	r.Register(key, 11)

	groups := r.Groups()
	if len(groups) != 1 || groups[0].Source != 10 {
		t.Fatalf("groups = %+v, want exactly one group with source 10", groups)
	}
}

func TestNegativeFileIndices(t *testing.T) {
	r := New()
	key := Key{Dev: 1, Ino: 100}
	r.Register(key, -10)
	r.Register(key, -5)
	r.Register(key, 0)
	r.Register(key, 5)

	if got := r.Resolve(-10); got.Action != Transfer {
		t.Errorf("resolve(-10) = %v, want Transfer", got.Action)
	}
	for _, idx := range []int64{-5, 0, 5} {
		got := r.Resolve(idx)
		if got.Action != LinkTo || got.Target != -10 {
			t.Errorf("resolve(%d) = %+v, want LinkTo(-10)", idx, got)
		}
	}
}

func TestClearResetsRegistry(t *testing.T) {
	r := New()
	key := Key{Dev: 1, Ino: 100}
	r.Register(key, 0)
	r.Register(key, 1)
	if r.FileCount() != 2 || r.GroupCount() != 1 {
		t.Fatalf("unexpected pre-clear state: files=%d groups=%d", r.FileCount(), r.GroupCount())
	}

	r.Clear()
	if r.FileCount() != 0 || r.GroupCount() != 0 {
		t.Fatalf("Clear() did not reset state: files=%d groups=%d", r.FileCount(), r.GroupCount())
	}

	r.Register(key, 100)
	r.Register(key, 101)
	if got := r.Resolve(100); got.Action != Transfer {
		t.Errorf("resolve(100) after clear = %v, want Transfer", got.Action)
	}
	if got := r.Resolve(101); got.Action != LinkTo || got.Target != 100 {
		t.Errorf("resolve(101) after clear = %+v, want LinkTo(100)", got)
	}
}

func TestLargeGroup(t *testing.T) {
	r := New()
	key := Key{Dev: 0xFD00, Ino: 999999}
	const numLinks = 10_000

	for i := int64(0); i < numLinks; i++ {
		isFirst := r.Register(key, i)
		if isFirst != (i == 0) {
			t.Fatalf("Register(%d) first=%v, want %v", i, isFirst, i == 0)
		}
	}

	if got := r.Resolve(0); got.Action != Transfer {
		t.Errorf("resolve(0) = %v, want Transfer", got.Action)
	}
	for i := int64(1); i < numLinks; i++ {
		got := r.Resolve(i)
		if got.Action != LinkTo || got.Target != 0 {
			t.Fatalf("resolve(%d) = %+v, want LinkTo(0)", i, got)
		}
	}
	if r.FileCount() != numLinks {
		t.Errorf("FileCount() = %d, want %d", r.FileCount(), numLinks)
	}
	if r.GroupCount() != 1 {
		t.Errorf("GroupCount() = %d, want 1", r.GroupCount())
	}
}

func TestGroupsSortedBySourceIsStable(t *testing.T) {
	r := New()
	k1 := Key{Dev: 1, Ino: 100}
	k2 := Key{Dev: 1, Ino: 200}
	r.Register(k1, 0)
	r.Register(k2, 1)
	r.Register(k1, 2)
	r.Register(k2, 3)
	r.Register(k1, 4)

	groups := r.Groups()
	sort.Slice(groups, func(i, j int) bool { return groups[i].Source < groups[j].Source })
	if len(groups) != 2 {
		t.Fatalf("groups = %+v", groups)
	}
	if groups[0].Source != 0 || len(groups[0].Links) != 2 {
		t.Errorf("group 0 = %+v", groups[0])
	}
	if groups[1].Source != 1 || len(groups[1].Links) != 1 {
		t.Errorf("group 1 = %+v", groups[1])
	}
}
