package storage

import (
	"errors"
	"math/rand"
	"path/filepath"
	"sort"
	"testing"
)

func openTestBTree(t *testing.T, order int) *PageBTree {
	t.Helper()
	p, err := OpenPager(filepath.Join(t.TempDir(), "index.idx"))
	if err != nil {
		t.Fatalf("OpenPager: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	bt, err := OpenPageBTree(p, order)
	if err != nil {
		t.Fatalf("OpenPageBTree: %v", err)
	}
	return bt
}

func TestPageBTree_InsertSearch(t *testing.T) {
	bt := openTestBTree(t, 4)
	for i := int64(1); i <= 20; i++ {
		if err := bt.Insert(i, RID{PageID: PageID(i), Slot: 0}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := int64(1); i <= 20; i++ {
		rid, ok, err := bt.Search(i)
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		if !ok || rid.PageID != PageID(i) {
			t.Fatalf("Search(%d) = %+v, %v; want PageID %d, true", i, rid, ok, i)
		}
	}
	if _, ok, err := bt.Search(999); err != nil || ok {
		t.Fatalf("Search(999) should miss, got ok=%v err=%v", ok, err)
	}
}

func TestPageBTree_DuplicateKey(t *testing.T) {
	bt := openTestBTree(t, 4)
	if err := bt.Insert(1, RID{PageID: 1}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := bt.Insert(1, RID{PageID: 2})
	if !errors.Is(err, ErrDuplicateKey) {
		t.Fatalf("expected ErrDuplicateKey, got %v", err)
	}
}

func TestPageBTree_DeleteNotFound(t *testing.T) {
	bt := openTestBTree(t, 4)
	if err := bt.Delete(1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestPageBTree_InsertDeleteInterleaved checks that Search agrees with
// liveness under any interleaving of inserts and deletes.
func TestPageBTree_InsertDeleteInterleaved(t *testing.T) {
	bt := openTestBTree(t, 4)
	rng := rand.New(rand.NewSource(1))
	live := map[int64]bool{}

	const n = 300
	for i := 0; i < n; i++ {
		key := int64(rng.Intn(60))
		if live[key] {
			if err := bt.Delete(key); err != nil {
				t.Fatalf("Delete(%d): %v", key, err)
			}
			live[key] = false
		} else {
			if err := bt.Insert(key, RID{PageID: PageID(key), Slot: 1}); err != nil {
				t.Fatalf("Insert(%d): %v", key, err)
			}
			live[key] = true
		}
		checkOccupancy(t, bt)
	}

	for key, isLive := range live {
		_, ok, err := bt.Search(key)
		if err != nil {
			t.Fatalf("Search(%d): %v", key, err)
		}
		if ok != isLive {
			t.Fatalf("key %d: Search returned ok=%v, want %v", key, ok, isLive)
		}
	}
}

// TestPageBTree_InsertManyThenReadAll inserts a large key set in random
// order and checks every key is readable afterward.
func TestPageBTree_InsertManyThenReadAll(t *testing.T) {
	bt := openTestBTree(t, 4)
	const n = 1000
	keys := rand.New(rand.NewSource(2)).Perm(n)
	for _, k := range keys {
		key := int64(k + 1)
		if err := bt.Insert(key, RID{PageID: PageID(key)}); err != nil {
			t.Fatalf("Insert(%d): %v", key, err)
		}
	}
	for i := int64(1); i <= n; i++ {
		rid, ok, err := bt.Search(i)
		if err != nil {
			t.Fatalf("Search(%d): %v", i, err)
		}
		if !ok || rid.PageID != PageID(i) {
			t.Fatalf("Search(%d) = %+v, %v; want PageID %d, true", i, rid, ok, i)
		}
	}
}

// checkOccupancy checks that every non-root node has
// t-1 <= num_keys <= 2t-1, which must hold after every operation.
func checkOccupancy(t *testing.T, bt *PageBTree) {
	t.Helper()
	var walk func(pid PageID, isRoot bool)
	walk = func(pid PageID, isRoot bool) {
		buf, err := bt.pager.ReadPage(pid)
		if err != nil {
			t.Fatalf("ReadPage(%d): %v", pid, err)
		}
		n := decodeNode(buf)
		if !isRoot {
			if len(n.keys) < bt.t-1 || len(n.keys) > 2*bt.t-1 {
				t.Fatalf("node %d occupancy out of bounds: %d keys (t=%d)", pid, len(n.keys), bt.t)
			}
		} else if len(n.keys) > 2*bt.t-1 {
			t.Fatalf("root %d has too many keys: %d", pid, len(n.keys))
		}
		if !n.isLeaf {
			for _, c := range n.children {
				walk(c, false)
			}
		}
	}
	walk(bt.root, true)
}

// TestPageBTree_LeafLinkage checks that the leaf link list is ascending
// in keys and reaches every leaf starting from the leftmost leaf.
func TestPageBTree_LeafLinkage(t *testing.T) {
	bt := openTestBTree(t, 4)
	const n = 200
	perm := rand.New(rand.NewSource(3)).Perm(n)
	for _, k := range perm {
		key := int64(k)
		if err := bt.Insert(key, RID{PageID: PageID(key)}); err != nil {
			t.Fatalf("Insert(%d): %v", key, err)
		}
	}

	pid := bt.root
	for {
		buf, err := bt.pager.ReadPage(pid)
		if err != nil {
			t.Fatalf("ReadPage(%d): %v", pid, err)
		}
		node := decodeNode(buf)
		if node.isLeaf {
			break
		}
		pid = node.children[0]
	}

	var all []int64
	for {
		buf, err := bt.pager.ReadPage(pid)
		if err != nil {
			t.Fatalf("ReadPage(%d): %v", pid, err)
		}
		node := decodeNode(buf)
		all = append(all, node.keys...)
		if node.nextLeaf == 0 {
			break
		}
		pid = node.nextLeaf
	}

	if len(all) != n {
		t.Fatalf("leaf chain visited %d keys, want %d", len(all), n)
	}
	if !sort.SliceIsSorted(all, func(i, j int) bool { return all[i] < all[j] }) {
		t.Fatalf("leaf chain is not ascending: %v", all)
	}
}

// TestPageBTree_RangeScanEquivalence checks that RangeScan returns
// exactly the keys within its bounds, in ascending order.
func TestPageBTree_RangeScanEquivalence(t *testing.T) {
	bt := openTestBTree(t, 4)
	const n = 100
	for _, k := range rand.New(rand.NewSource(4)).Perm(n) {
		key := int64(k)
		if err := bt.Insert(key, RID{PageID: PageID(key)}); err != nil {
			t.Fatalf("Insert(%d): %v", key, err)
		}
	}

	var got []int64
	err := bt.RangeScan(10, 20, true, false, func(k int64, _ RID) bool {
		got = append(got, k)
		return true
	})
	if err != nil {
		t.Fatalf("RangeScan: %v", err)
	}
	var want []int64
	for i := int64(10); i < 20; i++ {
		want = append(want, i)
	}
	if len(got) != len(want) {
		t.Fatalf("RangeScan returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("RangeScan returned %v, want %v", got, want)
		}
	}
}

func TestPageBTree_DeleteAllCollapsesRoot(t *testing.T) {
	bt := openTestBTree(t, 4)
	const n = 100
	for i := int64(0); i < n; i++ {
		if err := bt.Insert(i, RID{PageID: PageID(i)}); err != nil {
			t.Fatalf("Insert(%d): %v", i, err)
		}
	}
	for i := int64(0); i < n; i++ {
		if err := bt.Delete(i); err != nil {
			t.Fatalf("Delete(%d): %v", i, err)
		}
	}
	buf, err := bt.pager.ReadPage(bt.root)
	if err != nil {
		t.Fatalf("ReadPage(root): %v", err)
	}
	root := decodeNode(buf)
	if !root.isLeaf || len(root.keys) != 0 {
		t.Fatalf("expected an empty leaf root after deleting everything, got isLeaf=%v keys=%d", root.isLeaf, len(root.keys))
	}
	if _, ok, err := bt.Search(0); err != nil || ok {
		t.Fatalf("expected no keys to remain, Search(0) ok=%v err=%v", ok, err)
	}
}
