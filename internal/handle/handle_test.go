package handle

import (
	"context"
	"testing"

	"github.com/archerheffern/imessage-undeleter/internal/model"
)

type fakeStore struct {
	rows []model.Handle
}

func (f fakeStore) HandleRows(ctx context.Context) ([]model.Handle, error) {
	return f.rows, nil
}

func TestCacheSeedsMe(t *testing.T) {
	cache, err := Cache(context.Background(), fakeStore{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cache[0] != Me {
		t.Fatalf("expected handle 0 to seed %q, got %q", Me, cache[0])
	}
}

func TestCacheCollapsesPersonCentricEquivalenceClass(t *testing.T) {
	// Scenario 5 from spec.md §8: handles (1,"+15550001",p), (2,"alice@x",p), (3,"bob@y",nil)
	p := "person-1"
	rows := []model.Handle{
		{RowID: 1, ID: "+15550001", PersonCentricID: &p},
		{RowID: 2, ID: "alice@x", PersonCentricID: &p},
		{RowID: 3, ID: "bob@y", PersonCentricID: nil},
	}
	cache, err := Cache(context.Background(), fakeStore{rows: rows})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "+15550001 alice@x"
	if cache[1] != want {
		t.Fatalf("cache[1] = %q, want %q", cache[1], want)
	}
	if cache[2] != want {
		t.Fatalf("cache[2] = %q, want %q", cache[2], want)
	}
	if cache[3] != "bob@y" {
		t.Fatalf("cache[3] = %q, want %q", cache[3], "bob@y")
	}
}

func TestDedupeDeterministicAcrossRuns(t *testing.T) {
	p := "person-1"
	rows := []model.Handle{
		{RowID: 1, ID: "+15550001", PersonCentricID: &p},
		{RowID: 2, ID: "alice@x", PersonCentricID: &p},
		{RowID: 3, ID: "bob@y", PersonCentricID: nil},
	}

	var results []map[int]int
	for i := 0; i < 3; i++ {
		cache, err := Cache(context.Background(), fakeStore{rows: rows})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		results = append(results, Dedupe(cache))
	}

	for i := 1; i < len(results); i++ {
		if len(results[i]) != len(results[0]) {
			t.Fatalf("run %d produced a different number of entries", i)
		}
		for k, v := range results[0] {
			if results[i][k] != v {
				t.Fatalf("run %d diverged at key %d: got %d, want %d", i, k, results[i][k], v)
			}
		}
	}

	// Handle 0 ("Me") is always present and sorts first by rowid, so it
	// claims dense id 0 and the three handles follow it:
	// {0->0, 1->1, 2->1, 3->2}.
	got := results[0]
	if got[0] != 0 {
		t.Fatalf("expected Me (handle 0) to claim dense id 0, got %d", got[0])
	}
	if got[1] != got[2] {
		t.Fatalf("expected handles 1 and 2 (shared person_centric_id) to share a dense id")
	}
	if got[3] == got[1] {
		t.Fatalf("expected handle 3 (distinct identity) to have a different dense id than 1/2")
	}
}

func TestDedupeImageIsContiguousFromZero(t *testing.T) {
	rows := []model.Handle{
		{RowID: 1, ID: "a"},
		{RowID: 2, ID: "b"},
		{RowID: 3, ID: "c"},
	}
	cache, err := Cache(context.Background(), fakeStore{rows: rows})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	deduped := Dedupe(cache)

	seen := make(map[int]bool)
	max := -1
	for _, v := range deduped {
		seen[v] = true
		if v > max {
			max = v
		}
	}
	for i := 0; i <= max; i++ {
		if !seen[i] {
			t.Fatalf("dense id image is not contiguous from zero: missing %d", i)
		}
	}
	if len(seen) != max+1 {
		t.Fatalf("expected image size %d, got %d", max+1, len(seen))
	}
}
