package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/logflow/hminer/internal/model"
	"github.com/logflow/hminer/pkg/heuristics"
)

type row struct {
	caseID, activity string
	ts               int64
}

func testLog(rows ...row) *model.Log {
	log := model.NewLog()
	for _, r := range rows {
		log.Append(model.Event{CaseID: r.caseID, Activity: r.activity, Timestamp: r.ts, HasTimestamp: true})
	}
	return log
}

func TestKey(t *testing.T) {
	cfg := heuristics.DefaultConfig()

	a := testLog(row{"1", "A", 1}, row{"2", "A", 1}, row{"1", "B", 2})
	b := testLog(row{"2", "A", 1}, row{"1", "A", 1}, row{"1", "B", 2})
	if Key(a, cfg) != Key(b, cfg) {
		t.Error("interleaving cases should not change the key")
	}

	c := testLog(row{"1", "A", 1}, row{"2", "A", 1}, row{"1", "C", 2})
	if Key(a, cfg) == Key(c, cfg) {
		t.Error("different activities should change the key")
	}

	other := cfg
	other.NoiseThreshold = 0.2
	if Key(a, cfg) == Key(a, other) {
		t.Error("different config should change the key")
	}

	// Field boundaries are part of the hash.
	d := testLog(row{"1A", "B", 1})
	e := testLog(row{"1", "AB", 1})
	if Key(d, cfg) == Key(e, cfg) {
		t.Error("shifting a field boundary should change the key")
	}

	if len(Key(a, cfg)) != 64 {
		t.Errorf("key length = %d, want 64 hex chars", len(Key(a, cfg)))
	}
}

func TestMemoryCache_GetPut(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	defer c.Close()

	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Get on empty cache: err = %v, want ErrMiss", err)
	}

	result := &heuristics.Result{
		Nodes: []string{"A", "B"},
		Edges: []heuristics.Edge{{Source: "A", Target: "B", Weight: 0.5}},
	}
	entry := NewEntry("k", result)
	if entry.RunID == "" {
		t.Error("entry should have a run id")
	}
	if err := c.Put(ctx, "k", entry); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.RunID != entry.RunID {
		t.Errorf("RunID = %s, want %s", got.RunID, entry.RunID)
	}
	r := got.Result()
	if w, ok := r.Weight("A", "B"); !ok || w != 0.5 {
		t.Errorf("Weight(A, B) = %v, %v", w, ok)
	}
}

func TestMemoryCache_TTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Put(ctx, "k", &Entry{RunID: "r"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	now = now.Add(59 * time.Second)
	if _, err := c.Get(ctx, "k"); err != nil {
		t.Errorf("entry expired early: %v", err)
	}

	now = now.Add(time.Second)
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss after ttl", err)
	}
	if c.Len() != 0 {
		t.Errorf("expired entry not dropped, Len() = %d", c.Len())
	}
}

func TestLookup(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	log := testLog(row{"1", "A", 1}, row{"1", "B", 2}, row{"2", "A", 1}, row{"2", "B", 2})
	cfg := heuristics.DefaultConfig()

	runs := 0
	discover := func(ctx context.Context) (*heuristics.Result, error) {
		runs++
		return heuristics.Discover(ctx, log, cfg)
	}

	first, hit, err := Lookup(ctx, c, log, cfg, discover)
	if err != nil || hit {
		t.Fatalf("first Lookup: hit=%v err=%v", hit, err)
	}
	second, hit, err := Lookup(ctx, c, log, cfg, discover)
	if err != nil || !hit {
		t.Fatalf("second Lookup: hit=%v err=%v", hit, err)
	}
	if runs != 1 {
		t.Errorf("discover ran %d times, want 1", runs)
	}
	if len(first.Edges) == 0 || len(first.Edges) != len(second.Edges) {
		t.Fatalf("cached edges = %d, want %d", len(second.Edges), len(first.Edges))
	}
	for i, e := range second.Edges {
		want := first.Edges[i]
		if e.Frequency != want.Frequency || e.Frequency == 0 {
			t.Errorf("edge %s->%s frequency = %d, want %d", e.Source, e.Target, e.Frequency, want.Frequency)
		}
		if e.Dependency == nil || *e.Dependency != *want.Dependency {
			t.Errorf("edge %s->%s lost its dependency score", e.Source, e.Target)
		}
	}
}

// failingCache fails every read and write.
type failingCache struct{ NopCache }

func (failingCache) Get(context.Context, string) (*Entry, error) {
	return nil, errors.New("connection refused")
}

func (failingCache) Put(context.Context, string, *Entry) error {
	return errors.New("connection refused")
}

func TestLookup_BackendDown(t *testing.T) {
	log := testLog(row{"1", "A", 1}, row{"1", "B", 2})
	cfg := heuristics.DefaultConfig()

	result, hit, err := Lookup(context.Background(), failingCache{}, log, cfg, func(ctx context.Context) (*heuristics.Result, error) {
		return heuristics.Discover(ctx, log, cfg)
	})
	if hit {
		t.Error("a failing backend cannot hit")
	}
	if result == nil {
		t.Fatal("discovery should run when the backend is down")
	}
	if len(result.Nodes) != 2 {
		t.Errorf("nodes = %v, want A and B", result.Nodes)
	}
	if err == nil || !strings.HasPrefix(err.Error(), "2 errors occurred") {
		t.Errorf("err = %v, want the read and write failures", err)
	}
}

func TestNopCache(t *testing.T) {
	var c Cache = NopCache{}
	if err := c.Put(context.Background(), "k", &Entry{}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get(context.Background(), "k"); !errors.Is(err, ErrMiss) {
		t.Errorf("err = %v, want ErrMiss", err)
	}
}
