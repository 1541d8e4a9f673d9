// Package cache stores discovery results keyed by the content of the log and
// the miner configuration.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"hash"
	"time"

	"github.com/google/uuid"

	"github.com/logflow/hminer/internal/model"
	hmerrors "github.com/logflow/hminer/pkg/errors"
	"github.com/logflow/hminer/pkg/heuristics"
)

// ErrMiss is returned by Get when no live entry exists for a key.
var ErrMiss = errors.New("cache: miss")

// Cache stores discovery results.
type Cache interface {
	// Get returns the entry stored under key, or ErrMiss.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put stores entry under key.
	Put(ctx context.Context, key string, entry *Entry) error

	// Close releases backend resources.
	Close() error

	// Name returns the backend name for logging/debugging.
	Name() string
}

// Entry is a cached discovery result.
type Entry struct {
	RunID     string            `json:"run_id"`
	Key       string            `json:"key"`
	CreatedAt time.Time         `json:"created_at"`
	Nodes     []string          `json:"nodes"`
	Edges     []heuristics.Edge `json:"edges"`
	Config    heuristics.Config `json:"config"`
	Stats     heuristics.Stats  `json:"stats"`
}

// NewEntry captures the graph of result under a fresh run id.
func NewEntry(key string, result *heuristics.Result) *Entry {
	return &Entry{
		RunID:     uuid.New().String(),
		Key:       key,
		CreatedAt: time.Now().UTC(),
		Nodes:     append([]string{}, result.Nodes...),
		Edges:     append([]heuristics.Edge{}, result.Edges...),
		Config:    result.Config,
		Stats:     result.Stats,
	}
}

// Result rebuilds a result from the entry. Intermediate tables are not
// cached; each edge keeps its frequency and dependency score.
func (e *Entry) Result() *heuristics.Result {
	return &heuristics.Result{
		Nodes:  append([]string{}, e.Nodes...),
		Edges:  append([]heuristics.Edge{}, e.Edges...),
		Config: e.Config,
		Stats:  e.Stats,
	}
}

// Key hashes the case-ordered event stream of log and the configuration.
// Logs that differ only in how their cases interleave share a key.
func Key(log *model.Log, cfg heuristics.Config) string {
	h := sha256.New()
	for _, e := range log.Sorted() {
		writeField(h, e.CaseID)
		writeField(h, e.Activity)
		var ts [8]byte
		binary.LittleEndian.PutUint64(ts[:], uint64(e.Timestamp))
		h.Write(ts[:])
	}

	// Config has only plain fields, so Marshal cannot fail.
	cfgJSON, _ := json.Marshal(cfg)
	h.Write([]byte{0xff})
	h.Write(cfgJSON)

	return hex.EncodeToString(h.Sum(nil))
}

// writeField writes a length-prefixed string so that field boundaries are
// part of the hash.
func writeField(h hash.Hash, s string) {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	h.Write(n[:])
	h.Write([]byte(s))
}

// Lookup returns the cached result for log, or runs discover and stores its
// result. A failing backend never blocks discovery: when the graph was mined
// despite backend errors, the result is returned together with those errors.
func Lookup(ctx context.Context, c Cache, log *model.Log, cfg heuristics.Config,
	discover func(context.Context) (*heuristics.Result, error)) (*heuristics.Result, bool, error) {
	key := Key(log, cfg)

	var backend hmerrors.MultiError
	entry, err := c.Get(ctx, key)
	if err == nil {
		return entry.Result(), true, nil
	}
	if !errors.Is(err, ErrMiss) {
		backend.Add(err)
	}

	result, err := discover(ctx)
	if err != nil {
		return nil, false, err
	}
	backend.Add(c.Put(ctx, key, NewEntry(key, result)))
	return result, false, backend.Combined()
}
