// Package dataset loads encoded training samples from simulator decision
// logs and partitions them for training.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/colesmailbox96-tech/Brain/internal/encode"
)

// maxLineBytes bounds a single log line. Decision records with full nearby
// tile lists run a few KB; this leaves generous headroom.
const maxLineBytes = 1 << 20

// Store owns an ordered, immutable collection of encoded samples.
type Store struct {
	samples []encode.Sample
	skipped int
}

// Scan visits every well-formed log entry in the decisions_*.jsonl files
// under dir, in file order. Lines that fail to parse, or that carry no tick
// (schema-version headers and other non-decision records), are counted as
// skipped and never abort the pass. Only an unreadable directory or file is
// an error.
func Scan(dir string, visit func(*encode.LogEntry)) (skipped int, err error) {
	files, err := filepath.Glob(filepath.Join(dir, "decisions_*.jsonl"))
	if err != nil {
		return 0, fmt.Errorf("glob %s: %w", dir, err)
	}
	for _, file := range files {
		n, err := scanFile(file, visit)
		skipped += n
		if err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

func scanFile(path string, visit func(*encode.LogEntry)) (skipped int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var entry encode.LogEntry
		if err := json.Unmarshal(line, &entry); err != nil {
			skipped++
			continue
		}
		if entry.Tick == nil {
			skipped++
			continue
		}
		visit(&entry)
	}
	if err := scanner.Err(); err != nil {
		return skipped, fmt.Errorf("scan %s: %w", path, err)
	}
	return skipped, nil
}

// Load reads every decisions_*.jsonl file under dir, encoding well-formed
// lines and silently skipping the rest.
func Load(dir string, enc *encode.Encoder) (*Store, error) {
	store := &Store{}
	skipped, err := Scan(dir, func(entry *encode.LogEntry) {
		sample, err := enc.Encode(entry)
		if err != nil {
			store.skipped++
			return
		}
		store.samples = append(store.samples, sample)
	})
	if err != nil {
		return nil, err
	}
	store.skipped += skipped
	return store, nil
}

// FromSamples wraps pre-encoded samples in a Store. Used by tests and by the
// fine-tuning filter.
func FromSamples(samples []encode.Sample) *Store {
	return &Store{samples: samples}
}

// Len reports the number of usable samples.
func (s *Store) Len() int { return len(s.samples) }

// Skipped reports how many log lines were dropped during load.
func (s *Store) Skipped() int { return s.skipped }

// Sample returns the i-th sample. Samples are shared, never copied; callers
// must not mutate them.
func (s *Store) Sample(i int) encode.Sample { return s.samples[i] }

// FilterNPC returns a new store restricted to one agent's samples. The
// personalization path is exactly this filter in front of the same training
// loop.
func (s *Store) FilterNPC(npcID int) *Store {
	var kept []encode.Sample
	for _, sample := range s.samples {
		if sample.NPCID == npcID {
			kept = append(kept, sample)
		}
	}
	return &Store{samples: kept}
}

// ActionCounts tallies samples per action label.
func (s *Store) ActionCounts() [encode.NumActions]int {
	var counts [encode.NumActions]int
	for _, sample := range s.samples {
		counts[sample.Action]++
	}
	return counts
}

// View is an index-based partition over a Store.
type View struct {
	store *Store
	idx   []int
}

// Len reports the partition size.
func (v *View) Len() int { return len(v.idx) }

// Sample returns the i-th sample of the partition.
func (v *View) Sample(i int) encode.Sample { return v.store.samples[v.idx[i]] }

// Indices returns a copy of the partition's index order.
func (v *View) Indices() []int {
	out := make([]int, len(v.idx))
	copy(out, v.idx)
	return out
}

// All returns a view spanning the whole store in order.
func (s *Store) All() *View {
	idx := make([]int, len(s.samples))
	for i := range idx {
		idx[i] = i
	}
	return &View{store: s, idx: idx}
}

// Split partitions the store into train and validation views by a seeded
// random permutation. valFrac is clamped to [0, 1]; no index appears in both
// views.
func (s *Store) Split(valFrac float64, seed int64) (train, val *View) {
	if valFrac < 0 {
		valFrac = 0
	}
	if valFrac > 1 {
		valFrac = 1
	}
	perm := rand.New(rand.NewSource(seed)).Perm(len(s.samples))
	nVal := int(valFrac * float64(len(s.samples)))
	return &View{store: s, idx: perm[nVal:]}, &View{store: s, idx: perm[:nVal]}
}
