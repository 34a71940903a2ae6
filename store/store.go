// Package store implements the JSON-file-backed data store shared by
// runners: one Handle per resolved store path, holding an in-memory
// document of the shape {"runners": {<id>: {"results": {<run_index>:
// {<result_index>: value}}}}} that is periodically merged with and
// flushed back to disk.
package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/wahl-sec/trident/internal/merge"
)

// Handle owns the in-memory document for one resolved store path and
// the runner it was opened for. A Handle is not shared between runners;
// the daemon serializes Flush calls per store path through the
// finalize queue so concurrent flushes to the same file never race.
type Handle struct {
	mu       sync.Mutex
	path     string
	runnerID string
	document map[string]interface{}
	runIndex string
}

// Resolve applies the path-resolution rules: an existing file is used
// directly; an existing directory (or a path whose parent directory
// exists) becomes "<dir>/<name>.json" unless it already ends in
// ".json"; anything else is an error.
func Resolve(storePath, storeName string) (string, error) {
	info, err := os.Stat(storePath)
	if err == nil && !info.IsDir() {
		return storePath, nil
	}

	if (err == nil && info.IsDir()) || dirExists(filepath.Dir(storePath)) {
		if filepath.Ext(storePath) == ".json" {
			return storePath, nil
		}
		return filepath.Join(storePath, storeName+".json"), nil
	}

	return "", errors.Errorf("store path %q does not exist", storePath)
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Open resolves path and loads (or initializes) the document for
// runnerID, allocating the run index the runner will write all of its
// results under.
func Open(storePath, storeName, runnerID string) (*Handle, error) {
	resolved, err := Resolve(storePath, storeName)
	if err != nil {
		return nil, err
	}

	h := &Handle{path: resolved, runnerID: runnerID}

	if _, err := os.Stat(resolved); os.IsNotExist(err) {
		h.document = map[string]interface{}{
			"runners": map[string]interface{}{
				runnerID: map[string]interface{}{"results": map[string]interface{}{}},
			},
		}
	} else {
		doc, err := readDocument(resolved)
		if err != nil {
			return nil, err
		}
		h.document = ensureRunner(doc, runnerID)
	}

	h.runIndex = nextRunIndex(h.runnerResults())
	return h, nil
}

func ensureRunner(doc map[string]interface{}, runnerID string) map[string]interface{} {
	runners, ok := doc["runners"].(map[string]interface{})
	if !ok {
		runners = map[string]interface{}{}
		doc["runners"] = runners
	}
	if _, ok := runners[runnerID]; !ok {
		runners[runnerID] = map[string]interface{}{"results": map[string]interface{}{}}
	}
	return doc
}

func readDocument(path string) (map[string]interface{}, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading store %q", path)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrapf(err, "decoding store %q", path)
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return doc, nil
}

// nextRunIndex computes max(int(k) for k in results) + 1 over the
// existing result keys, treating any key that doesn't parse as an
// integer as absent rather than failing the run: a hand-edited store
// file with a non-numeric run index should not prevent new runs from
// being recorded.
func nextRunIndex(results map[string]interface{}) string {
	max := -1
	for k := range results {
		n, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return strconv.Itoa(max + 1)
}

func (h *Handle) runnerResults() map[string]interface{} {
	runners := h.document["runners"].(map[string]interface{})
	runner := runners[h.runnerID].(map[string]interface{})
	results, ok := runner["results"].(map[string]interface{})
	if !ok {
		results = map[string]interface{}{}
		runner["results"] = results
	}
	return results
}

// Record stores value under the handle's run index at resultIndex
// (0-based, allocated by the caller in pull order).
func (h *Handle) Record(resultIndex int, value interface{}) {
	h.mu.Lock()
	defer h.mu.Unlock()

	results := h.runnerResults()
	run, ok := results[h.runIndex].(map[string]interface{})
	if !ok {
		run = map[string]interface{}{}
		results[h.runIndex] = run
	}
	run[strconv.Itoa(resultIndex)] = value
}

// Merge reads the current on-disk content (if any) back and layers it
// underneath the in-memory document, so concurrent runners writing to
// distinct store paths and distinct runner IDs within the same file
// never lose each other's history.
func (h *Handle) Merge() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(h.path); os.IsNotExist(err) {
		return nil
	}

	onDisk, err := readDocument(h.path)
	if err != nil {
		return err
	}
	h.document = merge.Documents(h.document, onDisk)
	return nil
}

// Flush writes the in-memory document back to h.path using the
// read-truncate-rewrite pattern: open for read+write, seek to the
// start, write the new content, then truncate to the new length so a
// shorter document never leaves trailing garbage from the old one.
func (h *Handle) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := os.Stat(h.path); os.IsNotExist(err) {
		if f, err := os.Create(h.path); err != nil {
			return errors.Wrapf(err, "creating store %q", h.path)
		} else {
			f.Close()
		}
	}

	f, err := os.OpenFile(h.path, os.O_RDWR, 0o644)
	if err != nil {
		return errors.Wrapf(err, "opening store %q", h.path)
	}
	defer f.Close()

	raw, err := json.Marshal(h.document)
	if err != nil {
		return errors.Wrap(err, "encoding store document")
	}

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if _, err := f.Write(raw); err != nil {
		return err
	}
	return f.Truncate(int64(len(raw)))
}

// Path returns the resolved on-disk path this handle writes to.
func (h *Handle) Path() string { return h.path }

// RunIndex returns the run index allocated to this handle's runner.
func (h *Handle) RunIndex() string { return h.runIndex }

// Run returns the result-index map recorded for a given run index, or
// nil if no such run exists.
func (h *Handle) Run(runIndex string) map[string]interface{} {
	h.mu.Lock()
	defer h.mu.Unlock()

	results := h.runnerResults()
	run, ok := results[runIndex].(map[string]interface{})
	if !ok {
		return nil
	}
	return run
}

// Checkpoint is the persisted state of a stateful plugin, stored
// alongside (not inside) the results document.
type Checkpoint struct {
	RunnerID string      `json:"runner_id"`
	State    interface{} `json:"state"`
}

// SaveState writes a checkpoint document for runnerID to path.
func SaveState(path, runnerID string, state interface{}) error {
	raw, err := json.MarshalIndent(Checkpoint{RunnerID: runnerID, State: state}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding checkpoint")
	}
	return os.WriteFile(path, raw, 0o644)
}

// LoadState reads a checkpoint document back. A missing file is not an
// error: it means the plugin has never checkpointed before.
func LoadState(path string) (interface{}, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading checkpoint %q", path)
	}

	var cp Checkpoint
	if err := json.Unmarshal(raw, &cp); err != nil {
		return nil, errors.Wrapf(err, "decoding checkpoint %q", path)
	}
	return cp.State, nil
}

// RunIndexes returns the run indexes currently recorded for this
// handle's runner, in numeric order where possible.
func (h *Handle) RunIndexes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	results := h.runnerResults()
	keys := make([]string, 0, len(results))
	for k := range results {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ni, erri := strconv.Atoi(keys[i])
		nj, errj := strconv.Atoi(keys[j])
		if erri == nil && errj == nil {
			return ni < nj
		}
		return keys[i] < keys[j]
	})
	return keys
}
