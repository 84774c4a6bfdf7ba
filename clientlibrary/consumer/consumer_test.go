/*
 * Copyright (c) 2021 VMware, Inc.
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy of this software and
 * associated documentation files (the "Software"), to deal in the Software without restriction, including
 * without limitation the rights to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is furnished to do
 * so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all copies or substantial
 * portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR IMPLIED, INCLUDING BUT
 * NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY, FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.
 * IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY,
 * WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE
 * SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
 */

package consumer

import (
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	chk "github.com/vmware/vmware-go-ccl/clientlibrary/checkpoint"
	cfg "github.com/vmware/vmware-go-ccl/clientlibrary/config"
	"github.com/vmware/vmware-go-ccl/clientlibrary/store"
)

type recordingHandler struct {
	mu      sync.Mutex
	updates []string
	deletes []string
	failOn  string
}

func (h *recordingHandler) OnUpdate(doc store.Document) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failOn != "" && doc.ID() == h.failOn {
		return fmt.Errorf("handler rejects %s", doc.ID())
	}
	h.updates = append(h.updates, doc.ID())
	return nil
}

func (h *recordingHandler) OnDelete(docID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.deletes = append(h.deletes, docID)
	return nil
}

func (h *recordingHandler) updateCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.updates)
}

func (h *recordingHandler) snapshot() ([]string, []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.updates...), append([]string(nil), h.deletes...)
}

// recordingDatabase notes the limit of every change fetch, and can cap the
// returned page below the requested limit the way a server may return short
// pages mid-stream.
type recordingDatabase struct {
	*store.MemoryDatabase
	mu      sync.Mutex
	limits  []int
	pageCap int
}

func (d *recordingDatabase) Changes(opts store.ChangesOptions) (*store.ChangePage, error) {
	d.mu.Lock()
	d.limits = append(d.limits, opts.Limit)
	d.mu.Unlock()

	if d.pageCap > 0 && (opts.Limit == 0 || opts.Limit > d.pageCap) {
		opts.Limit = d.pageCap
	}
	return d.MemoryDatabase.Changes(opts)
}

func (d *recordingDatabase) recordedLimits() []int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]int(nil), d.limits...)
}

func newTestConsumer(t *testing.T, db store.Database, handler *recordingHandler) (*ChangeFeedConsumer, *chk.FileCheckpointer) {
	t.Helper()
	cclConfig := cfg.NewCouchClientLibConfig("appName", "http://127.0.0.1:5984", "registry", "worker").
		WithBatchSize(2).
		WithPollDelayMillis(10).
		WithHeartbeatMillis(100)

	checkpointer := chk.NewFileCheckpointerAtPath(filepath.Join(t.TempDir(), "appName.checkpoint"), cclConfig.Logger)
	c := New(cclConfig).
		WithDatabase(db).
		WithCheckpointer(checkpointer).
		WithChangeHandler(handler)
	return c, checkpointer
}

func createDocs(t *testing.T, db *store.MemoryDatabase, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, _, err := db.Create(store.Document{"_id": id, "n": id})
		require.NoError(t, err)
	}
}

func TestOneShotDrainsBacklog(t *testing.T) {
	db := store.NewMemoryDatabase()
	createDocs(t, db, "a", "b", "c", "d", "e")

	handler := &recordingHandler{}
	c, checkpointer := newTestConsumer(t, db, handler)

	require.NoError(t, c.Run(OneShot))
	updates, deletes := handler.snapshot()
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, updates)
	assert.Empty(t, deletes)

	sequence, err := checkpointer.Load()
	require.NoError(t, err)
	assert.Equal(t, "5", sequence)

	// Nothing is redelivered once the checkpoint covers the stream.
	require.NoError(t, c.Run(OneShot))
	assert.Equal(t, 5, handler.updateCount())
}

func TestOneShotFetchesInConfiguredBatches(t *testing.T) {
	db := &recordingDatabase{MemoryDatabase: store.NewMemoryDatabase()}
	createDocs(t, db.MemoryDatabase, "a", "b", "c", "d", "e")

	handler := &recordingHandler{}
	c, _ := newTestConsumer(t, db, handler)

	require.NoError(t, c.Run(OneShot))

	limits := db.recordedLimits()
	require.NotEmpty(t, limits)
	for _, limit := range limits {
		assert.Equal(t, 2, limit, "every fetch must be bounded by the batch size")
	}
}

func TestOneShotDrainsPastShortPages(t *testing.T) {
	db := &recordingDatabase{MemoryDatabase: store.NewMemoryDatabase(), pageCap: 1}
	createDocs(t, db.MemoryDatabase, "a", "b", "c", "d", "e")

	handler := &recordingHandler{}
	c, checkpointer := newTestConsumer(t, db, handler)

	require.NoError(t, c.Run(OneShot))
	updates, _ := handler.snapshot()
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, updates,
		"pages shorter than the batch size must not end the drain")

	sequence, err := checkpointer.Load()
	require.NoError(t, err)
	assert.Equal(t, "5", sequence)
}

func TestOneShotDispatchesDeletes(t *testing.T) {
	db := store.NewMemoryDatabase()
	createDocs(t, db, "a", "b")

	doc, err := db.Get("b")
	require.NoError(t, err)
	require.NoError(t, db.Delete(doc))

	handler := &recordingHandler{}
	c, _ := newTestConsumer(t, db, handler)

	require.NoError(t, c.Run(OneShot))
	updates, deletes := handler.snapshot()
	assert.Equal(t, []string{"a"}, updates)
	assert.Equal(t, []string{"b"}, deletes)
}

func TestOneShotSeesOnlyWinningRevision(t *testing.T) {
	db := store.NewMemoryDatabase()
	createDocs(t, db, "a")

	doc, err := db.Get("a")
	require.NoError(t, err)
	doc["n"] = "updated"
	_, err = db.Update(doc)
	require.NoError(t, err)

	handler := &recordingHandler{}
	c, _ := newTestConsumer(t, db, handler)

	require.NoError(t, c.Run(OneShot))
	updates, _ := handler.snapshot()
	assert.Equal(t, []string{"a"}, updates, "superseded revisions must be collapsed")
}

func TestHandlerErrorStopsBeforeCheckpoint(t *testing.T) {
	db := store.NewMemoryDatabase()
	createDocs(t, db, "a", "b", "c", "d", "e")

	handler := &recordingHandler{failOn: "c"}
	c, checkpointer := newTestConsumer(t, db, handler)

	assert.Error(t, c.Run(OneShot))

	// Only the first full batch was committed.
	sequence, err := checkpointer.Load()
	require.NoError(t, err)
	assert.Equal(t, "2", sequence)

	// A restart redelivers from the checkpoint, not from the failure point.
	handler.mu.Lock()
	handler.failOn = ""
	handler.mu.Unlock()

	c2, _ := newTestConsumer(t, db, handler)
	c2.WithCheckpointer(checkpointer)
	require.NoError(t, c2.Run(OneShot))

	updates, _ := handler.snapshot()
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, updates)
}

func TestRunRejectsUnknownMode(t *testing.T) {
	db := store.NewMemoryDatabase()
	c, _ := newTestConsumer(t, db, &recordingHandler{})
	assert.Error(t, c.Run(RunMode(42)))
}

func TestPollingPicksUpNewChanges(t *testing.T) {
	db := store.NewMemoryDatabase()
	createDocs(t, db, "a")

	handler := &recordingHandler{}
	c, _ := newTestConsumer(t, db, handler)

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(Polling) }()

	require.Eventually(t, func() bool { return handler.updateCount() == 1 },
		5*time.Second, 10*time.Millisecond)

	createDocs(t, db, "b")
	require.Eventually(t, func() bool { return handler.updateCount() == 2 },
		5*time.Second, 10*time.Millisecond)

	c.Shutdown()
	assert.NoError(t, <-runErr)
}

func TestContinuousHandlesLiveChanges(t *testing.T) {
	db := store.NewMemoryDatabase()
	createDocs(t, db, "a")

	handler := &recordingHandler{}
	c, checkpointer := newTestConsumer(t, db, handler)

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(Continuous) }()

	require.Eventually(t, func() bool { return handler.updateCount() == 1 },
		5*time.Second, 10*time.Millisecond)

	createDocs(t, db, "b", "c")
	require.Eventually(t, func() bool { return handler.updateCount() == 3 },
		5*time.Second, 10*time.Millisecond)

	c.Shutdown()
	assert.NoError(t, <-runErr)

	// Continuous mode checkpoints after every handled change.
	sequence, err := checkpointer.Load()
	require.NoError(t, err)
	assert.Equal(t, "3", sequence)
}

func TestContinuousSurvivesFeedTimeout(t *testing.T) {
	db := store.NewMemoryDatabase()

	handler := &recordingHandler{}
	c, _ := newTestConsumer(t, db, handler)

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(Continuous) }()

	// Idle past the heartbeat window so the feed times out and reopens,
	// then verify changes still arrive.
	time.Sleep(300 * time.Millisecond)
	createDocs(t, db, "a")
	require.Eventually(t, func() bool { return handler.updateCount() == 1 },
		5*time.Second, 10*time.Millisecond)

	c.Shutdown()
	assert.NoError(t, <-runErr)
}
