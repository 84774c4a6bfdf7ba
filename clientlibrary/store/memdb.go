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

package store

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/vmware/vmware-go-ccl/clientlibrary/utils"
)

const defaultFeedHeartbeat = 30 * time.Second

// MemoryDatabase is an in-memory Database with the same change feed,
// revision and conflict semantics as the CouchDB binding. It backs the
// library's own tests and is handy for tests of host applications.
type MemoryDatabase struct {
	mu      sync.Mutex
	docs    map[string]Document
	deleted map[string]string // tombstone revisions
	changes []*memChange      // in seq order; superseded entries skipped on read
	latest  map[string]*memChange
	seq     int64
	feeds   map[*memFeed]struct{}
}

type memChange struct {
	id         string
	seq        int64
	deleted    bool
	superseded bool
}

// NewMemoryDatabase creates an empty in-memory database.
func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		docs:    make(map[string]Document),
		deleted: make(map[string]string),
		latest:  make(map[string]*memChange),
		feeds:   make(map[*memFeed]struct{}),
	}
}

// record appends a change row for id, superseding any earlier row for the
// same id, and fans the row out to open feeds. Callers hold d.mu.
func (d *MemoryDatabase) record(id string, deleted bool) int64 {
	d.seq++
	if prev, ok := d.latest[id]; ok {
		prev.superseded = true
	}
	c := &memChange{id: id, seq: d.seq, deleted: deleted}
	d.changes = append(d.changes, c)
	d.latest[id] = c

	row := ChangeRow{ID: id, Seq: formatSeq(d.seq), Deleted: deleted}
	for f := range d.feeds {
		f.deliver(row)
	}
	return d.seq
}

func (d *MemoryDatabase) nextRev(current string) string {
	gen := 0
	if current != "" {
		gen, _ = strconv.Atoi(current[:indexByte(current, '-')])
	}
	return fmt.Sprintf("%d-%016x", gen+1, d.seq+1)
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return len(s)
}

func formatSeq(seq int64) string {
	return strconv.FormatInt(seq, 10)
}

func parseSeq(seq string) (int64, error) {
	if seq == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(seq, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed sequence token %q", seq)
	}
	return n, nil
}

func (d *MemoryDatabase) Changes(opts ChangesOptions) (*ChangePage, error) {
	since, err := parseSeq(opts.Since)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	page := &ChangePage{LastSeq: opts.Since}
	for _, c := range d.changes {
		if c.seq <= since || c.superseded {
			continue
		}
		page.Results = append(page.Results, ChangeRow{ID: c.id, Seq: formatSeq(c.seq), Deleted: c.deleted})
		page.LastSeq = formatSeq(c.seq)
		if opts.Limit > 0 && len(page.Results) == opts.Limit {
			break
		}
	}
	return page, nil
}

func (d *MemoryDatabase) ChangesFeed(opts ChangesOptions) (ChangeFeed, error) {
	since, err := parseSeq(opts.Since)
	if err != nil {
		return nil, err
	}

	heartbeat := opts.Heartbeat
	if heartbeat == 0 {
		heartbeat = defaultFeedHeartbeat
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	f := &memFeed{
		db:        d,
		heartbeat: heartbeat,
		rows:      make(chan ChangeRow, 256),
		closed:    make(chan struct{}),
	}
	// Backlog first, then live rows. A backlog bigger than the buffer ends
	// the feed immediately; the reader drains what fits and reconnects.
	for _, c := range d.changes {
		if c.seq <= since || c.superseded {
			continue
		}
		f.deliver(ChangeRow{ID: c.id, Seq: formatSeq(c.seq), Deleted: c.deleted})
		if f.dropped {
			return f, nil
		}
	}
	d.feeds[f] = struct{}{}
	return f, nil
}

func (d *MemoryDatabase) BulkGet(ids []string) ([]BulkRow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows := make([]BulkRow, 0, len(ids))
	for _, id := range ids {
		row := BulkRow{Key: id}
		if doc, ok := d.docs[id]; ok {
			row.Doc = copyDocument(doc)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (d *MemoryDatabase) Create(doc Document) (string, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := doc.ID()
	if id == "" {
		id = utils.MustNewUUID()
	}
	if _, exists := d.docs[id]; exists {
		return "", "", &ConflictError{ID: id}
	}

	// Recreating a deleted document continues its revision history.
	rev := d.nextRev(d.deleted[id])
	delete(d.deleted, id)

	stored := copyDocument(doc)
	stored["_id"] = id
	stored["_rev"] = rev
	d.docs[id] = stored
	d.record(id, false)
	return id, rev, nil
}

func (d *MemoryDatabase) Get(id string) (Document, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	doc, ok := d.docs[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	return copyDocument(doc), nil
}

func (d *MemoryDatabase) Update(doc Document) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := doc.ID()
	current, ok := d.docs[id]
	if !ok {
		return "", &NotFoundError{ID: id}
	}
	if doc.Rev() != current.Rev() {
		return "", &ConflictError{ID: id}
	}

	rev := d.nextRev(current.Rev())
	stored := copyDocument(doc)
	stored["_rev"] = rev
	d.docs[id] = stored
	d.record(id, false)
	return rev, nil
}

func (d *MemoryDatabase) Delete(doc Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := doc.ID()
	current, ok := d.docs[id]
	if !ok {
		return &NotFoundError{ID: id}
	}
	if doc.Rev() != current.Rev() {
		return &ConflictError{ID: id}
	}

	d.deleted[id] = current.Rev()
	delete(d.docs, id)
	d.record(id, true)
	return nil
}

func (d *MemoryDatabase) List(opts ListOptions) ([]ViewRow, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ids := make([]string, 0, len(d.docs))
	for id := range d.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var rows []ViewRow
	for _, id := range ids {
		if opts.StartKey != "" {
			if id < opts.StartKey {
				continue
			}
			if id == opts.StartKey && opts.StartKeyDocID != "" && id < opts.StartKeyDocID {
				continue
			}
		}
		if opts.EndKey != "" && id > opts.EndKey {
			break
		}
		rows = append(rows, ViewRow{ID: id, Key: id, Value: map[string]interface{}{"rev": d.docs[id].Rev()}})
		if opts.Limit > 0 && len(rows) == opts.Limit {
			break
		}
	}
	return rows, nil
}

func copyDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out
}

type memFeed struct {
	db        *MemoryDatabase
	heartbeat time.Duration
	rows      chan ChangeRow
	closed    chan struct{}
	dropped   bool // guarded by db.mu
}

// deliver hands row to the subscriber, or ends the feed when the buffer is
// full. A row must never be skipped while later rows still flow: the reader
// would checkpoint past the gap. A closed feed reconnects from its
// checkpoint, which still precedes the lost row. Callers hold d.mu.
func (f *memFeed) deliver(row ChangeRow) {
	select {
	case f.rows <- row:
	default:
		f.drop()
	}
}

// drop detaches and ends the feed. Callers hold d.mu.
func (f *memFeed) drop() {
	if f.dropped {
		return
	}
	f.dropped = true
	delete(f.db.feeds, f)
	close(f.closed)
}

func (f *memFeed) Next() (*ChangeRow, error) {
	// Rows buffered ahead of a close all precede any gap; deliver them
	// before reporting the end of the feed.
	select {
	case row := <-f.rows:
		return &row, nil
	default:
	}

	timeout := time.NewTimer(f.heartbeat)
	defer timeout.Stop()

	select {
	case row := <-f.rows:
		return &row, nil
	case <-f.closed:
		return nil, io.EOF
	case <-timeout.C:
		return nil, &FeedTimeoutError{Heartbeat: f.heartbeat}
	}
}

func (f *memFeed) Close() error {
	f.db.mu.Lock()
	f.drop()
	f.db.mu.Unlock()
	return nil
}
