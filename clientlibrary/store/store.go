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

// Package store defines the document store API the library consumes.
//
// The library needs very little from the store: a sequential change feed,
// bulk document reads, revision-checked writes, a key-ordered listing, and
// one coordination primitive — create a document with a given id and fail
// distinguishably when one already exists. Anything providing these
// operations can back the library; a CouchDB HTTP binding and an in-memory
// binding are included.
package store

import (
	"fmt"
	"time"
)

// Document is a schemaless store document. The store reserves the "_id" and
// "_rev" fields for the document id and revision.
type Document map[string]interface{}

// ID returns the document id, or "" when unset.
func (d Document) ID() string {
	id, _ := d["_id"].(string)
	return id
}

// Rev returns the store-assigned revision, or "" when the document has not
// been read from or written to the store.
func (d Document) Rev() string {
	rev, _ := d["_rev"].(string)
	return rev
}

// ChangeRow is one entry of the store's change feed. Seq is an opaque,
// totally-ordered token; rows only ever compare tokens for equality and
// feed positions are always tokens previously handed out by the store.
type ChangeRow struct {
	ID      string
	Seq     string
	Deleted bool
}

// ChangePage is one page of the change feed.
type ChangePage struct {
	Results []ChangeRow
	LastSeq string
}

// ChangesOptions control a Changes or ChangesFeed call.
type ChangesOptions struct {
	// Since restarts the feed just after the given sequence token.
	// Empty means the beginning of the database's history.
	Since string

	// Limit caps the number of rows returned. 0 means store default.
	Limit int

	// Longpoll asks the store to hold the request open until at least one
	// change is available. Ignored by ChangesFeed.
	Longpoll bool

	// Heartbeat is the interval at which a feed emits keep-alives when
	// idle. A ChangesFeed whose connection stays silent for longer than
	// the heartbeat window reports a *FeedTimeoutError from Next.
	Heartbeat time.Duration
}

// BulkRow is one row of a bulk document fetch. Doc is nil when the document
// has been deleted or never existed.
type BulkRow struct {
	Key string
	Doc Document
}

// ViewRow is one row of a key-ordered listing.
type ViewRow struct {
	ID    string
	Key   string
	Value interface{}
}

// ListOptions control a List call. StartKey is inclusive, per the store's
// range query semantics; StartKeyDocID disambiguates the start position when
// multiple rows share a key.
type ListOptions struct {
	StartKey      string
	StartKeyDocID string
	EndKey        string
	Limit         int
}

// ChangeFeed is a long-lived push stream of change rows.
type ChangeFeed interface {
	// Next blocks until the next change row arrives. It returns a
	// *FeedTimeoutError when the feed stays silent past its heartbeat
	// window, and io.EOF when the store ends the feed.
	Next() (*ChangeRow, error)

	Close() error
}

// Database is the abstract store handle all components are built against.
// All calls are synchronous round trips; none are retried internally.
type Database interface {
	// Changes reads one page of the change feed.
	Changes(opts ChangesOptions) (*ChangePage, error)

	// ChangesFeed opens a continuous change stream.
	ChangesFeed(opts ChangesOptions) (ChangeFeed, error)

	// BulkGet fetches full documents for the given ids, in order. Rows for
	// deleted or missing documents carry a nil Doc.
	BulkGet(ids []string) ([]BulkRow, error)

	// Create stores a new document. The write fails with a *ConflictError
	// when a document with the same id already exists — this is the
	// mutual-exclusion primitive the reservation package is built on.
	Create(doc Document) (id, rev string, err error)

	// Get reads a single document, failing with a *NotFoundError when it
	// is absent or deleted.
	Get(id string) (Document, error)

	// Update overwrites an existing document. The document must carry the
	// revision being replaced; a stale revision fails with a
	// *ConflictError.
	Update(doc Document) (rev string, err error)

	// Delete removes a document at the revision it carries.
	Delete(doc Document) error

	// List reads rows of the store's key-ordered primary index.
	List(opts ListOptions) ([]ViewRow, error)
}

// ConflictError is returned when a write loses against an existing document
// or revision.
type ConflictError struct {
	ID string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("document update conflict: %s", e.ID)
}

// NotFoundError is returned when a document does not exist or has been
// deleted.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("document not found: %s", e.ID)
}

// FeedTimeoutError is returned by ChangeFeed.Next when the connection stays
// silent past the heartbeat window, signalling a silent disconnect.
type FeedTimeoutError struct {
	Heartbeat time.Duration
}

func (e *FeedTimeoutError) Error() string {
	return fmt.Sprintf("change feed silent for more than %v", e.Heartbeat)
}
