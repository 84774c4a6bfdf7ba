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

// Package iterview iterates a key-ordered view in fixed-size pages.
//
// Each page fetch asks for one row beyond the page size; the extra row
// proves more data exists and becomes the inclusive start position of the
// next fetch, so pagination needs no server-side cursor state. Memory stays
// bounded by the page size regardless of the view's length.
//
// Pages are independent range reads against an eventually consistent store.
// Rows written or deleted while iterating may or may not be observed; the
// iteration is not a snapshot.
package iterview

import (
	"fmt"

	"github.com/vmware/vmware-go-ccl/clientlibrary/store"
)

// Source reads one page of a key-ordered view. store.Database.List
// satisfies it.
type Source func(opts store.ListOptions) ([]store.ViewRow, error)

// Iterator walks view rows in key order. Use it like:
//
//	it, err := iterview.Iterate(db.List, opts, 100, 0)
//	for it.Next() {
//	    row := it.Row()
//	    ...
//	}
//	if err := it.Err(); err != nil { ... }
type Iterator struct {
	source   Source
	opts     store.ListOptions
	pageSize int

	limited   bool
	remaining int

	pending   []store.ViewRow
	row       store.ViewRow
	exhausted bool
	done      bool
	err       error
}

// Iterate creates an iterator over source starting at opts' range. pageSize
// bounds rows held in memory and must be at least 1. limit caps the total
// rows yielded; 0 means unlimited. opts.Limit is ignored, the iterator
// manages per-fetch limits itself.
func Iterate(source Source, opts store.ListOptions, pageSize, limit int) (*Iterator, error) {
	if pageSize < 1 {
		return nil, fmt.Errorf("page size must be at least 1, got %d", pageSize)
	}
	if limit < 0 {
		return nil, fmt.Errorf("limit must not be negative, got %d", limit)
	}

	return &Iterator{
		source:    source,
		opts:      opts,
		pageSize:  pageSize,
		limited:   limit > 0,
		remaining: limit,
	}, nil
}

// Next advances to the next row, fetching a page when the current one is
// drained. It returns false when the view is exhausted, the limit is
// reached, or a fetch failed; check Err after the loop.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	if len(it.pending) == 0 {
		if it.exhausted {
			it.done = true
			return false
		}
		it.fetch()
		if it.err != nil || len(it.pending) == 0 {
			it.done = true
			return false
		}
	}

	it.row = it.pending[0]
	it.pending = it.pending[1:]
	return true
}

// Row returns the row Next advanced to. Only valid after Next returned
// true.
func (it *Iterator) Row() store.ViewRow {
	return it.row
}

// Err returns the first fetch error, or nil when iteration ended normally.
func (it *Iterator) Err() error {
	return it.err
}

func (it *Iterator) fetch() {
	loopLimit := it.pageSize
	if it.limited && it.remaining < loopLimit {
		loopLimit = it.remaining
	}

	opts := it.opts
	opts.Limit = loopLimit + 1
	rows, err := it.source(opts)
	if err != nil {
		it.err = err
		return
	}

	yield := len(rows)
	if yield > loopLimit {
		yield = loopLimit
	}
	it.pending = rows[:yield]

	if it.limited {
		consumed := len(rows)
		if consumed > it.pageSize {
			consumed = it.pageSize
		}
		it.remaining -= consumed
	}

	if len(rows) <= loopLimit || (it.limited && it.remaining <= 0) {
		it.exhausted = true
		return
	}

	// The unyielded lookahead row starts the next page; StartKey is
	// inclusive and StartKeyDocID breaks ties between rows sharing a key.
	last := rows[len(rows)-1]
	it.opts.StartKey = last.Key
	it.opts.StartKeyDocID = last.ID
}
