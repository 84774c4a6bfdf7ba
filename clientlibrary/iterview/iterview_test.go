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

package iterview

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vmware/vmware-go-ccl/clientlibrary/store"
)

// fakeView serves rows the way _all_docs does: key-ordered, StartKey
// inclusive, counting every fetch.
type fakeView struct {
	rows    []store.ViewRow
	fetches int
}

func (v *fakeView) list(opts store.ListOptions) ([]store.ViewRow, error) {
	v.fetches++
	var out []store.ViewRow
	for _, row := range v.rows {
		if opts.StartKey != "" && row.Key < opts.StartKey {
			continue
		}
		if opts.EndKey != "" && row.Key > opts.EndKey {
			break
		}
		out = append(out, row)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func newFakeView(n int) *fakeView {
	v := &fakeView{}
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("doc-%03d", i)
		v.rows = append(v.rows, store.ViewRow{ID: id, Key: id})
	}
	return v
}

func collect(t *testing.T, it *Iterator) []string {
	t.Helper()
	var ids []string
	for it.Next() {
		ids = append(ids, it.Row().ID)
	}
	require.NoError(t, it.Err())
	return ids
}

func TestIterateAllRowsInOrder(t *testing.T) {
	view := newFakeView(5)
	it, err := Iterate(view.list, store.ListOptions{}, 2, 0)
	require.NoError(t, err)

	ids := collect(t, it)
	assert.Equal(t, []string{"doc-000", "doc-001", "doc-002", "doc-003", "doc-004"}, ids)
	// Three pages: 2+lookahead, 2+lookahead, final short page.
	assert.Equal(t, 3, view.fetches)
}

func TestIterateEmptyView(t *testing.T) {
	view := newFakeView(0)
	it, err := Iterate(view.list, store.ListOptions{}, 2, 0)
	require.NoError(t, err)

	assert.Empty(t, collect(t, it))
	assert.Equal(t, 1, view.fetches)
}

func TestIterateExactPageBoundary(t *testing.T) {
	view := newFakeView(4)
	it, err := Iterate(view.list, store.ListOptions{}, 2, 0)
	require.NoError(t, err)

	ids := collect(t, it)
	assert.Len(t, ids, 4)
}

func TestIterateHonorsLimit(t *testing.T) {
	view := newFakeView(10)
	it, err := Iterate(view.list, store.ListOptions{}, 3, 5)
	require.NoError(t, err)

	ids := collect(t, it)
	assert.Equal(t, []string{"doc-000", "doc-001", "doc-002", "doc-003", "doc-004"}, ids)
}

func TestIterateLimitBelowPageSize(t *testing.T) {
	view := newFakeView(10)
	it, err := Iterate(view.list, store.ListOptions{}, 100, 2)
	require.NoError(t, err)

	ids := collect(t, it)
	assert.Equal(t, []string{"doc-000", "doc-001"}, ids)
	assert.Equal(t, 1, view.fetches)
}

func TestIterateKeyRange(t *testing.T) {
	view := newFakeView(10)
	it, err := Iterate(view.list, store.ListOptions{StartKey: "doc-003", EndKey: "doc-006"}, 2, 0)
	require.NoError(t, err)

	ids := collect(t, it)
	assert.Equal(t, []string{"doc-003", "doc-004", "doc-005", "doc-006"}, ids)
}

func TestIterateRejectsBadArguments(t *testing.T) {
	view := newFakeView(1)

	_, err := Iterate(view.list, store.ListOptions{}, 0, 0)
	assert.Error(t, err)

	_, err = Iterate(view.list, store.ListOptions{}, 10, -1)
	assert.Error(t, err)
}

func TestIterateSurfacesFetchError(t *testing.T) {
	boom := errors.New("view unavailable")
	it, err := Iterate(func(store.ListOptions) ([]store.ViewRow, error) {
		return nil, boom
	}, store.ListOptions{}, 2, 0)
	require.NoError(t, err)

	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), boom)
}
