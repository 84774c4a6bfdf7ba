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

package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileCheckpointerRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.checkpoint")
	c := NewFileCheckpointerAtPath(path, nil)
	require.NoError(t, c.Init())

	sequence, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, "", sequence)

	require.NoError(t, c.Save("42-abc"))
	sequence, err = c.Load()
	require.NoError(t, err)
	assert.Equal(t, "42-abc", sequence)

	require.NoError(t, c.Save("43-def"))
	sequence, err = c.Load()
	require.NoError(t, err)
	assert.Equal(t, "43-def", sequence)
}

func TestFileCheckpointerInitCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state", "app.checkpoint")
	c := NewFileCheckpointerAtPath(path, nil)
	require.NoError(t, c.Init())
	require.NoError(t, c.Save("1-abc"))

	sequence, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, "1-abc", sequence)
}

func TestFileCheckpointerTrimsWhitespace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.checkpoint")
	require.NoError(t, os.WriteFile(path, []byte("7-abc\n"), 0o644))

	c := NewFileCheckpointerAtPath(path, nil)
	sequence, err := c.Load()
	require.NoError(t, err)
	assert.Equal(t, "7-abc", sequence)
}

func TestFileCheckpointerSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewFileCheckpointerAtPath(filepath.Join(dir, "app.checkpoint"), nil)
	require.NoError(t, c.Init())
	require.NoError(t, c.Save("9-abc"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, "app.checkpoint", entries[0].Name())
}
