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

// Package checkpoint persists the consumer's change feed position.
package checkpoint

// Checkpointer stores a single opaque sequence token at a named location.
// The library assumes one active consumer per checkpoint location; there is
// no multi-writer coordination.
type Checkpointer interface {
	// Init prepares the backing storage.
	Init() error

	// Load reads the persisted token. A missing or unparsable checkpoint
	// returns "" with no error — the consumer restarts from the stream
	// origin rather than failing.
	Load() (string, error)

	// Save atomically overwrites the persisted token. A load in this or
	// any later process observes either the previous token or the new
	// one, never a partial write.
	Save(sequence string) error
}
