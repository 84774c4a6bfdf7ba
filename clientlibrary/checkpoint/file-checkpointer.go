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
	"strings"

	"github.com/vmware/vmware-go-ccl/clientlibrary/config"
	"github.com/vmware/vmware-go-ccl/logger"
)

// FileCheckpointer implements Checkpointer with a statefile on local disk.
// Saves write to a temp file in the same directory and rename it into
// place, so a reader never observes a torn write.
type FileCheckpointer struct {
	path string
	log  logger.Logger
}

// NewFileCheckpointer creates a checkpointer at the configured statefile
// path.
func NewFileCheckpointer(cclConfig *config.CouchClientLibConfiguration) *FileCheckpointer {
	return &FileCheckpointer{
		path: cclConfig.CheckpointStatePath,
		log:  cclConfig.Logger,
	}
}

// NewFileCheckpointerAtPath creates a checkpointer at an explicit path.
func NewFileCheckpointerAtPath(path string, log logger.Logger) *FileCheckpointer {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &FileCheckpointer{path: path, log: log}
}

// Init ensures the statefile's directory exists.
func (c *FileCheckpointer) Init() error {
	dir := filepath.Dir(c.path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads the persisted token. Read failures and empty content are
// reported as "no checkpoint" so a damaged statefile can never wedge a
// deployment; the consumer re-reads from the stream origin instead.
func (c *FileCheckpointer) Load() (string, error) {
	content, err := os.ReadFile(c.path)
	if err != nil {
		if !os.IsNotExist(err) {
			c.log.Warnf("Unreadable checkpoint statefile %s, starting from origin: %v", c.path, err)
		}
		return "", nil
	}

	sequence := strings.TrimSpace(string(content))
	return sequence, nil
}

// Save writes the token via a temp file and an atomic rename.
func (c *FileCheckpointer) Save(sequence string) error {
	dir := filepath.Dir(c.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(c.path)+".*")
	if err != nil {
		return err
	}

	if _, err := tmp.WriteString(sequence); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), c.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
