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
	"errors"
	"io"
	"time"

	"github.com/vmware/vmware-go-ccl/clientlibrary/store"
)

// runContinuous drains the backlog in batches, then holds a continuous feed
// open and checkpoints after every handled change. A feed that ends or goes
// silent past its heartbeat window is reopened from the last checkpoint;
// redelivery across the reopen is covered by the at-least-once contract.
func (c *ChangeFeedConsumer) runContinuous() error {
	if err := c.runOnce(); err != nil {
		return err
	}

	heartbeat := time.Duration(c.cclConfig.HeartbeatMillis) * time.Millisecond

	for !c.stopping() {
		since := c.loadCheckpoint()
		feed, err := c.db.ChangesFeed(store.ChangesOptions{Since: since, Heartbeat: heartbeat})
		if err != nil {
			return err
		}

		err = c.consumeFeed(feed)
		feed.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// consumeFeed handles rows until the feed ends, times out, or the consumer
// is stopped. A nil return means the caller may reopen; handler, store and
// checkpoint errors propagate.
func (c *ChangeFeedConsumer) consumeFeed(feed store.ChangeFeed) error {
	// Unblock a pending Next when Shutdown is called.
	watcherDone := make(chan struct{})
	defer close(watcherDone)
	go func() {
		select {
		case <-*c.stop:
			feed.Close()
		case <-watcherDone:
		}
	}()

	for {
		row, err := feed.Next()
		if err != nil {
			var timeout *store.FeedTimeoutError
			switch {
			case errors.As(err, &timeout):
				c.log.Warnf("Change feed silent past heartbeat window, reconnecting: %v", err)
				return nil
			case errors.Is(err, io.EOF):
				return nil
			case c.stopping():
				return nil
			default:
				return err
			}
		}

		if err := c.handleBatch([]store.ChangeRow{*row}); err != nil {
			return err
		}
		if err := c.saveCheckpoint(row.Seq); err != nil {
			return err
		}
		c.mService.IncrBatchesCommitted(c.cclConfig.DatabaseName)
	}
}
