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

// Package consumer implements the checkpointed change feed consumer.
//
// The consumer reads the database's change feed in batches, hands each
// change to the application's handler, and advances a durable checkpoint
// only after the whole batch has been handled. A crash between handling and
// checkpointing redelivers the batch on restart, so delivery is at least
// once and handlers must be idempotent.
package consumer

import (
	"fmt"
	"time"

	"github.com/vmware/vmware-go-ccl/clientlibrary/checkpoint"
	"github.com/vmware/vmware-go-ccl/clientlibrary/config"
	"github.com/vmware/vmware-go-ccl/clientlibrary/interfaces"
	"github.com/vmware/vmware-go-ccl/clientlibrary/metrics"
	"github.com/vmware/vmware-go-ccl/clientlibrary/store"
	"github.com/vmware/vmware-go-ccl/logger"
)

// RunMode selects how Run consumes the change feed.
type RunMode int

const (
	// OneShot drains the backlog of pending changes and returns.
	OneShot RunMode = iota + 1

	// Polling drains the backlog, sleeps for the configured poll delay, and
	// repeats until Shutdown.
	Polling

	// Continuous drains the backlog, then holds a continuous feed open and
	// handles changes as they arrive, until Shutdown.
	Continuous
)

// ChangeFeedConsumer drives a ChangeHandler from a database's change feed.
// Exactly one consumer may run per checkpoint location.
type ChangeFeedConsumer struct {
	cclConfig    *config.CouchClientLibConfiguration
	db           store.Database
	checkpointer checkpoint.Checkpointer
	handler      interfaces.ChangeHandler
	mService     metrics.MonitoringService
	log          logger.Logger

	stop *chan struct{}
}

// New creates a consumer from the given configuration. The database,
// checkpointer, handler and monitoring service all have defaults; override
// them with the With methods before calling Run.
func New(cclConfig *config.CouchClientLibConfiguration) *ChangeFeedConsumer {
	return &ChangeFeedConsumer{
		cclConfig: cclConfig,
		mService:  cclConfig.MonitoringService,
		log:       cclConfig.Logger,
	}
}

// WithDatabase is used to provide a database binding for either a custom
// store or unit testing. The default is a CouchDB binding against the
// configured endpoint.
func (c *ChangeFeedConsumer) WithDatabase(db store.Database) *ChangeFeedConsumer {
	c.db = db
	return c
}

// WithCheckpointer overrides the default file-based checkpointer.
func (c *ChangeFeedConsumer) WithCheckpointer(checkpointer checkpoint.Checkpointer) *ChangeFeedConsumer {
	c.checkpointer = checkpointer
	return c
}

// WithChangeHandler sets the application callback receiving changes.
func (c *ChangeFeedConsumer) WithChangeHandler(handler interfaces.ChangeHandler) *ChangeFeedConsumer {
	c.handler = handler
	return c
}

// WithMonitoringService overrides the configured metrics sink.
func (c *ChangeFeedConsumer) WithMonitoringService(mService metrics.MonitoringService) *ChangeFeedConsumer {
	c.mService = mService
	return c
}

func (c *ChangeFeedConsumer) initialize() error {
	c.log.Infof("Initializing change feed consumer for database: %s", c.cclConfig.DatabaseName)

	if c.db == nil {
		c.db = store.NewCouchDatabase(c.cclConfig.DatabaseEndpoint, c.cclConfig.DatabaseName, c.log)
	}

	if c.checkpointer == nil {
		c.checkpointer = checkpoint.NewFileCheckpointer(c.cclConfig)
	}
	if err := c.checkpointer.Init(); err != nil {
		return fmt.Errorf("failed to initialize checkpointer: %w", err)
	}

	if c.handler == nil {
		c.handler = interfaces.LoggingChangeHandler{Log: c.log}
	}

	if c.mService == nil {
		c.mService = metrics.NoopMonitoringService{}
	}
	if err := c.mService.Init(c.cclConfig.ApplicationName, c.cclConfig.DatabaseName, c.cclConfig.WorkerID); err != nil {
		return fmt.Errorf("failed to initialize monitoring service: %w", err)
	}
	if err := c.mService.Start(); err != nil {
		return fmt.Errorf("failed to start monitoring service: %w", err)
	}

	stopChan := make(chan struct{})
	c.stop = &stopChan

	c.log.Infof("Initialization complete. Worker: %s", c.cclConfig.WorkerID)
	return nil
}

// Run consumes the change feed in the given mode. OneShot returns once the
// backlog is drained; Polling and Continuous block until Shutdown is called
// from another goroutine. Any handler, store or checkpoint error aborts the
// run before the failing batch's checkpoint is written.
func (c *ChangeFeedConsumer) Run(mode RunMode) error {
	if err := c.initialize(); err != nil {
		return err
	}
	defer c.mService.Shutdown()

	switch mode {
	case OneShot:
		return c.runOnce()
	case Polling:
		return c.runPolling()
	case Continuous:
		return c.runContinuous()
	default:
		return fmt.Errorf("unknown run mode: %d", mode)
	}
}

// Shutdown signals a Polling or Continuous run to stop after the change it
// is currently handling. Safe to call at most once per Run.
func (c *ChangeFeedConsumer) Shutdown() {
	c.log.Infof("Consumer shutdown requested")
	if c.stop != nil {
		close(*c.stop)
	}
}

func (c *ChangeFeedConsumer) stopping() bool {
	select {
	case <-*c.stop:
		return true
	default:
		return false
	}
}

// runOnce drains pending changes in batches until the store reports an
// empty page. A page shorter than the batch size does not end the drain;
// stores may return short pages mid-stream. At most one batch of changes is
// held in memory at a time.
func (c *ChangeFeedConsumer) runOnce() error {
	since := c.loadCheckpoint()
	batchSize := c.cclConfig.BatchSize

	for !c.stopping() {
		fetchStart := time.Now()
		page, err := c.db.Changes(store.ChangesOptions{Since: since, Limit: batchSize})
		if err != nil {
			return fmt.Errorf("failed to fetch changes: %w", err)
		}
		c.mService.RecordFetchChangesTime(c.cclConfig.DatabaseName, float64(time.Since(fetchStart).Milliseconds()))

		if len(page.Results) == 0 {
			return nil
		}

		if err := c.handleBatch(page.Results); err != nil {
			return err
		}

		since = page.Results[len(page.Results)-1].Seq
		if err := c.saveCheckpoint(since); err != nil {
			return err
		}
		c.mService.IncrBatchesCommitted(c.cclConfig.DatabaseName)
	}
	return nil
}

// handleBatch resolves the winning revision of every change and dispatches
// to the handler. A nil bulk row doc means the document is gone, either the
// change was a delete or the document was deleted after the change was
// emitted; both dispatch as a delete.
func (c *ChangeFeedConsumer) handleBatch(rows []store.ChangeRow) error {
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	handleStart := time.Now()
	bulk, err := c.db.BulkGet(ids)
	if err != nil {
		return fmt.Errorf("failed to fetch documents for batch: %w", err)
	}
	if len(bulk) != len(rows) {
		return fmt.Errorf("bulk fetch returned %d rows for %d ids", len(bulk), len(rows))
	}

	for i, row := range rows {
		if bulk[i].Doc == nil {
			err = c.handler.OnDelete(row.ID)
		} else {
			err = c.handler.OnUpdate(bulk[i].Doc)
		}
		if err != nil {
			return fmt.Errorf("handler failed on document %s: %w", row.ID, err)
		}
	}

	c.mService.IncrChangesProcessed(c.cclConfig.DatabaseName, len(rows))
	c.mService.RecordHandleBatchTime(c.cclConfig.DatabaseName, float64(time.Since(handleStart).Milliseconds()))
	return nil
}

// loadCheckpoint treats any load failure as "no checkpoint" so a damaged
// checkpoint store costs redelivery, never an outage.
func (c *ChangeFeedConsumer) loadCheckpoint() string {
	sequence, err := c.checkpointer.Load()
	if err != nil {
		c.log.Warnf("Failed to load checkpoint, starting from stream origin: %v", err)
		return ""
	}
	return sequence
}

func (c *ChangeFeedConsumer) saveCheckpoint(sequence string) error {
	if err := c.checkpointer.Save(sequence); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", sequence, err)
	}
	c.mService.IncrCheckpointsWritten(c.cclConfig.DatabaseName)
	return nil
}
