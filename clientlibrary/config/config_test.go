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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vmware/vmware-go-ccl/logger"
)

func TestConfig(t *testing.T) {
	cclConfig := NewCouchClientLibConfig("appName", "http://127.0.0.1:5984", "registry", "workerID").
		WithBatchSize(10).
		WithPollDelayMillis(500).
		WithHeartbeatMillis(2000).
		WithReservationPrefix("lock/")

	assert.Equal(t, "appName", cclConfig.ApplicationName)
	assert.Equal(t, "registry", cclConfig.DatabaseName)
	assert.Equal(t, 10, cclConfig.BatchSize)
	assert.Equal(t, 500, cclConfig.PollDelayMillis)
	assert.Equal(t, 2000, cclConfig.HeartbeatMillis)
	assert.Equal(t, "lock/", cclConfig.ReservationPrefix)
	assert.Equal(t, "appName.checkpoint", cclConfig.CheckpointStatePath)
	assert.Equal(t, "appName", cclConfig.CheckpointTableName)
	assert.NotNil(t, cclConfig.Logger)

	log := logger.GetDefaultLogger()
	cclConfig.WithLogger(log)
	assert.Equal(t, log, cclConfig.Logger)
}

func TestConfigDefaultsWorkerID(t *testing.T) {
	cclConfig := NewCouchClientLibConfig("appName", "http://127.0.0.1:5984", "registry", "")
	assert.NotEmpty(t, cclConfig.WorkerID)
}

func TestConfigRejectsBadValues(t *testing.T) {
	assert.Panics(t, func() {
		NewCouchClientLibConfig("", "http://127.0.0.1:5984", "registry", "workerID")
	})
	assert.Panics(t, func() {
		NewCouchClientLibConfig("appName", "http://127.0.0.1:5984", "registry", "workerID").WithBatchSize(0)
	})
	assert.Panics(t, func() {
		NewCouchClientLibConfig("appName", "http://127.0.0.1:5984", "registry", "workerID").WithLogger(nil)
	})
}
