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
	creds "github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/vmware/vmware-go-ccl/clientlibrary/metrics"
	"github.com/vmware/vmware-go-ccl/clientlibrary/utils"
	"github.com/vmware/vmware-go-ccl/logger"
)

// NewCouchClientLibConfig creates a default CouchClientLibConfiguration
// based on the required fields.
func NewCouchClientLibConfig(applicationName, databaseEndpoint, databaseName, workerID string) *CouchClientLibConfiguration {
	checkIsValueNotEmpty("ApplicationName", applicationName)
	checkIsValueNotEmpty("DatabaseEndpoint", databaseEndpoint)
	checkIsValueNotEmpty("DatabaseName", databaseName)

	if empty(workerID) {
		workerID = utils.MustNewUUID()
	}

	return &CouchClientLibConfiguration{
		ApplicationName:              applicationName,
		DatabaseEndpoint:             databaseEndpoint,
		DatabaseName:                 databaseName,
		WorkerID:                     workerID,
		BatchSize:                    DefaultBatchSize,
		PollDelayMillis:              DefaultPollDelayMillis,
		HeartbeatMillis:              DefaultHeartbeatMillis,
		CheckpointStatePath:          applicationName + ".checkpoint",
		CheckpointTableName:          applicationName,
		CheckpointTableReadCapacity:  DefaultInitialCheckpointTableReadCapacity,
		CheckpointTableWriteCapacity: DefaultInitialCheckpointTableWriteCapacity,
		Logger:                       logger.GetDefaultLogger(),
	}
}

// WithBatchSize configures the number of changes handled per checkpoint
// advancement.
func (c *CouchClientLibConfiguration) WithBatchSize(batchSize int) *CouchClientLibConfiguration {
	checkIsValuePositive("BatchSize", batchSize)
	c.BatchSize = batchSize
	return c
}

func (c *CouchClientLibConfiguration) WithPollDelayMillis(pollDelayMillis int) *CouchClientLibConfiguration {
	checkIsValuePositive("PollDelayMillis", pollDelayMillis)
	c.PollDelayMillis = pollDelayMillis
	return c
}

func (c *CouchClientLibConfiguration) WithHeartbeatMillis(heartbeatMillis int) *CouchClientLibConfiguration {
	checkIsValuePositive("HeartbeatMillis", heartbeatMillis)
	c.HeartbeatMillis = heartbeatMillis
	return c
}

// WithCheckpointStatePath configures the statefile used by the file-based
// checkpointer.
func (c *CouchClientLibConfiguration) WithCheckpointStatePath(path string) *CouchClientLibConfiguration {
	checkIsValueNotEmpty("CheckpointStatePath", path)
	c.CheckpointStatePath = path
	return c
}

// WithCheckpointTableName provides an alternative checkpoint table in
// DynamoDB.
func (c *CouchClientLibConfiguration) WithCheckpointTableName(tableName string) *CouchClientLibConfiguration {
	checkIsValueNotEmpty("CheckpointTableName", tableName)
	c.CheckpointTableName = tableName
	return c
}

func (c *CouchClientLibConfiguration) WithRegionName(regionName string) *CouchClientLibConfiguration {
	c.RegionName = regionName
	return c
}

// WithDynamoDBEndpoint is used to provide an alternative DynamoDB endpoint.
func (c *CouchClientLibConfiguration) WithDynamoDBEndpoint(dynamoDBEndpoint string) *CouchClientLibConfiguration {
	c.DynamoDBEndpoint = dynamoDBEndpoint
	return c
}

func (c *CouchClientLibConfiguration) WithDynamoDBCredentials(credentials *creds.Credentials) *CouchClientLibConfiguration {
	c.DynamoDBCredentials = credentials
	return c
}

// WithReservationPrefix namespaces reservation document ids.
func (c *CouchClientLibConfiguration) WithReservationPrefix(prefix string) *CouchClientLibConfiguration {
	c.ReservationPrefix = prefix
	return c
}

func (c *CouchClientLibConfiguration) WithLogger(logger logger.Logger) *CouchClientLibConfiguration {
	if logger == nil {
		panic("Logger cannot be null")
	}
	c.Logger = logger
	return c
}

// WithMonitoringService sets the metrics sink for consumer and reservation
// operations.
func (c *CouchClientLibConfiguration) WithMonitoringService(mService metrics.MonitoringService) *CouchClientLibConfiguration {
	if mService == nil {
		panic("Monitoring service cannot be null")
	}
	c.MonitoringService = mService
	return c
}
