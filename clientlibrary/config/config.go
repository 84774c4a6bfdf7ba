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
	"log"
	"strings"

	creds "github.com/aws/aws-sdk-go/aws/credentials"

	"github.com/vmware/vmware-go-ccl/clientlibrary/metrics"
	"github.com/vmware/vmware-go-ccl/logger"
)

const (
	// Number of change feed entries fetched and handled per checkpoint
	// advancement. Bounds the consumer's memory and the amount of work
	// redelivered after a crash.
	DefaultBatchSize = 25

	// Delay between one-shot passes in polling mode. Used when the store
	// lacks a usable continuous feed.
	DefaultPollDelayMillis = 5000

	// Interval at which an idle continuous feed emits keep-alives. A feed
	// silent for two intervals is considered disconnected and reopened.
	DefaultHeartbeatMillis = 10000

	// The DynamoDB table used for checkpoint storage will be provisioned
	// with this read capacity.
	DefaultInitialCheckpointTableReadCapacity = 10

	// The DynamoDB table used for checkpoint storage will be provisioned
	// with this write capacity.
	DefaultInitialCheckpointTableWriteCapacity = 10
)

// CouchClientLibConfiguration holds the configuration for all library
// components. Build one with NewCouchClientLibConfig and refine it with the
// With* methods.
type CouchClientLibConfiguration struct {
	// ApplicationName is the name of the consuming application. It names
	// the checkpoint location and the metrics namespace.
	ApplicationName string

	// DatabaseEndpoint is the base URL of the document store server.
	DatabaseEndpoint string

	// DatabaseName is the database whose change feed is consumed.
	DatabaseName string

	// WorkerID distinguishes different workers/processes of an
	// application. Defaults to a random UUID.
	WorkerID string

	// BatchSize is the number of changes handled per checkpoint
	// advancement. Must be at least 1.
	BatchSize int

	// PollDelayMillis is the sleep between passes in polling mode.
	PollDelayMillis int

	// HeartbeatMillis is the keep-alive interval for continuous feeds.
	HeartbeatMillis int

	// CheckpointStatePath is the statefile used by the file-based
	// checkpointer. Defaults to "<ApplicationName>.checkpoint" in the
	// working directory.
	CheckpointStatePath string

	// CheckpointTableName is the DynamoDB table used by the DynamoDB
	// checkpointer. Defaults to ApplicationName.
	CheckpointTableName string

	// RegionName is the AWS region of the checkpoint table.
	RegionName string

	// DynamoDBEndpoint is an optional endpoint URL that overrides the
	// default generated endpoint for a DynamoDB client.
	DynamoDBEndpoint string

	// DynamoDBCredentials is used to access DynamoDB.
	DynamoDBCredentials *creds.Credentials

	// CheckpointTableReadCapacity and CheckpointTableWriteCapacity are the
	// provisioned throughput for a checkpoint table the library creates.
	CheckpointTableReadCapacity  int
	CheckpointTableWriteCapacity int

	// ReservationPrefix namespaces reservation document ids. Empty means
	// ids are used verbatim.
	ReservationPrefix string

	// Logger receives all library logging. Defaults to a logrus console
	// logger at info level.
	Logger logger.Logger

	// MonitoringService receives operational metrics. Defaults to the
	// no-op service.
	MonitoringService metrics.MonitoringService
}

func empty(s string) bool {
	return strings.TrimSpace(s) == ""
}

// checkIsValuePositive panics when a With* setter receives a non-positive
// value. Configuration mistakes are programming errors, not runtime
// conditions.
func checkIsValuePositive(key string, value int) {
	if value <= 0 {
		log.Panicf("Non-positive value for %v: %v", key, value)
	}
}

func checkIsValueNotEmpty(key string, value string) {
	if empty(value) {
		log.Panicf("Empty value for %v", key)
	}
}
