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

package metrics

// MonitoringService is the sink for operational metrics emitted by the
// change feed consumer and the reservation manager.
type MonitoringService interface {
	Init(appName, databaseName, workerID string) error
	Start() error
	IncrChangesProcessed(database string, count int)
	IncrBatchesCommitted(database string)
	IncrCheckpointsWritten(database string)
	IncrReservationsAcquired(database string)
	IncrReservationConflicts(database string)
	IncrReservationsReleased(database string)
	RecordFetchChangesTime(database string, millis float64)
	RecordHandleBatchTime(database string, millis float64)
	Shutdown()
}

// NoopMonitoringService implements MonitoringService by doing nothing.
type NoopMonitoringService struct{}

func (NoopMonitoringService) Init(appName, databaseName, workerID string) error { return nil }
func (NoopMonitoringService) Start() error                                      { return nil }
func (NoopMonitoringService) Shutdown()                                         {}

func (NoopMonitoringService) IncrChangesProcessed(database string, count int) {}
func (NoopMonitoringService) IncrBatchesCommitted(database string)            {}
func (NoopMonitoringService) IncrCheckpointsWritten(database string)          {}
func (NoopMonitoringService) IncrReservationsAcquired(database string)        {}
func (NoopMonitoringService) IncrReservationConflicts(database string)        {}
func (NoopMonitoringService) IncrReservationsReleased(database string)        {}

func (NoopMonitoringService) RecordFetchChangesTime(database string, millis float64) {}
func (NoopMonitoringService) RecordHandleBatchTime(database string, millis float64)  {}
