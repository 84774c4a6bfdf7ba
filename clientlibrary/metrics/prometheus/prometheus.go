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

// Package prometheus publishes library metrics to Prometheus.
package prometheus

import (
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vmware/vmware-go-ccl/logger"
)

// MonitoringService publishes consumer and reservation metrics to
// Prometheus. It can be tricky if the service onboarding with the library
// already uses Prometheus; in that case register collectors on the host's
// registry instead.
type MonitoringService struct {
	listenAddress string
	namespace     string
	databaseName  string
	workerID      string
	logger        logger.Logger

	changesProcessed     *prom.CounterVec
	batchesCommitted     *prom.CounterVec
	checkpointsWritten   *prom.CounterVec
	reservationsAcquired *prom.CounterVec
	reservationConflicts *prom.CounterVec
	reservationsReleased *prom.CounterVec
	fetchChangesTime     *prom.HistogramVec
	handleBatchTime      *prom.HistogramVec
}

// NewMonitoringService returns a MonitoringService publishing metrics to
// Prometheus on the given listen address.
func NewMonitoringService(listenAddress string, logger logger.Logger) *MonitoringService {
	return &MonitoringService{
		listenAddress: listenAddress,
		logger:        logger,
	}
}

func (p *MonitoringService) Init(appName, databaseName, workerID string) error {
	p.namespace = appName
	p.databaseName = databaseName
	p.workerID = workerID

	p.changesProcessed = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_changes_processed`,
		Help: "Number of change feed entries handled",
	}, []string{"database"})
	p.batchesCommitted = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_batches_committed`,
		Help: "Number of change batches fully handled and checkpointed",
	}, []string{"database"})
	p.checkpointsWritten = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_checkpoints_written`,
		Help: "Number of checkpoint writes",
	}, []string{"database"})
	p.reservationsAcquired = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_reservations_acquired`,
		Help: "Number of reservations successfully acquired",
	}, []string{"database"})
	p.reservationConflicts = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_reservation_conflicts`,
		Help: "Number of reservation attempts lost to an existing holder",
	}, []string{"database"})
	p.reservationsReleased = prom.NewCounterVec(prom.CounterOpts{
		Name: p.namespace + `_reservations_released`,
		Help: "Number of reservations released",
	}, []string{"database"})
	p.fetchChangesTime = prom.NewHistogramVec(prom.HistogramOpts{
		Name: p.namespace + `_fetch_changes_duration_milliseconds`,
		Help: "The time taken to fetch a page of changes",
	}, []string{"database"})
	p.handleBatchTime = prom.NewHistogramVec(prom.HistogramOpts{
		Name: p.namespace + `_handle_batch_duration_milliseconds`,
		Help: "The time taken to dispatch a batch to the change handler",
	}, []string{"database"})

	collectors := []prom.Collector{
		p.changesProcessed,
		p.batchesCommitted,
		p.checkpointsWritten,
		p.reservationsAcquired,
		p.reservationConflicts,
		p.reservationsReleased,
		p.fetchChangesTime,
		p.handleBatchTime,
	}
	for _, collector := range collectors {
		if err := prom.Register(collector); err != nil {
			return err
		}
	}

	return nil
}

func (p *MonitoringService) Start() error {
	http.Handle("/metrics", promhttp.Handler())
	go func() {
		p.logger.Infof("Starting Prometheus listener on %s", p.listenAddress)
		err := http.ListenAndServe(p.listenAddress, nil)
		if err != nil {
			p.logger.Errorf("Error starting Prometheus metrics endpoint. %+v", err)
		}
		p.logger.Infof("Stopped metrics server")
	}()

	return nil
}

func (p *MonitoringService) Shutdown() {}

func (p *MonitoringService) IncrChangesProcessed(database string, count int) {
	p.changesProcessed.With(prom.Labels{"database": database}).Add(float64(count))
}

func (p *MonitoringService) IncrBatchesCommitted(database string) {
	p.batchesCommitted.With(prom.Labels{"database": database}).Inc()
}

func (p *MonitoringService) IncrCheckpointsWritten(database string) {
	p.checkpointsWritten.With(prom.Labels{"database": database}).Inc()
}

func (p *MonitoringService) IncrReservationsAcquired(database string) {
	p.reservationsAcquired.With(prom.Labels{"database": database}).Inc()
}

func (p *MonitoringService) IncrReservationConflicts(database string) {
	p.reservationConflicts.With(prom.Labels{"database": database}).Inc()
}

func (p *MonitoringService) IncrReservationsReleased(database string) {
	p.reservationsReleased.With(prom.Labels{"database": database}).Inc()
}

func (p *MonitoringService) RecordFetchChangesTime(database string, millis float64) {
	p.fetchChangesTime.With(prom.Labels{"database": database}).Observe(millis)
}

func (p *MonitoringService) RecordHandleBatchTime(database string, millis float64) {
	p.handleBatchTime.With(prom.Labels{"database": database}).Observe(millis)
}
