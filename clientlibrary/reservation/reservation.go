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

// Package reservation claims exclusive ownership of string ids across
// processes, using nothing but the store's create-if-absent write.
//
// A reservation is a document whose id is the claimed id (plus an optional
// namespace prefix). Whoever creates the document first owns the id; every
// later attempt fails the create with a conflict. While a claim is pending
// the document carries a "lease" timestamp; committing the claim clears the
// lease, leaving a permanent marker. There are no lease expirations and no
// background cleanup, a holder that dies mid-claim leaves a lease for
// operators to inspect and clear.
package reservation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vmware/vmware-go-ccl/clientlibrary/config"
	"github.com/vmware/vmware-go-ccl/clientlibrary/iterview"
	"github.com/vmware/vmware-go-ccl/clientlibrary/metrics"
	"github.com/vmware/vmware-go-ccl/clientlibrary/store"
	"github.com/vmware/vmware-go-ccl/logger"
)

const (
	// LeaseField marks a reservation as pending. A committed reservation
	// has no lease.
	LeaseField = "lease"

	// reservedPageSize bounds memory while listing reservations.
	reservedPageSize = 100

	// highKey sorts after every reservation id in the store's key order.
	highKey = "\ufff0"
)

// AlreadyReservedError is returned when the id is held by another party.
type AlreadyReservedError struct {
	ID string
}

func (e *AlreadyReservedError) Error() string {
	return fmt.Sprintf("already reserved: %s", e.ID)
}

// Manager reserves ids in one database under one prefix.
type Manager struct {
	db           store.Database
	prefix       string
	databaseName string
	log          logger.Logger
	mService     metrics.MonitoringService
}

// NewManager creates a reservation manager using the configured prefix.
func NewManager(db store.Database, cclConfig *config.CouchClientLibConfiguration) *Manager {
	mService := cclConfig.MonitoringService
	if mService == nil {
		mService = metrics.NoopMonitoringService{}
	}
	return &Manager{
		db:           db,
		prefix:       cclConfig.ReservationPrefix,
		databaseName: cclConfig.DatabaseName,
		log:          cclConfig.Logger,
		mService:     mService,
	}
}

// Reserve claims id and returns the pending reservation document, carrying
// its lease timestamp and current revision. An id held by anyone, pending
// or committed, fails with *AlreadyReservedError.
func (m *Manager) Reserve(id string) (store.Document, error) {
	doc := store.Document{
		"_id":      m.prefix + id,
		LeaseField: time.Now().UTC().Format(time.RFC3339),
	}

	_, rev, err := m.db.Create(doc)
	if err != nil {
		var conflict *store.ConflictError
		if errors.As(err, &conflict) {
			m.mService.IncrReservationConflicts(m.databaseName)
			return nil, &AlreadyReservedError{ID: id}
		}
		return nil, err
	}

	doc["_rev"] = rev
	m.mService.IncrReservationsAcquired(m.databaseName)
	return doc, nil
}

// Release gives up id by deleting its reservation document, whether pending
// or committed. Releasing an unheld id fails with *store.NotFoundError.
func (m *Manager) Release(id string) error {
	doc, err := m.db.Get(m.prefix + id)
	if err != nil {
		return err
	}
	if err := m.db.Delete(doc); err != nil {
		return err
	}
	m.mService.IncrReservationsReleased(m.databaseName)
	return nil
}

// WithReservation claims id for the duration of fn. fn receives the pending
// reservation document and may add application fields to it. When fn
// returns nil the claim is committed: the lease is cleared and the document
// kept. When fn returns an error or panics the claim is rolled back by
// deleting the document, and the error or panic propagates. A rollback that
// itself fails is logged and suppressed so the original failure surfaces.
func (m *Manager) WithReservation(id string, fn func(doc store.Document) error) error {
	doc, err := m.Reserve(id)
	if err != nil {
		return err
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if delErr := m.db.Delete(doc); delErr != nil {
			m.log.Warnf("Failed to roll back reservation %s: %v", doc.ID(), delErr)
			return
		}
		m.mService.IncrReservationsReleased(m.databaseName)
	}()

	if err := fn(doc); err != nil {
		return err
	}

	delete(doc, LeaseField)
	rev, err := m.db.Update(doc)
	if err != nil {
		return err
	}
	doc["_rev"] = rev
	committed = true
	return nil
}

// WithReservationChange moves a claim from oldID to newID: it claims newID
// through WithReservation and, once that commits, releases oldID. Equal ids
// skip both steps and run fn with a nil document.
//
// The two steps are separate writes, not a transaction. newID is confirmed
// before oldID is touched, so a failed release leaves both ids held rather
// than neither; the release error propagates and the leftover oldID
// reservation must be released again or cleaned up by an operator.
func (m *Manager) WithReservationChange(newID, oldID string, fn func(doc store.Document) error) error {
	if newID == oldID {
		return fn(nil)
	}

	if err := m.WithReservation(newID, fn); err != nil {
		return err
	}
	return m.Release(oldID)
}

// ReservedOptions restrict a Reserved listing to an inclusive id range.
// Ids are given without the prefix; empty bounds mean the whole prefix.
type ReservedOptions struct {
	Start string
	End   string
}

// ReservedIterator walks held ids in key order.
type ReservedIterator struct {
	prefix string
	inner  *iterview.Iterator
}

// Next advances to the next held id; check Err when it returns false.
func (it *ReservedIterator) Next() bool {
	return it.inner.Next()
}

// ID returns the id Next advanced to, with the prefix stripped.
func (it *ReservedIterator) ID() string {
	return strings.TrimPrefix(it.inner.Row().ID, it.prefix)
}

func (it *ReservedIterator) Err() error {
	return it.inner.Err()
}

// Reserved lists held ids under the manager's prefix, pending and committed
// alike. The listing pages through the store lazily and is not a snapshot;
// ids claimed or released while iterating may or may not appear.
func (m *Manager) Reserved(opts ReservedOptions) (*ReservedIterator, error) {
	listOpts := store.ListOptions{
		StartKey: m.prefix + opts.Start,
		EndKey:   m.prefix + highKey,
	}
	if opts.End != "" {
		listOpts.EndKey = m.prefix + opts.End
	}

	inner, err := iterview.Iterate(m.db.List, listOpts, reservedPageSize, 0)
	if err != nil {
		return nil, err
	}
	return &ReservedIterator{prefix: m.prefix, inner: inner}, nil
}
