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

// Package interfaces holds the callback contracts applications implement to
// receive changes from the consumer.
package interfaces

import (
	"github.com/vmware/vmware-go-ccl/clientlibrary/store"
	"github.com/vmware/vmware-go-ccl/logger"
)

// ChangeHandler receives document changes in stream order. The consumer
// delivers at least once, so both callbacks must be idempotent: a batch that
// fails midway is redelivered in full after restart. Returning an error
// aborts the current batch before its checkpoint is written.
type ChangeHandler interface {
	// OnUpdate is called with the winning revision of a created or
	// updated document.
	OnUpdate(doc store.Document) error

	// OnDelete is called with the id of a deleted document. The document
	// body is gone by the time the change is read, so only the id is
	// available.
	OnDelete(docID string) error
}

// ChangeHandlerFuncs adapts plain functions to ChangeHandler. Nil members
// ignore the corresponding change type.
type ChangeHandlerFuncs struct {
	UpdateFn func(doc store.Document) error
	DeleteFn func(docID string) error
}

func (h ChangeHandlerFuncs) OnUpdate(doc store.Document) error {
	if h.UpdateFn == nil {
		return nil
	}
	return h.UpdateFn(doc)
}

func (h ChangeHandlerFuncs) OnDelete(docID string) error {
	if h.DeleteFn == nil {
		return nil
	}
	return h.DeleteFn(docID)
}

// LoggingChangeHandler logs every change at debug level. It is the default
// handler when an application configures none.
type LoggingChangeHandler struct {
	Log logger.Logger
}

func (h LoggingChangeHandler) OnUpdate(doc store.Document) error {
	h.Log.Debugf("Change: update %s rev %s", doc.ID(), doc.Rev())
	return nil
}

func (h LoggingChangeHandler) OnDelete(docID string) error {
	h.Log.Debugf("Change: delete %s", docID)
	return nil
}
