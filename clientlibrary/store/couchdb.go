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

package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vmware/vmware-go-ccl/clientlibrary/utils"
	"github.com/vmware/vmware-go-ccl/logger"
)

// CouchDatabase binds the Database interface to a CouchDB server over HTTP.
// It speaks to a single database of the server. Sequence tokens are passed
// through verbatim, so both the numeric tokens of CouchDB 1.x and the opaque
// string tokens of 2.x+ work.
type CouchDatabase struct {
	endpoint string
	name     string
	client   *http.Client
	log      logger.Logger
}

// NewCouchDatabase creates a binding for the named database on the server at
// endpoint, e.g. NewCouchDatabase("http://127.0.0.1:5984", "registry", log).
func NewCouchDatabase(endpoint, name string, log logger.Logger) *CouchDatabase {
	if log == nil {
		log = logger.GetDefaultLogger()
	}
	return &CouchDatabase{
		endpoint: endpoint,
		name:     name,
		// No client timeout: longpoll and continuous requests are held
		// open by the server on purpose.
		client: &http.Client{},
		log:    log,
	}
}

// WithHTTPClient is used to provide a custom HTTP client, e.g. one carrying
// TLS or proxy settings.
func (c *CouchDatabase) WithHTTPClient(client *http.Client) *CouchDatabase {
	c.client = client
	return c
}

func (c *CouchDatabase) docURL(id string) string {
	return fmt.Sprintf("%s/%s/%s", c.endpoint, url.PathEscape(c.name), url.PathEscape(id))
}

func (c *CouchDatabase) viewURL(view string, query url.Values) string {
	u := fmt.Sprintf("%s/%s/%s", c.endpoint, url.PathEscape(c.name), view)
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do performs one request and returns the response body for 2xx statuses.
// 404 and 409 map to the typed errors the rest of the library dispatches on.
func (c *CouchDatabase) do(method, rawURL, subject string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode < 300:
		return payload, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, &NotFoundError{ID: subject}
	case resp.StatusCode == http.StatusConflict:
		return nil, &ConflictError{ID: subject}
	default:
		reason := gjson.GetBytes(payload, "reason").String()
		return nil, fmt.Errorf("couchdb: %s %s: %s (%s)", method, rawURL, resp.Status, reason)
	}
}

func changesQuery(opts ChangesOptions) url.Values {
	query := url.Values{}
	if opts.Since != "" {
		query.Set("since", opts.Since)
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Heartbeat > 0 {
		query.Set("heartbeat", strconv.FormatInt(opts.Heartbeat.Milliseconds(), 10))
	}
	return query
}

func (c *CouchDatabase) Changes(opts ChangesOptions) (*ChangePage, error) {
	query := changesQuery(opts)
	if opts.Longpoll {
		query.Set("feed", "longpoll")
	}

	payload, err := c.do(http.MethodGet, c.viewURL("_changes", query), c.name, nil)
	if err != nil {
		return nil, err
	}

	page := &ChangePage{LastSeq: gjson.GetBytes(payload, "last_seq").String()}
	for _, result := range gjson.GetBytes(payload, "results").Array() {
		page.Results = append(page.Results, ChangeRow{
			ID:      result.Get("id").String(),
			Seq:     result.Get("seq").String(),
			Deleted: result.Get("deleted").Bool(),
		})
	}
	return page, nil
}

func (c *CouchDatabase) ChangesFeed(opts ChangesOptions) (ChangeFeed, error) {
	heartbeat := opts.Heartbeat
	if heartbeat == 0 {
		heartbeat = defaultFeedHeartbeat
		opts.Heartbeat = heartbeat
	}

	query := changesQuery(opts)
	query.Set("feed", "continuous")

	req, err := http.NewRequest(http.MethodGet, c.viewURL("_changes", query), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("couchdb: opening continuous feed: %s", resp.Status)
	}

	f := &couchFeed{
		body:      resp.Body,
		heartbeat: heartbeat,
		rows:      make(chan *ChangeRow, 64),
		beats:     make(chan struct{}, 1),
		done:      make(chan struct{}),
		closed:    make(chan struct{}),
	}
	go f.run()
	return f, nil
}

func (c *CouchDatabase) BulkGet(ids []string) ([]BulkRow, error) {
	query := url.Values{}
	query.Set("include_docs", "true")

	payload, err := c.do(http.MethodPost, c.viewURL("_all_docs", query), c.name,
		map[string]interface{}{"keys": ids})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Rows []struct {
			Key   string   `json:"key"`
			Doc   Document `json:"doc"`
			Value struct {
				Deleted bool `json:"deleted"`
			} `json:"value"`
		} `json:"rows"`
	}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, err
	}

	rows := make([]BulkRow, 0, len(decoded.Rows))
	for _, row := range decoded.Rows {
		doc := row.Doc
		if row.Value.Deleted {
			doc = nil
		}
		rows = append(rows, BulkRow{Key: row.Key, Doc: doc})
	}
	return rows, nil
}

func (c *CouchDatabase) Create(doc Document) (string, string, error) {
	id := doc.ID()
	if id == "" {
		id = utils.MustNewUUID()
	}

	payload, err := c.do(http.MethodPut, c.docURL(id), id, doc)
	if err != nil {
		return "", "", err
	}
	return id, gjson.GetBytes(payload, "rev").String(), nil
}

func (c *CouchDatabase) Get(id string) (Document, error) {
	payload, err := c.do(http.MethodGet, c.docURL(id), id, nil)
	if err != nil {
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func (c *CouchDatabase) Update(doc Document) (string, error) {
	id := doc.ID()
	payload, err := c.do(http.MethodPut, c.docURL(id), id, doc)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(payload, "rev").String(), nil
}

func (c *CouchDatabase) Delete(doc Document) error {
	id := doc.ID()
	query := url.Values{}
	query.Set("rev", doc.Rev())

	_, err := c.do(http.MethodDelete, c.docURL(id)+"?"+query.Encode(), id, nil)
	return err
}

func (c *CouchDatabase) List(opts ListOptions) ([]ViewRow, error) {
	query := url.Values{}
	if opts.StartKey != "" {
		query.Set("startkey", jsonKey(opts.StartKey))
	}
	if opts.StartKeyDocID != "" {
		query.Set("startkey_docid", opts.StartKeyDocID)
	}
	if opts.EndKey != "" {
		query.Set("endkey", jsonKey(opts.EndKey))
	}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}

	payload, err := c.do(http.MethodGet, c.viewURL("_all_docs", query), c.name, nil)
	if err != nil {
		return nil, err
	}

	var rows []ViewRow
	for _, row := range gjson.GetBytes(payload, "rows").Array() {
		rows = append(rows, ViewRow{
			ID:    row.Get("id").String(),
			Key:   row.Get("key").String(),
			Value: row.Get("value").Value(),
		})
	}
	return rows, nil
}

// Keys in _all_docs range parameters are JSON values.
func jsonKey(key string) string {
	encoded, _ := json.Marshal(key)
	return string(encoded)
}

// couchFeed reads a continuous _changes response line by line. CouchDB
// emits a bare newline every heartbeat interval while the feed is idle;
// rows and heartbeats both count as liveness.
type couchFeed struct {
	body      io.ReadCloser
	heartbeat time.Duration

	rows  chan *ChangeRow
	beats chan struct{}
	done  chan struct{}

	err       error
	closed    chan struct{}
	closeOnce sync.Once
}

func (f *couchFeed) run() {
	defer close(f.done)

	scanner := bufio.NewScanner(f.body)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			// heartbeat
			select {
			case f.beats <- struct{}{}:
			default:
			}
			continue
		}

		parsed := gjson.ParseBytes(line)
		if parsed.Get("last_seq").Exists() {
			return
		}
		id := parsed.Get("id")
		if !id.Exists() {
			continue
		}

		row := &ChangeRow{
			ID:      id.String(),
			Seq:     parsed.Get("seq").String(),
			Deleted: parsed.Get("deleted").Bool(),
		}
		select {
		case f.rows <- row:
		case <-f.closed:
			return
		}
	}
	f.err = scanner.Err()
}

func (f *couchFeed) Next() (*ChangeRow, error) {
	// Allow one missed heartbeat before declaring the connection dead.
	window := 2 * f.heartbeat
	timer := time.NewTimer(window)
	defer timer.Stop()

	for {
		select {
		case row := <-f.rows:
			return row, nil
		case <-f.beats:
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(window)
		case <-f.done:
			// Drain rows buffered ahead of the disconnect.
			select {
			case row := <-f.rows:
				return row, nil
			default:
			}
			if f.err != nil {
				return nil, f.err
			}
			return nil, io.EOF
		case <-timer.C:
			return nil, &FeedTimeoutError{Heartbeat: f.heartbeat}
		}
	}
}

func (f *couchFeed) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		f.body.Close()
	})
	return nil
}
