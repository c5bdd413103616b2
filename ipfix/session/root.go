// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package session keeps track of the recent export sessions of an
// exporter.
package session

import (
	"sync"
	"time"
)

// MaxRecords is the number of session records kept by a tracker.
const MaxRecords = 30

// Status is the outcome of an export session.
type Status string

const (
	// StatusSuccess means the payload was delivered.
	StatusSuccess Status = "success"
	// StatusFailed means the payload could not be delivered.
	StatusFailed Status = "failed"
)

// Record describes one export session: one packet sent over UDP or
// HTTP, one packet written to a file or one file pushed from a
// directory.
type Record struct {
	Name                string    `json:"name"`
	Time                time.Time `json:"time"`
	Status              Status    `json:"status"`
	TransportStatus     string    `json:"transport_status"`
	HTTPStatusCode      int       `json:"http_status_code"`
	HTTPResponseMsg     string    `json:"http_response_msg"`
	BytesUploaded       int       `json:"bytes_uploaded"`
	TempRecordsUploaded int       `json:"temp_records_uploaded"`
	DataRecordsUploaded int       `json:"data_records_uploaded"`
}

// Tracker keeps the last MaxRecords session records. It is safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	records [MaxRecords]Record
	next    int
	count   int
}

// NewTracker creates a new empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Add appends a record, evicting the oldest one when full.
func (t *Tracker) Add(record Record) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[t.next] = record
	t.next = (t.next + 1) % MaxRecords
	if t.count < MaxRecords {
		t.count++
	}
}

// Records returns a copy of the records, oldest first.
func (t *Tracker) Records() []Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	result := make([]Record, 0, t.count)
	start := (t.next - t.count + MaxRecords) % MaxRecords
	for i := range t.count {
		result = append(result, t.records[(start+i)%MaxRecords])
	}
	return result
}

// Len returns the number of records.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.count
}
