// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"ipfixgen/ipfix/session"
)

type fileTransport struct {
	d       Dependencies
	path    string
	maxSize int64

	mu   sync.Mutex
	file *os.File
	size int64
}

func newFile(path string, config Configuration, dependencies Dependencies) (*fileTransport, error) {
	t := fileTransport{
		d:       dependencies,
		path:    path,
		maxSize: config.FileMaxSize,
	}
	// The file is only created on the first write.
	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot write to %q: %w", path, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cannot write to %q: %q is not a directory", path, filepath.Dir(path))
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("cannot write to %q: is a directory", path)
	}
	return &t, nil
}

func (t *fileTransport) open() error {
	file, err := os.OpenFile(t.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("cannot open %q: %w", t.path, err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("cannot stat %q: %w", t.path, err)
	}
	t.file = file
	t.size = info.Size()
	return nil
}

// rotate moves the current file away and opens a new one.
func (t *fileTransport) rotate() error {
	if err := t.file.Close(); err != nil {
		return err
	}
	rotated := fmt.Sprintf("%s.%d", t.path, t.d.Clock.Now().UnixNano())
	if err := os.Rename(t.path, rotated); err != nil {
		return fmt.Errorf("cannot rotate %q: %w", t.path, err)
	}
	return t.open()
}

func (t *fileTransport) Type() Kind {
	return KindFile
}

// Send appends the payload to the file. The file is rotated first if
// the payload would make it exceed the maximum size.
func (t *fileTransport) Send(_ context.Context, packet Packet) (session.Record, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	record := session.Record{
		Name: packet.Name,
		Time: t.d.Clock.Now(),
	}
	fail := func(err error) (session.Record, error) {
		record.Status = session.StatusFailed
		record.TransportStatus = err.Error()
		return record, fmt.Errorf("cannot write %q: %w: %w", packet.Name, ErrTransport, err)
	}
	if t.file == nil {
		if err := t.open(); err != nil {
			return fail(err)
		}
	}
	if t.maxSize > 0 && t.size > 0 && t.size+int64(len(packet.Payload)) > t.maxSize {
		if err := t.rotate(); err != nil {
			t.file = nil
			return fail(err)
		}
	}
	n, err := t.file.Write(packet.Payload)
	t.size += int64(n)
	if err != nil {
		return fail(err)
	}
	record.Status = session.StatusSuccess
	record.TransportStatus = "written"
	record.BytesUploaded = n
	record.TempRecordsUploaded = packet.TemplateRecords
	record.DataRecordsUploaded = packet.DataRecords
	return record, nil
}

func (t *fileTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}
