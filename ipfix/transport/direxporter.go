// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"
	"gopkg.in/tomb.v2"

	"ipfixgen/common/reporter"
	"ipfixgen/ipfix/session"
	"ipfixgen/ipfix/template"
)

// minFilesWaitTime is the smallest wait between two scans.
const minFilesWaitTime = 10 * time.Millisecond

// DirConfiguration describes how a directory is exported.
type DirConfiguration struct {
	// Dir is the directory to scan.
	Dir string `validate:"required"`
	// DirScansNum is the number of scans. 0 means no limit.
	DirScansNum int `validate:"min=0"`
	// FilesWaitTime is the time to wait between two scans.
	FilesWaitTime time.Duration `validate:"min=0"`
	// FilesWaitTimeSpeedup divides the wait time after each empty
	// scan. Values up to 1 disable this behavior.
	FilesWaitTimeSpeedup float64 `validate:"min=0"`
	// PacketsWaitTime is the time to wait between two datagrams when
	// a file is pushed over UDP.
	PacketsWaitTime time.Duration `validate:"min=0"`
	// Device prefixes the name of the session records when not
	// empty.
	Device string
}

// DefaultDirConfiguration is the default configuration for a directory
// export.
func DefaultDirConfiguration() DirConfiguration {
	return DirConfiguration{
		FilesWaitTime: 60 * time.Second,
	}
}

// DirExporter pushes the files found in a directory through a
// transport. Each file is exported once.
type DirExporter struct {
	r         *reporter.Reporter
	d         Dependencies
	t         tomb.Tomb
	config    DirConfiguration
	transport Transport
	tracker   *session.Tracker
	exported  map[string]bool

	metrics struct {
		scans reporter.Counter
		files *reporter.CounterVec
	}
}

// NewDirExporter creates a new directory exporter.
func NewDirExporter(r *reporter.Reporter, config DirConfiguration, transport Transport, tracker *session.Tracker, dependencies Dependencies) (*DirExporter, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	if transport.Type() == KindFile {
		return nil, errors.New("cannot push files to a file")
	}
	info, err := os.Stat(config.Dir)
	if err != nil {
		return nil, fmt.Errorf("cannot export directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%q is not a directory", config.Dir)
	}
	e := DirExporter{
		r:         r,
		d:         dependencies,
		config:    config,
		transport: transport,
		tracker:   tracker,
		exported:  map[string]bool{},
	}
	e.metrics.scans = r.Counter(
		reporter.CounterOpts{
			Name: "dir_scans_total",
			Help: "Number of directory scans.",
		},
	)
	e.metrics.files = r.CounterVec(
		reporter.CounterOpts{
			Name: "dir_files_total",
			Help: "Number of files pushed from a directory.",
		},
		[]string{"status"},
	)
	return &e, nil
}

// Start starts scanning the directory.
func (e *DirExporter) Start() error {
	e.r.Info().Str("dir", e.config.Dir).Msg("starting directory export")
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("cannot setup watcher: %w", err)
	}
	if err := watcher.Add(e.config.Dir); err != nil {
		watcher.Close()
		return fmt.Errorf("cannot watch %q: %w", e.config.Dir, err)
	}
	e.t.Go(func() error {
		defer watcher.Close()
		return e.run(watcher)
	})
	return nil
}

// Stop stops scanning. The transport is closed.
func (e *DirExporter) Stop() error {
	e.t.Kill(nil)
	err := e.t.Wait()
	if cerr := e.transport.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the transport of an exporter which was never started.
func (e *DirExporter) Close() error {
	return e.transport.Close()
}

// Done is closed when all the scans have been done or when the
// exporter is stopped.
func (e *DirExporter) Done() <-chan struct{} {
	return e.t.Dead()
}

// Type returns the kind of transport used to push files.
func (e *DirExporter) Type() Kind {
	return e.transport.Type()
}

// Tracker returns the session tracker of the exporter.
func (e *DirExporter) Tracker() *session.Tracker {
	return e.tracker
}

func (e *DirExporter) run(watcher *fsnotify.Watcher) error {
	ctx := e.t.Context(context.Background())
	errLogger := e.r.Sample(reporter.BurstSampler(time.Minute, 10))
	wait := e.config.FilesWaitTime
	for scan := 1; ; scan++ {
		found, err := e.scan(ctx)
		e.metrics.scans.Inc()
		if err != nil {
			errLogger.Err(err).Str("dir", e.config.Dir).Msg("cannot scan directory")
		}
		if e.config.DirScansNum > 0 && scan >= e.config.DirScansNum {
			e.r.Info().Int("scans", scan).Msg("directory export done")
			return nil
		}
		wait = e.nextWait(wait, found)

		timer := e.d.Clock.Timer(wait)
	waiting:
		for {
			select {
			case <-e.t.Dying():
				timer.Stop()
				return nil
			case <-timer.C:
				break waiting
			case err, ok := <-watcher.Errors:
				if !ok {
					timer.Stop()
					return errors.New("file watcher died")
				}
				errLogger.Err(err).Msg("error from watcher")
			case event, ok := <-watcher.Events:
				if !ok {
					timer.Stop()
					return errors.New("file watcher died")
				}
				if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
					// New content, scan again
					timer.Stop()
					break waiting
				}
			}
		}
	}
}

// nextWait returns the time to wait before the next scan. After an
// empty scan, the wait is shortened by the speedup factor.
func (e *DirExporter) nextWait(wait time.Duration, found int) time.Duration {
	switch {
	case found > 0:
		return e.config.FilesWaitTime
	case e.config.FilesWaitTimeSpeedup > 1:
		return max(time.Duration(float64(wait)/e.config.FilesWaitTimeSpeedup), min(wait, minFilesWaitTime))
	}
	return wait
}

// scan exports the files not exported yet. It returns the number of
// files exported.
func (e *DirExporter) scan(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(e.config.Dir)
	if err != nil {
		return 0, err
	}
	names := []string{}
	for _, entry := range entries {
		if !entry.Type().IsRegular() || e.exported[entry.Name()] {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)
	for _, name := range names {
		if ctx.Err() != nil {
			return 0, nil
		}
		e.exported[name] = true
		record := e.export(ctx, name)
		if e.config.Device != "" {
			record.Name = e.config.Device + "/" + record.Name
		}
		e.tracker.Add(record)
		e.metrics.files.WithLabelValues(string(record.Status)).Inc()
	}
	return len(names), nil
}

// export pushes one file and returns the session record.
func (e *DirExporter) export(ctx context.Context, name string) session.Record {
	l := e.r.With().Str("file", name).Logger()
	payload, err := os.ReadFile(filepath.Join(e.config.Dir, name))
	if err != nil {
		l.Err(err).Msg("cannot read file")
		return session.Record{
			Name:            name,
			Time:            e.d.Clock.Now(),
			Status:          session.StatusFailed,
			TransportStatus: err.Error(),
		}
	}
	messages, err := splitMessages(payload)
	if err != nil {
		l.Warn().Err(err).Msg("cannot parse file")
	}

	if e.transport.Type() != KindUDP {
		packet := Packet{Name: name, Payload: payload}
		for _, m := range messages {
			packet.TemplateRecords += m.TemplateRecords
			packet.DataRecords += m.DataRecords
		}
		record, err := e.transport.Send(ctx, packet)
		if err != nil {
			l.Err(err).Msg("cannot push file")
		}
		return record
	}

	// Over UDP, each message is a datagram.
	record := session.Record{
		Name:   name,
		Time:   e.d.Clock.Now(),
		Status: session.StatusSuccess,
	}
	if err != nil {
		record.Status = session.StatusFailed
		record.TransportStatus = err.Error()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if e.config.PacketsWaitTime > 0 {
		limiter = rate.NewLimiter(rate.Every(e.config.PacketsWaitTime), 1)
	}
	offset := 0
	for _, m := range messages {
		if err := limiter.Wait(ctx); err != nil {
			record.Status = session.StatusFailed
			record.TransportStatus = err.Error()
			break
		}
		packet := Packet{
			Name:            name,
			Payload:         payload[offset : offset+m.Length],
			TemplateRecords: m.TemplateRecords,
			DataRecords:     m.DataRecords,
		}
		offset += m.Length
		sent, err := e.transport.Send(ctx, packet)
		if err != nil {
			l.Err(err).Msg("cannot push message")
			record.Status = session.StatusFailed
			record.TransportStatus = sent.TransportStatus
			break
		}
		record.BytesUploaded += sent.BytesUploaded
		record.TempRecordsUploaded += sent.TempRecordsUploaded
		record.DataRecordsUploaded += sent.DataRecordsUploaded
	}
	if record.Status == session.StatusSuccess {
		record.TransportStatus = "sent"
	}
	return record
}

// splitMessages returns the messages found in the payload. On error,
// the messages parsed so far are returned.
func splitMessages(payload []byte) ([]template.MessageInfo, error) {
	parser := template.NewParser()
	messages := []template.MessageInfo{}
	for len(payload) > 0 {
		info, err := parser.Next(payload)
		if err != nil {
			return messages, err
		}
		messages = append(messages, info)
		payload = payload[info.Length:]
	}
	return messages, nil
}
