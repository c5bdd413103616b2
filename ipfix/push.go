// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import (
	"errors"
	"fmt"
	"maps"

	"github.com/benbjohnson/clock"

	"ipfixgen/common/reporter"
	"ipfixgen/ipfix/session"
	"ipfixgen/ipfix/transport"
)

// PushJob pushes the files of a directory to a collector. Each
// simulated device has its own directory exporter and its own
// transport. All of them share one session tracker.
type PushJob struct {
	exporters []*transport.DirExporter
	tracker   *session.Tracker
	kind      transport.Kind
	done      chan struct{}
}

// NewPushJob creates a push job. It is not started.
func NewPushJob(r *reporter.Reporter, config PushConfiguration, clk clock.Clock) (*PushJob, error) {
	sites := max(config.HTTPSitesPerTenant, 1)
	devices := max(config.HTTPDevicesPerSite, 1)
	job := PushJob{
		tracker: session.NewTracker(),
		done:    make(chan struct{}),
	}
	for site := range sites {
		for device := range devices {
			trConfig := config.transportConfiguration()
			dirConfig := config.dirConfiguration()
			if sites*devices > 1 {
				trConfig.Headers = maps.Clone(config.Headers)
				if trConfig.Headers == nil {
					trConfig.Headers = map[string]string{}
				}
				trConfig.Headers["X-Ipfix-Site"] = fmt.Sprintf("site%d", site+1)
				trConfig.Headers["X-Ipfix-Device"] = fmt.Sprintf("device%d", device+1)
				dirConfig.Device = fmt.Sprintf("site%d/device%d", site+1, device+1)
			}
			exporter, err := newDirExporter(r, trConfig, dirConfig, job.tracker, clk)
			if err != nil {
				job.Close()
				return nil, err
			}
			job.kind = exporter.Type()
			job.exporters = append(job.exporters, exporter)
		}
	}
	return &job, nil
}

func newDirExporter(r *reporter.Reporter, trConfig transport.Configuration, dirConfig transport.DirConfiguration, tracker *session.Tracker, clk clock.Clock) (*transport.DirExporter, error) {
	tr, err := transport.New(r, trConfig, transport.Dependencies{Clock: clk})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	exporter, err := transport.NewDirExporter(r, dirConfig, tr, tracker,
		transport.Dependencies{Clock: clk})
	if err != nil {
		tr.Close()
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return exporter, nil
}

// Start starts all the exporters. On error, the ones already started
// are stopped.
func (j *PushJob) Start() error {
	for i, exporter := range j.exporters {
		if err := exporter.Start(); err != nil {
			for _, started := range j.exporters[:i] {
				started.Stop()
			}
			for _, other := range j.exporters[i:] {
				other.Close()
			}
			return err
		}
	}
	go func() {
		for _, exporter := range j.exporters {
			<-exporter.Done()
		}
		close(j.done)
	}()
	return nil
}

// Stop stops all the exporters.
func (j *PushJob) Stop() error {
	errs := []error{}
	for _, exporter := range j.exporters {
		errs = append(errs, exporter.Stop())
	}
	return errors.Join(errs...)
}

// Close releases the transports of a job which was never started.
func (j *PushJob) Close() error {
	errs := []error{}
	for _, exporter := range j.exporters {
		errs = append(errs, exporter.Close())
	}
	return errors.Join(errs...)
}

// Done is closed when all the exporters are done.
func (j *PushJob) Done() <-chan struct{} {
	return j.done
}

// Type returns the kind of transport used to push files.
func (j *PushJob) Type() transport.Kind {
	return j.kind
}

// Tracker returns the session tracker shared by all the devices.
func (j *PushJob) Tracker() *session.Tracker {
	return j.tracker
}

// Devices returns the number of simulated devices.
func (j *PushJob) Devices() int {
	return len(j.exporters)
}
