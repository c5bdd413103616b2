// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"context"
	"time"

	"gopkg.in/tomb.v2"

	"ipfixgen/common/reporter"
	"ipfixgen/ipfix/session"
)

// Dispatcher sends packets asynchronously through a transport. Packets
// are queued and sent by a single worker, in order. Each outcome is
// added to the tracker.
type Dispatcher struct {
	r         *reporter.Reporter
	t         tomb.Tomb
	name      string
	transport Transport
	tracker   *session.Tracker
	queue     chan Packet

	metrics struct {
		packets *reporter.CounterVec
		bytes   *reporter.CounterVec
		dropped *reporter.CounterVec
	}
}

// NewDispatcher creates a new dispatcher. name is used to label
// metrics and logs.
func NewDispatcher(r *reporter.Reporter, name string, transport Transport, tracker *session.Tracker, queueSize int) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	d := Dispatcher{
		r:         r,
		name:      name,
		transport: transport,
		tracker:   tracker,
		queue:     make(chan Packet, queueSize),
	}
	d.metrics.packets = r.CounterVec(
		reporter.CounterOpts{
			Name: "packets_total",
			Help: "Number of packets handed to the transport.",
		},
		[]string{"client", "transport", "status"},
	)
	d.metrics.bytes = r.CounterVec(
		reporter.CounterOpts{
			Name: "bytes_total",
			Help: "Number of bytes successfully sent.",
		},
		[]string{"client", "transport"},
	)
	d.metrics.dropped = r.CounterVec(
		reporter.CounterOpts{
			Name: "dropped_packets_total",
			Help: "Number of packets dropped because the queue was full.",
		},
		[]string{"client"},
	)
	return &d
}

// Start starts the worker.
func (d *Dispatcher) Start() error {
	d.t.Go(d.run)
	return nil
}

// Stop stops the worker once the queued packets are sent. The
// transport is closed.
func (d *Dispatcher) Stop() error {
	d.t.Kill(nil)
	err := d.t.Wait()
	if cerr := d.transport.Close(); err == nil {
		err = cerr
	}
	return err
}

// Close closes the transport of a dispatcher which was never
// started.
func (d *Dispatcher) Close() error {
	return d.transport.Close()
}

// Enqueue queues a packet. It never blocks: when the queue is full,
// the packet is dropped and false is returned.
func (d *Dispatcher) Enqueue(packet Packet) bool {
	select {
	case d.queue <- packet:
		return true
	default:
		d.metrics.dropped.WithLabelValues(d.name).Inc()
		return false
	}
}

// Type returns the kind of the underlying transport.
func (d *Dispatcher) Type() Kind {
	return d.transport.Type()
}

// Tracker returns the session tracker of the dispatcher.
func (d *Dispatcher) Tracker() *session.Tracker {
	return d.tracker
}

func (d *Dispatcher) run() error {
	errLogger := d.r.Sample(reporter.BurstSampler(time.Minute, 10))
	// In-flight sends are not interrupted when stopping.
	ctx := context.Background()
	for {
		select {
		case <-d.t.Dying():
			for {
				select {
				case packet := <-d.queue:
					d.send(ctx, packet, errLogger)
				default:
					return nil
				}
			}
		case packet := <-d.queue:
			d.send(ctx, packet, errLogger)
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, packet Packet, errLogger reporter.Logger) {
	kind := string(d.transport.Type())
	record, err := d.transport.Send(ctx, packet)
	d.tracker.Add(record)
	if err != nil {
		d.metrics.packets.WithLabelValues(d.name, kind, "failed").Inc()
		errLogger.Err(err).Str("client", d.name).Str("packet", packet.Name).Msg("cannot send packet")
		return
	}
	d.metrics.packets.WithLabelValues(d.name, kind, "success").Inc()
	d.metrics.bytes.WithLabelValues(d.name, kind).Add(float64(record.BytesUploaded))
}
