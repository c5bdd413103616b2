// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package domain implements an observation domain: a set of generators
// sharing an exporter. At each scheduling pass, the domain asks each
// generator how many template and data packets are due, builds the
// packets and hands them to the exporter.
package domain

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/tomb.v2"

	"ipfixgen/common/helpers"
	"ipfixgen/common/reporter"
	"ipfixgen/ipfix/generator"
	"ipfixgen/ipfix/session"
	"ipfixgen/ipfix/template"
	"ipfixgen/ipfix/transport"
)

// Options are the parameters of a domain which are not part of its
// definition.
type Options struct {
	// SchedulingInterval is the interval between two scheduling
	// passes.
	SchedulingInterval time.Duration
	// QueueSize is the number of packets waiting to be sent.
	QueueSize int
	// Seed initializes random engines and the random domain ID.
	Seed int64
}

// DefaultOptions returns the default options for a domain.
func DefaultOptions() Options {
	return Options{
		SchedulingInterval: 10 * time.Millisecond,
		QueueSize:          1000,
	}
}

// Domain is an observation domain exporting the records of its
// generators.
type Domain struct {
	r       *reporter.Reporter
	d       *Dependencies
	t       tomb.Tomb
	name    string
	config  Configuration
	options Options

	generators []*generator.Generator
	byName     map[string]*generator.Generator
	dispatcher *transport.Dispatcher
	overhead   int
	enabled    atomic.Bool
	errLogger  reporter.Logger

	// Protected by passLock
	passLock sync.Mutex
	header   headerState
	last     time.Time

	metrics struct {
		packets        *reporter.CounterVec
		records        *reporter.CounterVec
		encodingErrors *reporter.CounterVec
	}
}

// Dependencies define the dependencies of a domain.
type Dependencies struct {
	Clock clock.Clock
}

// ExporterInfo describes the exporter of a domain and its last
// sessions.
type ExporterInfo struct {
	Type  transport.Kind   `json:"exporter_type"`
	Files []session.Record `json:"files"`
}

// New creates a new domain. Either every generator is created or an
// error is returned. The error wraps template.ErrValidation or
// template.ErrUnsupportedFieldKind for invalid definitions and
// transport.ErrTransport when the exporter cannot be created.
func New(r *reporter.Reporter, name string, config Configuration, options Options, dependencies Dependencies) (*Domain, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	if err := helpers.Validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration for %q: %w: %w", name, template.ErrValidation, err)
	}
	if options.SchedulingInterval <= 0 {
		options.SchedulingInterval = DefaultOptions().SchedulingInterval
	}
	if options.QueueSize <= 0 {
		options.QueueSize = DefaultOptions().QueueSize
	}
	if options.Seed == 0 {
		options.Seed = dependencies.Clock.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(options.Seed))
	domainID := config.DomainID
	for domainID == 0 {
		domainID = rng.Uint32()
	}

	version := config.NetflowVersion
	overhead := packetOverhead(config)
	dom := Domain{
		r:       r,
		d:       &dependencies,
		name:    name,
		config:  config,
		options: options,
		byName:  map[string]*generator.Generator{},
		header: headerState{
			version:  version,
			domainID: domainID,
		},
		overhead: overhead,
	}
	generators, err := newGenerators(name, config, overhead, options.Seed)
	if err != nil {
		return nil, err
	}
	for _, g := range generators {
		dom.byName[g.Name()] = g
	}
	dom.generators = generators

	exporter, err := transport.New(r, config.transportConfiguration(), transport.Dependencies{
		Clock: dependencies.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("client %q: %w: %w", name, transport.ErrTransport, err)
	}
	dom.dispatcher = transport.NewDispatcher(r, name, exporter, session.NewTracker(), options.QueueSize)
	dom.enabled.Store(true)
	dom.errLogger = r.Sample(reporter.BurstSampler(time.Minute, 10))

	dom.metrics.packets = r.CounterVec(
		reporter.CounterOpts{
			Name: "packets_total",
			Help: "Number of packets built.",
		},
		[]string{"client", "kind"},
	)
	dom.metrics.records = r.CounterVec(
		reporter.CounterOpts{
			Name: "records_total",
			Help: "Number of records built.",
		},
		[]string{"client", "kind"},
	)
	dom.metrics.encodingErrors = r.CounterVec(
		reporter.CounterOpts{
			Name: "encoding_errors_total",
			Help: "Number of records which could not be encoded.",
		},
		[]string{"client", "generator"},
	)
	return &dom, nil
}

// packetOverhead is the number of bytes in a packet before the first
// set.
func packetOverhead(config Configuration) int {
	ipHeader := ipv4HeaderLength
	if transport.IsIPv6(config.Dst) {
		ipHeader = ipv6HeaderLength
	}
	return ipHeader + udpHeaderLength + config.NetflowVersion.HeaderLength()
}

func newGenerators(name string, config Configuration, overhead int, seed int64) ([]*generator.Generator, error) {
	generators := []*generator.Generator{}
	names := map[string]bool{}
	templateIDs := map[uint16]string{}
	for i, gc := range config.Generators {
		if names[gc.Name] {
			return nil, fmt.Errorf("client %q: duplicate generator %q: %w", name, gc.Name, template.ErrValidation)
		}
		if other, ok := templateIDs[gc.TemplateID]; ok {
			return nil, fmt.Errorf("client %q: generators %q and %q share template ID %d: %w",
				name, other, gc.Name, gc.TemplateID, template.ErrValidation)
		}
		g, err := generator.New(gc, generator.Options{
			Version:        config.NetflowVersion,
			MTU:            config.MTU,
			PacketOverhead: overhead + template.SetHeaderLength,
			Seed:           seed + int64(i)*1000,
		})
		if err != nil {
			return nil, fmt.Errorf("client %q: %w", name, err)
		}
		names[gc.Name] = true
		templateIDs[gc.TemplateID] = gc.Name
		generators = append(generators, g)
	}
	return generators, nil
}

// Check validates a configuration without creating an exporter. It
// returns the state the generators would have.
func Check(name string, config Configuration) ([]generator.Info, error) {
	if err := helpers.Validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration for %q: %w: %w", name, template.ErrValidation, err)
	}
	generators, err := newGenerators(name, config, packetOverhead(config), 1)
	if err != nil {
		return nil, err
	}
	infos := make([]generator.Info, 0, len(generators))
	for _, g := range generators {
		infos = append(infos, g.Info())
	}
	return infos, nil
}

// Start starts the exporter and the scheduling loop.
func (dom *Domain) Start() error {
	dom.r.Info().
		Str("client", dom.name).
		Uint32("domain", dom.header.domainID).
		Str("version", dom.header.version.String()).
		Msg("starting domain")
	if err := dom.dispatcher.Start(); err != nil {
		return fmt.Errorf("cannot start exporter for %q: %w", dom.name, err)
	}
	now := dom.d.Clock.Now()
	dom.passLock.Lock()
	dom.header.start = now
	dom.last = now
	dom.passLock.Unlock()

	ticker := dom.d.Clock.Ticker(dom.options.SchedulingInterval)
	dom.t.Go(func() error {
		defer ticker.Stop()
		for {
			select {
			case <-dom.t.Dying():
				return nil
			case now := <-ticker.C:
				dom.Pass(now)
			}
		}
	})
	return nil
}

// Stop stops scheduling. Queued packets are sent before returning.
func (dom *Domain) Stop() error {
	defer dom.r.Info().Str("client", dom.name).Msg("domain stopped")
	dom.t.Kill(nil)
	if err := dom.t.Wait(); err != nil {
		return err
	}
	return dom.dispatcher.Stop()
}

// Close releases the exporter of a domain which was never started.
func (dom *Domain) Close() error {
	return dom.dispatcher.Close()
}

// emitter encodes the records of a generator. An encoding error only
// drops the records of the failing generator.
type emitter interface {
	Name() string
	TemplateSetID() uint16
	EmitTemplate() ([]byte, error)
	EmitDataSet() ([]byte, int, error)
}

// Pass runs one scheduling pass: generators are walked in order, due
// template records are packed together and due data records are sent
// in one packet per generator.
func (dom *Domain) Pass(now time.Time) {
	dom.passLock.Lock()
	defer dom.passLock.Unlock()
	dt := now.Sub(dom.last)
	dom.last = now
	if !dom.enabled.Load() {
		return
	}

	templates := make([]int, len(dom.generators))
	data := make([]int, len(dom.generators))
	rounds := 0
	for i, g := range dom.generators {
		templates[i], data[i] = g.Due(dt)
		rounds = max(rounds, templates[i])
	}
	// A generator with several template packets due appears in as
	// many rounds.
	for round := range rounds {
		selected := []emitter{}
		for i, g := range dom.generators {
			if templates[i] > round {
				selected = append(selected, g)
			}
		}
		dom.sendTemplates(now, selected)
	}
	for i, g := range dom.generators {
		dom.sendData(now, g, data[i])
	}
}

// sendTemplates packs the template records of the provided generators
// in as few packets as the MTU allows.
func (dom *Domain) sendTemplates(now time.Time, generators []emitter) {
	builder := packetBuilder{version: dom.header.version}
	for _, g := range generators {
		record, err := g.EmitTemplate()
		if err != nil {
			dom.metrics.encodingErrors.WithLabelValues(dom.name, g.Name()).Inc()
			dom.errLogger.Err(err).Str("client", dom.name).Str("generator", g.Name()).
				Msg("cannot encode template record")
			continue
		}
		setLength := template.SetHeaderLength + len(record)
		if !builder.empty() && dom.overhead+builder.body.Len()+setLength > dom.config.MTU {
			dom.enqueue(now, "templates", &builder)
		}
		builder.addSet(g.TemplateSetID(), record, 1, 0)
	}
	if !builder.empty() {
		dom.enqueue(now, "templates", &builder)
	}
}

// sendData sends count data packets for the provided generator.
func (dom *Domain) sendData(now time.Time, g emitter, count int) {
	builder := packetBuilder{version: dom.header.version}
	for range count {
		set, records, err := g.EmitDataSet()
		if err != nil {
			dom.metrics.encodingErrors.WithLabelValues(dom.name, g.Name()).Inc()
			dom.errLogger.Err(err).Str("client", dom.name).Str("generator", g.Name()).
				Msg("cannot encode data records")
			return
		}
		builder.body.Write(set)
		builder.dataRecords = records
		dom.enqueue(now, g.Name(), &builder)
	}
}

// enqueue completes the message and hands it to the dispatcher.
func (dom *Domain) enqueue(now time.Time, name string, builder *packetBuilder) {
	kind := "data"
	records := builder.dataRecords
	if builder.templateRecords > 0 {
		kind = "template"
		records = builder.templateRecords
	}
	packet := transport.Packet{
		Name:            name,
		TemplateRecords: builder.templateRecords,
		DataRecords:     builder.dataRecords,
		Payload:         dom.header.finish(builder, now),
	}
	builder.reset()
	dom.metrics.packets.WithLabelValues(dom.name, kind).Inc()
	dom.metrics.records.WithLabelValues(dom.name, kind).Add(float64(records))
	dom.dispatcher.Enqueue(packet)
}

// Name returns the name of the domain.
func (dom *Domain) Name() string {
	return dom.name
}

// DomainID returns the observation domain ID.
func (dom *Domain) DomainID() uint32 {
	return dom.header.domainID
}

// Generator returns the generator with the provided name.
func (dom *Domain) Generator(name string) (*generator.Generator, bool) {
	g, ok := dom.byName[name]
	return g, ok
}

// Generators returns the generators, in definition order.
func (dom *Domain) Generators() []*generator.Generator {
	return dom.generators
}

// GeneratorsInfo returns a snapshot of each generator.
func (dom *Domain) GeneratorsInfo() map[string]generator.Info {
	info := make(map[string]generator.Info, len(dom.generators))
	for _, g := range dom.generators {
		info[g.Name()] = g.Info()
	}
	return info
}

// Counters are the packet and record counters of a domain, summed
// over its generators.
type Counters struct {
	TemplatePacketsSent uint64 `json:"template_packets_sent"`
	DataPacketsSent     uint64 `json:"data_packets_sent"`
	DataRecordsSent     uint64 `json:"data_records_sent"`
	EncodingErrors      uint64 `json:"encoding_errors"`
}

// Counters returns the counters of the domain.
func (dom *Domain) Counters() Counters {
	var counters Counters
	for _, g := range dom.generators {
		info := g.Info()
		counters.TemplatePacketsSent += info.TemplatePacketsSent
		counters.DataPacketsSent += info.DataPacketsSent
		counters.DataRecordsSent += info.DataRecordsSent
		counters.EncodingErrors += info.EncodingErrors
	}
	return counters
}

// ClearCounters resets the counters of all the generators.
func (dom *Domain) ClearCounters() {
	for _, g := range dom.generators {
		g.ClearCounters()
	}
}

// EnableAll enables or disables all the generators.
func (dom *Domain) EnableAll(enable bool) {
	for _, g := range dom.generators {
		g.Enable(enable)
	}
}

// SetEnabled enables or disables the exporter. When disabled, no
// packet is built and generators do not accumulate credit.
func (dom *Domain) SetEnabled(enable bool) {
	dom.enabled.Store(enable)
}

// Enabled tells if the exporter is enabled.
func (dom *Domain) Enabled() bool {
	return dom.enabled.Load()
}

// ExporterInfo returns the kind of exporter and the last sessions.
func (dom *Domain) ExporterInfo() ExporterInfo {
	return ExporterInfo{
		Type:  dom.dispatcher.Type(),
		Files: dom.dispatcher.Tracker().Records(),
	}
}
