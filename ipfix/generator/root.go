// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package generator implements record generators. A generator owns one
// template (data or options template), the engines updating its field
// values and the rates at which its template and data records are
// sent.
package generator

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"ipfixgen/common/helpers"
	"ipfixgen/ipfix/engine"
	"ipfixgen/ipfix/pacer"
	"ipfixgen/ipfix/template"
)

// maxSetLength is the largest set that can be encoded.
const maxSetLength = 0xffff

// Options are the parameters imposed by the domain owning the
// generator.
type Options struct {
	// Version is the NetFlow version (9 or 10).
	Version template.Version
	// MTU is the maximum size of an IP packet.
	MTU int
	// PacketOverhead is the number of bytes in a packet before the
	// first record: IP and UDP headers, message header and set
	// header.
	PacketOverhead int
	// Seed initializes random engines.
	Seed int64
}

// Generator emits template and data records for one template.
type Generator struct {
	name    string
	options Options

	mu               sync.Mutex
	template         template.Template
	engines          []boundEngine
	enabled          bool
	templateRate     float64
	dataRate         float64
	recordsNum       int
	recordsPerPacket int
	pacer            pacer.Pacer
	stats            stats
}

type boundEngine struct {
	engine engine.Engine
	field  int
}

type stats struct {
	templatePackets uint64
	dataPackets     uint64
	dataRecords     uint64
	encodingErrors  uint64
}

// Info is a snapshot of the state of a generator.
type Info struct {
	Enabled             bool    `json:"enabled"`
	TemplateID          uint16  `json:"template_id"`
	OptionsTemplate     bool    `json:"options_template"`
	ScopeCount          int     `json:"scope_count"`
	TemplateRatePPS     float64 `json:"template_rate_pps"`
	DataRatePPS         float64 `json:"data_rate_pps"`
	DataRecordsNum      int     `json:"data_records_num"`
	DataRecordsNumSend  int     `json:"data_records_num_send"`
	FieldsNum           int     `json:"fields_num"`
	EnginesNum          int     `json:"engines_num"`
	TemplatePacketsSent uint64  `json:"template_packets_sent"`
	DataPacketsSent     uint64  `json:"data_packets_sent"`
	DataRecordsSent     uint64  `json:"data_records_sent"`
	EncodingErrors      uint64  `json:"encoding_errors"`
}

// New creates a new generator. On error, nothing is created and the
// error wraps template.ErrValidation or
// template.ErrUnsupportedFieldKind.
func New(config Configuration, options Options) (*Generator, error) {
	if err := helpers.Validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid generator configuration: %w: %w", template.ErrValidation, err)
	}
	if !options.Version.Valid() {
		return nil, fmt.Errorf("generator %q: %s: %w", config.Name, options.Version, template.ErrValidation)
	}
	tpl := template.Template{
		ID:         config.TemplateID,
		Options:    config.IsOptionsTemplate,
		ScopeCount: config.ScopeCount,
		Fields:     make([]template.Field, 0, len(config.Fields)),
	}
	for _, fc := range config.Fields {
		f, err := fc.Field()
		if err != nil {
			return nil, fmt.Errorf("generator %q: %w", config.Name, err)
		}
		tpl.Fields = append(tpl.Fields, f)
	}
	if err := tpl.Validate(options.Version); err != nil {
		return nil, fmt.Errorf("generator %q: %w", config.Name, err)
	}

	g := &Generator{
		name:         config.Name,
		options:      options,
		template:     tpl,
		enabled:      config.AutoStart,
		templateRate: config.TemplateRatePPS,
		dataRate:     config.RatePPS,
		recordsNum:   config.DataRecordsNum,
	}

	bound := map[string]bool{}
	for i, ec := range config.Engines {
		idx := g.fieldIndex(ec.EngineName)
		if idx < 0 {
			return nil, fmt.Errorf("generator %q: engine bound to unknown field %q: %w",
				config.Name, ec.EngineName, template.ErrValidation)
		}
		if bound[ec.EngineName] {
			return nil, fmt.Errorf("generator %q: several engines bound to field %q: %w",
				config.Name, ec.EngineName, template.ErrValidation)
		}
		bound[ec.EngineName] = true
		e, err := engine.New(ec, tpl.Fields[idx], options.Seed+int64(i))
		if err != nil {
			return nil, fmt.Errorf("generator %q: %w", config.Name, err)
		}
		g.engines = append(g.engines, boundEngine{engine: e, field: idx})
	}

	if overhead := options.PacketOverhead + tpl.RecordLength(options.Version); overhead > options.MTU {
		return nil, fmt.Errorf("generator %q: template record does not fit in MTU %d: %w",
			config.Name, options.MTU, template.ErrValidation)
	}
	maxRecords := g.MaxRecordsPerPacket(options.MTU)
	if maxRecords < 1 {
		return nil, fmt.Errorf("generator %q: data record does not fit in MTU %d: %w",
			config.Name, options.MTU, template.ErrValidation)
	}
	if config.DataRecordsNum > maxRecords {
		return nil, fmt.Errorf("generator %q: %d data records do not fit in MTU %d (max %d): %w",
			config.Name, config.DataRecordsNum, options.MTU, maxRecords, template.ErrValidation)
	}
	g.recordsPerPacket = maxRecords
	if config.DataRecordsNum > 0 {
		g.recordsPerPacket = config.DataRecordsNum
	}
	return g, nil
}

func (g *Generator) fieldIndex(name string) int {
	for i, f := range g.template.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Name returns the name of the generator.
func (g *Generator) Name() string {
	return g.name
}

// TemplateID returns the ID of the template of the generator.
func (g *Generator) TemplateID() uint16 {
	return g.template.ID
}

// MaxRecordsPerPacket returns how many data records fit in a packet
// for the provided MTU.
func (g *Generator) MaxRecordsPerPacket(mtu int) int {
	available := mtu - g.options.PacketOverhead
	length := g.template.DataRecordLength()
	if available <= 0 || length == 0 {
		return 0
	}
	return available / length
}

// RecordsPerPacket returns the number of data records in each data
// packet.
func (g *Generator) RecordsPerPacket() int {
	return g.recordsPerPacket
}

// TemplateRecordLength returns the size of the template record of the
// generator, without set header.
func (g *Generator) TemplateRecordLength() int {
	return g.template.RecordLength(g.options.Version)
}

// Due returns the number of template and data packets to send after
// dt has elapsed.
func (g *Generator) Due(dt time.Duration) (templates, data int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pacer.Advance(dt, g.templateRate, g.dataRate, g.enabled)
}

// EmitTemplate returns the template record of the generator. The set
// header is not included.
func (g *Generator) EmitTemplate() ([]byte, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	var buf bytes.Buffer
	if err := g.template.WriteRecord(&buf, g.options.Version); err != nil {
		g.stats.encodingErrors++
		return nil, err
	}
	g.stats.templatePackets++
	return buf.Bytes(), nil
}

// TemplateSetID returns the ID of the set able to carry the template
// record of the generator.
func (g *Generator) TemplateSetID() uint16 {
	return g.options.Version.TemplateSetID(g.template.Options)
}

// EmitData returns one data record. Engines update their fields first.
func (g *Generator) EmitData() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	var buf bytes.Buffer
	g.emitData(&buf)
	return buf.Bytes()
}

func (g *Generator) emitData(buf *bytes.Buffer) {
	for _, be := range g.engines {
		be.engine.Update(g.template.Fields[be.field].Data)
	}
	g.template.WriteDataRecord(buf)
}

// EmitDataSet returns a data set with RecordsPerPacket() data records
// and the number of records in it.
func (g *Generator) EmitDataSet() ([]byte, int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	records := g.recordsPerPacket
	length := records * g.template.DataRecordLength()
	if length+template.SetHeaderLength > maxSetLength {
		g.stats.encodingErrors++
		return nil, 0, fmt.Errorf("generator %q: data set of %d bytes is too large: %w",
			g.name, length, template.ErrValidation)
	}
	var buf bytes.Buffer
	buf.Grow(template.SetHeaderLength + length)
	template.WriteSetHeader(&buf, g.template.ID, length)
	for range records {
		g.emitData(&buf)
	}
	g.stats.dataPackets++
	g.stats.dataRecords += uint64(records)
	return buf.Bytes(), records, nil
}

// SetRates updates the template and data rates. A null rate keeps the
// current one. Negative rates are rejected.
func (g *Generator) SetRates(templateRate, dataRate float64) error {
	if templateRate < 0 || dataRate < 0 {
		return fmt.Errorf("generator %q: negative rate: %w", g.name, template.ErrValidation)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if templateRate > 0 {
		g.templateRate = templateRate
	}
	if dataRate > 0 {
		g.dataRate = dataRate
	}
	return nil
}

// Rates returns the template and data rates.
func (g *Generator) Rates() (templateRate, dataRate float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.templateRate, g.dataRate
}

// Enable enables or disables the generator. Credits are discarded when
// the generator is enabled again.
func (g *Generator) Enable(enable bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if enable && !g.enabled {
		g.pacer.Reset()
	}
	g.enabled = enable
}

// Enabled tells if the generator is enabled.
func (g *Generator) Enabled() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled
}

// Info returns a snapshot of the state of the generator.
func (g *Generator) Info() Info {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Info{
		Enabled:             g.enabled,
		TemplateID:          g.template.ID,
		OptionsTemplate:     g.template.Options,
		ScopeCount:          g.template.ScopeCount,
		TemplateRatePPS:     g.templateRate,
		DataRatePPS:         g.dataRate,
		DataRecordsNum:      g.recordsNum,
		DataRecordsNumSend:  g.recordsPerPacket,
		FieldsNum:           len(g.template.Fields),
		EnginesNum:          len(g.engines),
		TemplatePacketsSent: g.stats.templatePackets,
		DataPacketsSent:     g.stats.dataPackets,
		DataRecordsSent:     g.stats.dataRecords,
		EncodingErrors:      g.stats.encodingErrors,
	}
}

// ClearCounters resets the packet and record counters.
func (g *Generator) ClearCounters() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stats = stats{}
}
