// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package domain

import (
	"bytes"
	"encoding/binary"
	"time"

	"ipfixgen/ipfix/template"
)

const (
	ipv4HeaderLength = 20
	ipv6HeaderLength = 40
	udpHeaderLength  = 8
)

// packetBuilder accumulates sets into a message and prepends the
// header when the message is complete.
type packetBuilder struct {
	version         template.Version
	body            bytes.Buffer
	templateRecords int
	dataRecords     int
}

func (b *packetBuilder) empty() bool {
	return b.body.Len() == 0
}

// size is the size of the message being built, header included.
func (b *packetBuilder) size() int {
	return b.version.HeaderLength() + b.body.Len()
}

// addSet appends a set with the provided records.
func (b *packetBuilder) addSet(id uint16, records []byte, templates, data int) {
	template.WriteSetHeader(&b.body, id, len(records))
	b.body.Write(records)
	b.templateRecords += templates
	b.dataRecords += data
}

func (b *packetBuilder) reset() {
	b.body.Reset()
	b.templateRecords = 0
	b.dataRecords = 0
}

// headerState is the state needed to build message headers.
type headerState struct {
	version  template.Version
	domainID uint32
	start    time.Time
	// sequence is the number of messages sent for NetFlow v9 and the
	// number of data records sent for IPFIX.
	sequence uint32
}

// finish returns the message with its header and updates the sequence
// number.
func (h *headerState) finish(b *packetBuilder, now time.Time) []byte {
	var buf bytes.Buffer
	buf.Grow(b.size())
	switch h.version {
	case template.V9:
		binary.Write(&buf, binary.BigEndian, template.V9Header{
			Version:        uint16(template.V9),
			Count:          uint16(b.templateRecords + b.dataRecords),
			SystemUptime:   uint32(now.Sub(h.start).Milliseconds()),
			UnixSeconds:    uint32(now.Unix()),
			SequenceNumber: h.sequence,
			SourceID:       h.domainID,
		})
		h.sequence++
	default:
		binary.Write(&buf, binary.BigEndian, template.V10Header{
			Version:             uint16(template.V10),
			Length:              uint16(b.size()),
			ExportTime:          uint32(now.Unix()),
			SequenceNumber:      h.sequence,
			ObservationDomainID: h.domainID,
		})
		h.sequence += uint32(b.dataRecords)
	}
	buf.Write(b.body.Bytes())
	return buf.Bytes()
}
