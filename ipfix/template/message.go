// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package template

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// V9Header is the header of a NetFlow v9 message.
type V9Header struct {
	Version        uint16
	Count          uint16
	SystemUptime   uint32
	UnixSeconds    uint32
	SequenceNumber uint32
	SourceID       uint32
}

// V10Header is the header of an IPFIX message.
type V10Header struct {
	Version             uint16
	Length              uint16
	ExportTime          uint32
	SequenceNumber      uint32
	ObservationDomainID uint32
}

// ErrTruncated is returned when a message is incomplete.
var ErrTruncated = errors.New("truncated message")

// MessageInfo describes one message found by a Parser.
type MessageInfo struct {
	Version         Version
	Length          int
	TemplateRecords int
	DataRecords     int
}

type templateKey struct {
	domain uint32
	id     uint16
}

// Parser splits a stream of NetFlow v9 or IPFIX messages and counts
// the records they contain. It remembers the templates it has seen to
// count IPFIX data records.
type Parser struct {
	templates map[templateKey]Template
}

// NewParser creates a new parser.
func NewParser() *Parser {
	return &Parser{
		templates: map[templateKey]Template{},
	}
}

// Next parses the message at the beginning of the payload.
func (p *Parser) Next(payload []byte) (MessageInfo, error) {
	if len(payload) < 2 {
		return MessageInfo{}, ErrTruncated
	}
	switch version := Version(binary.BigEndian.Uint16(payload)); version {
	case V9:
		return p.nextV9(payload)
	case V10:
		return p.nextV10(payload)
	default:
		return MessageInfo{}, fmt.Errorf("%s: %w", version, ErrValidation)
	}
}

func (p *Parser) nextV10(payload []byte) (MessageInfo, error) {
	var header V10Header
	if err := binary.Read(bytes.NewReader(payload), binary.BigEndian, &header); err != nil {
		return MessageInfo{}, ErrTruncated
	}
	if int(header.Length) > len(payload) || int(header.Length) < V10.HeaderLength() {
		return MessageInfo{}, ErrTruncated
	}
	info := MessageInfo{Version: V10, Length: int(header.Length)}
	body := payload[V10.HeaderLength():header.Length]
	for len(body) > 0 {
		consumed, err := p.set(V10, header.ObservationDomainID, body, &info)
		if err != nil {
			return MessageInfo{}, err
		}
		body = body[consumed:]
	}
	return info, nil
}

// nextV9 parses a NetFlow v9 message. As there is no length in the
// header, the message ends at the end of the payload or when a set
// header looks like a new message header. No set can use 9 as an ID.
func (p *Parser) nextV9(payload []byte) (MessageInfo, error) {
	var header V9Header
	if err := binary.Read(bytes.NewReader(payload), binary.BigEndian, &header); err != nil {
		return MessageInfo{}, ErrTruncated
	}
	info := MessageInfo{Version: V9, Length: V9.HeaderLength()}
	body := payload[V9.HeaderLength():]
	for len(body) >= SetHeaderLength && binary.BigEndian.Uint16(body) != uint16(V9) {
		consumed, err := p.set(V9, header.SourceID, body, &info)
		if err != nil {
			return MessageInfo{}, err
		}
		body = body[consumed:]
		info.Length += consumed
	}
	if dataRecords := int(header.Count) - info.TemplateRecords; dataRecords > info.DataRecords {
		info.DataRecords = dataRecords
	}
	return info, nil
}

// set parses a set and updates info. It returns the set length.
func (p *Parser) set(v Version, domain uint32, body []byte, info *MessageInfo) (int, error) {
	if len(body) < SetHeaderLength {
		return 0, ErrTruncated
	}
	id := binary.BigEndian.Uint16(body)
	length := int(binary.BigEndian.Uint16(body[2:]))
	if length < SetHeaderLength || length > len(body) {
		return 0, ErrTruncated
	}
	records := body[SetHeaderLength:length]
	if isTemplate, options := v.IsTemplateSetID(id); isTemplate {
		for len(records) >= SetHeaderLength {
			t, consumed, err := DecodeRecord(v, options, records)
			if err != nil {
				return 0, err
			}
			p.templates[templateKey{domain, t.ID}] = t
			info.TemplateRecords++
			records = records[consumed:]
		}
	} else if id >= MinTemplateID {
		if t, ok := p.templates[templateKey{domain, id}]; ok && t.DataRecordLength() > 0 {
			info.DataRecords += len(records) / t.DataRecordLength()
		}
	}
	return length, nil
}
