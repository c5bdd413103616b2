// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package template handles field definitions and their encoding as
// NetFlow v9 (RFC 3954) and IPFIX (RFC 7011) template and data
// records.
package template

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation is returned when a field, an engine or a
	// configuration is malformed.
	ErrValidation = errors.New("validation error")
	// ErrUnsupportedFieldKind is returned when a field cannot be
	// expressed with the requested protocol version.
	ErrUnsupportedFieldKind = errors.New("unsupported field kind")
)

// Version is the NetFlow/IPFIX protocol version.
type Version uint16

const (
	// V9 is NetFlow v9.
	V9 Version = 9
	// V10 is IPFIX.
	V10 Version = 10
)

const (
	// SetHeaderLength is the size of a set (or flowset) header.
	SetHeaderLength = 4
	// MinTemplateID is the smallest valid template ID. Lower values are
	// reserved for set IDs.
	MinTemplateID = 256
	// VariableLength is the length announcing a variable-length field.
	VariableLength = 0xffff

	enterpriseBit = 0x8000
)

// Valid tells if the version is supported.
func (v Version) Valid() bool {
	return v == V9 || v == V10
}

// String turns a version into a string.
func (v Version) String() string {
	switch v {
	case V9:
		return "NetFlow v9"
	case V10:
		return "IPFIX"
	default:
		return fmt.Sprintf("unknown version %d", uint16(v))
	}
}

// HeaderLength returns the size of the message header.
func (v Version) HeaderLength() int {
	if v == V9 {
		return 20
	}
	return 16
}

// TemplateSetID returns the set ID to use for template records.
func (v Version) TemplateSetID(options bool) uint16 {
	switch {
	case v == V9 && !options:
		return 0
	case v == V9 && options:
		return 1
	case !options:
		return 2
	default:
		return 3
	}
}

// IsTemplateSetID tells if the provided set ID carries template
// records. The second value tells if those are options templates.
func (v Version) IsTemplateSetID(id uint16) (bool, bool) {
	switch id {
	case v.TemplateSetID(false):
		return true, false
	case v.TemplateSetID(true):
		return true, true
	}
	return false, false
}
