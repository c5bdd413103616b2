// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package template

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

type setHeader struct {
	ID     uint16
	Length uint16
}

type templateRecordHeader struct {
	TemplateID uint16
	FieldCount uint16
}

type v9OptionsTemplateRecordHeader struct {
	TemplateID   uint16
	ScopeLength  uint16
	OptionLength uint16
}

type v10OptionsTemplateRecordHeader struct {
	TemplateID      uint16
	FieldCount      uint16
	ScopeFieldCount uint16
}

type fieldSpecifier struct {
	Type   uint16
	Length uint16
}

// Template is a template (or an options template) with its fields.
// For options templates, the ScopeCount first fields are scope fields.
type Template struct {
	ID         uint16
	Options    bool
	ScopeCount int
	Fields     []Field
}

// Validate checks the template can be used with the provided version.
func (t Template) Validate(v Version) error {
	if !v.Valid() {
		return fmt.Errorf("%s: %w", v, ErrValidation)
	}
	if t.ID < MinTemplateID {
		return fmt.Errorf("template ID %d should be at least %d: %w", t.ID, MinTemplateID, ErrValidation)
	}
	if err := ValidateFields(v, t.Fields); err != nil {
		return err
	}
	if t.Options {
		if t.ScopeCount <= 0 {
			return fmt.Errorf("options template %d without scope: %w", t.ID, ErrValidation)
		}
		if t.ScopeCount > len(t.Fields) {
			return fmt.Errorf("options template %d has %d scopes for %d fields: %w",
				t.ID, t.ScopeCount, len(t.Fields), ErrValidation)
		}
	} else if t.ScopeCount != 0 {
		return fmt.Errorf("template %d is not an options template but has scopes: %w", t.ID, ErrValidation)
	}
	return nil
}

// RecordLength returns the size of the template record.
func (t Template) RecordLength(v Version) int {
	length := 4
	if t.Options {
		length = 6
	}
	for _, f := range t.Fields {
		length += f.specifierLength(v)
	}
	return length
}

// DataRecordLength returns the size of one data record.
func (t Template) DataRecordLength() int {
	length := 0
	for _, f := range t.Fields {
		length += int(f.Length)
	}
	return length
}

// WriteSetHeader writes a set header announcing length bytes of
// records.
func WriteSetHeader(buf *bytes.Buffer, id uint16, length int) {
	binary.Write(buf, binary.BigEndian, setHeader{
		ID:     id,
		Length: uint16(SetHeaderLength + length),
	})
}

// WriteRecord writes the template record. The set header is not
// included.
func (t Template) WriteRecord(buf *bytes.Buffer, v Version) error {
	if err := t.Validate(v); err != nil {
		return err
	}
	var header any
	switch {
	case !t.Options:
		header = templateRecordHeader{
			TemplateID: t.ID,
			FieldCount: uint16(len(t.Fields)),
		}
	case v == V9:
		header = v9OptionsTemplateRecordHeader{
			TemplateID:   t.ID,
			ScopeLength:  uint16(4 * t.ScopeCount),
			OptionLength: uint16(4 * (len(t.Fields) - t.ScopeCount)),
		}
	default:
		header = v10OptionsTemplateRecordHeader{
			TemplateID:      t.ID,
			FieldCount:      uint16(len(t.Fields)),
			ScopeFieldCount: uint16(t.ScopeCount),
		}
	}
	binary.Write(buf, binary.BigEndian, header)
	for _, f := range t.Fields {
		binary.Write(buf, binary.BigEndian, fieldSpecifier{f.Type, f.Length})
		if v == V10 && f.IsEnterprise() {
			binary.Write(buf, binary.BigEndian, f.EnterpriseNumber)
		}
	}
	return nil
}

// WriteDataRecord writes the current values of the fields.
func (t Template) WriteDataRecord(buf *bytes.Buffer) {
	for _, f := range t.Fields {
		buf.Write(f.Data)
	}
}

// DecodeRecord decodes a template record from the provided payload. It
// returns the template and the number of bytes consumed. Field names
// and data are not transmitted: they are left empty.
func DecodeRecord(v Version, options bool, payload []byte) (Template, int, error) {
	r := bytes.NewReader(payload)
	var t Template
	var fieldCount int
	t.Options = options
	switch {
	case !options:
		var header templateRecordHeader
		if err := binary.Read(r, binary.BigEndian, &header); err != nil {
			return Template{}, 0, fmt.Errorf("cannot decode template header: %w", err)
		}
		t.ID = header.TemplateID
		fieldCount = int(header.FieldCount)
	case v == V9:
		var header v9OptionsTemplateRecordHeader
		if err := binary.Read(r, binary.BigEndian, &header); err != nil {
			return Template{}, 0, fmt.Errorf("cannot decode options template header: %w", err)
		}
		t.ID = header.TemplateID
		t.ScopeCount = int(header.ScopeLength / 4)
		fieldCount = t.ScopeCount + int(header.OptionLength/4)
	default:
		var header v10OptionsTemplateRecordHeader
		if err := binary.Read(r, binary.BigEndian, &header); err != nil {
			return Template{}, 0, fmt.Errorf("cannot decode options template header: %w", err)
		}
		t.ID = header.TemplateID
		t.ScopeCount = int(header.ScopeFieldCount)
		fieldCount = int(header.FieldCount)
	}
	t.Fields = make([]Field, 0, fieldCount)
	for i := range fieldCount {
		var spec fieldSpecifier
		if err := binary.Read(r, binary.BigEndian, &spec); err != nil {
			return Template{}, 0, fmt.Errorf("cannot decode field %d of template %d: %w", i, t.ID, err)
		}
		f := Field{Type: spec.Type, Length: spec.Length}
		if v == V10 && spec.Type&enterpriseBit != 0 {
			if err := binary.Read(r, binary.BigEndian, &f.EnterpriseNumber); err != nil {
				return Template{}, 0, fmt.Errorf("cannot decode enterprise number of field %d of template %d: %w", i, t.ID, err)
			}
		}
		t.Fields = append(t.Fields, f)
	}
	return t, len(payload) - r.Len(), nil
}

// DecodeDataRecord decodes one data record using the template. It
// returns a copy of the template fields with their data set and the
// number of bytes consumed.
func (t Template) DecodeDataRecord(payload []byte) ([]Field, int, error) {
	if len(payload) < t.DataRecordLength() {
		return nil, 0, fmt.Errorf("data record for template %d truncated (%d < %d)",
			t.ID, len(payload), t.DataRecordLength())
	}
	fields := make([]Field, len(t.Fields))
	offset := 0
	for i, f := range t.Fields {
		f.Data = append([]byte{}, payload[offset:offset+int(f.Length)]...)
		fields[i] = f
		offset += int(f.Length)
	}
	return fields, offset, nil
}
