// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package template

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"ipfixgen/common/helpers"
)

func testFields() []Field {
	return []Field{
		{Name: "src", Type: 8, Length: 4, Data: []byte{10, 0, 0, 1}},
		{Name: "dst", Type: 12, Length: 4, Data: []byte{10, 0, 0, 2}},
		{Name: "sport", Type: 7, Length: 2, Data: []byte{0x1f, 0x90}},
		{Name: "proto", Type: 4, Length: 1, Data: []byte{6}},
	}
}

func TestTemplateRoundTrip(t *testing.T) {
	enterprise := append(testFields(),
		Field{Name: "app", Type: 0x8000 | 101, Length: 4, EnterpriseNumber: 9, Data: []byte{0, 0, 0, 3}})
	cases := []struct {
		Description string
		Version     Version
		Template    Template
		Length      int
	}{
		{"v9 template", V9, Template{ID: 256, Fields: testFields()}, 4 + 4*4},
		{"v10 template", V10, Template{ID: 300, Fields: testFields()}, 4 + 4*4},
		{"v10 enterprise template", V10, Template{ID: 301, Fields: enterprise}, 4 + 4*4 + 8},
		{"v9 options template", V9, Template{ID: 257, Options: true, ScopeCount: 1, Fields: testFields()}, 6 + 4*4},
		{"v10 options template", V10, Template{ID: 258, Options: true, ScopeCount: 2, Fields: enterprise}, 6 + 4*4 + 8},
	}
	for _, tc := range cases {
		t.Run(tc.Description, func(t *testing.T) {
			if got := tc.Template.RecordLength(tc.Version); got != tc.Length {
				t.Errorf("RecordLength() == %d, expected %d", got, tc.Length)
			}
			var buf bytes.Buffer
			if err := tc.Template.WriteRecord(&buf, tc.Version); err != nil {
				t.Fatalf("WriteRecord() error:\n%+v", err)
			}
			if buf.Len() != tc.Length {
				t.Errorf("WriteRecord() wrote %d bytes, expected %d", buf.Len(), tc.Length)
			}
			tc.Template.WriteDataRecord(&buf)

			payload := buf.Bytes()
			got, consumed, err := DecodeRecord(tc.Version, tc.Template.Options, payload)
			if err != nil {
				t.Fatalf("DecodeRecord() error:\n%+v", err)
			}
			if consumed != tc.Length {
				t.Errorf("DecodeRecord() consumed %d bytes, expected %d", consumed, tc.Length)
			}
			fields, consumed, err := got.DecodeDataRecord(payload[consumed:])
			if err != nil {
				t.Fatalf("DecodeDataRecord() error:\n%+v", err)
			}
			if consumed != tc.Template.DataRecordLength() {
				t.Errorf("DecodeDataRecord() consumed %d bytes, expected %d",
					consumed, tc.Template.DataRecordLength())
			}
			// Names are not transmitted
			expected := []Field{}
			for _, f := range tc.Template.Fields {
				f.Name = ""
				expected = append(expected, f)
			}
			if diff := helpers.Diff(fields, expected); diff != "" {
				t.Errorf("DecodeRecord() (-got, +want):\n%s", diff)
			}
			if got.ID != tc.Template.ID || got.ScopeCount != tc.Template.ScopeCount {
				t.Errorf("DecodeRecord() ID/scopes = %d/%d, expected %d/%d",
					got.ID, got.ScopeCount, tc.Template.ID, tc.Template.ScopeCount)
			}
		})
	}
}

func TestTemplateValidate(t *testing.T) {
	cases := []struct {
		Pos      helpers.Pos
		Version  Version
		Template Template
		Error    error
	}{
		{helpers.Mark(), V10, Template{ID: 256, Fields: testFields()}, nil},
		{helpers.Mark(), V10, Template{ID: 255, Fields: testFields()}, ErrValidation},
		{helpers.Mark(), 5, Template{ID: 256, Fields: testFields()}, ErrValidation},
		{helpers.Mark(), V10, Template{ID: 256, Options: true, Fields: testFields()}, ErrValidation},
		{helpers.Mark(), V10, Template{ID: 256, Options: true, ScopeCount: 5, Fields: testFields()}, ErrValidation},
		{helpers.Mark(), V10, Template{ID: 256, ScopeCount: 1, Fields: testFields()}, ErrValidation},
		{helpers.Mark(), V10, Template{ID: 256, Options: true, ScopeCount: 4, Fields: testFields()}, nil},
	}
	for _, tc := range cases {
		err := tc.Template.Validate(tc.Version)
		if tc.Error == nil && err != nil {
			t.Errorf("%sValidate() error:\n%+v", tc.Pos, err)
		} else if tc.Error != nil && !errors.Is(err, tc.Error) {
			t.Errorf("%sValidate() error %v, expected %v", tc.Pos, err, tc.Error)
		}
	}
}

func TestDecodeDataRecordTruncated(t *testing.T) {
	tpl := Template{ID: 256, Fields: testFields()}
	if _, _, err := tpl.DecodeDataRecord([]byte{1, 2, 3}); err == nil {
		t.Fatal("DecodeDataRecord() did not error")
	}
	if _, _, err := DecodeRecord(V10, false, []byte{1, 0, 0, 4, 0, 8}); err == nil {
		t.Fatal("DecodeRecord() did not error")
	}
}

// buildMessage builds a message with one template set and one data
// set with the provided number of records.
func buildMessage(t *testing.T, v Version, tpl Template, records int) []byte {
	t.Helper()
	var body bytes.Buffer
	WriteSetHeader(&body, v.TemplateSetID(tpl.Options), tpl.RecordLength(v))
	if err := tpl.WriteRecord(&body, v); err != nil {
		t.Fatalf("WriteRecord() error:\n%+v", err)
	}
	WriteSetHeader(&body, tpl.ID, records*tpl.DataRecordLength())
	for range records {
		tpl.WriteDataRecord(&body)
	}
	var buf bytes.Buffer
	if v == V9 {
		binary.Write(&buf, binary.BigEndian, V9Header{
			Version:  9,
			Count:    uint16(1 + records),
			SourceID: 1,
		})
	} else {
		binary.Write(&buf, binary.BigEndian, V10Header{
			Version:             10,
			Length:              uint16(v.HeaderLength() + body.Len()),
			ObservationDomainID: 1,
		})
	}
	buf.Write(body.Bytes())
	return buf.Bytes()
}

func TestParser(t *testing.T) {
	for _, v := range []Version{V9, V10} {
		t.Run(fmt.Sprintf("version %d", v), func(t *testing.T) {
			tpl := Template{ID: 260, Fields: testFields()}
			first := buildMessage(t, v, tpl, 3)
			second := buildMessage(t, v, tpl, 5)
			stream := append(append([]byte{}, first...), second...)

			p := NewParser()
			got := []MessageInfo{}
			for len(stream) > 0 {
				info, err := p.Next(stream)
				if err != nil {
					t.Fatalf("Next() error:\n%+v", err)
				}
				got = append(got, info)
				stream = stream[info.Length:]
			}
			expected := []MessageInfo{
				{Version: v, Length: len(first), TemplateRecords: 1, DataRecords: 3},
				{Version: v, Length: len(second), TemplateRecords: 1, DataRecords: 5},
			}
			if diff := helpers.Diff(got, expected); diff != "" {
				t.Fatalf("Next() (-got, +want):\n%s", diff)
			}
		})
	}
}

func TestParserErrors(t *testing.T) {
	p := NewParser()
	if _, err := p.Next([]byte{0}); !errors.Is(err, ErrTruncated) {
		t.Errorf("Next() error %v, expected ErrTruncated", err)
	}
	if _, err := p.Next([]byte{0, 5, 0, 0}); !errors.Is(err, ErrValidation) {
		t.Errorf("Next() error %v, expected ErrValidation", err)
	}
	msg := buildMessage(t, V10, Template{ID: 260, Fields: testFields()}, 1)
	if _, err := p.Next(msg[:len(msg)-2]); !errors.Is(err, ErrTruncated) {
		t.Errorf("Next() error %v, expected ErrTruncated", err)
	}
}
