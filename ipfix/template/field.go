// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package template

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/netsampler/goflow2/v2/decoders/netflow"
)

// Field is a field of a template. Data is the current value of the
// field and it is exactly Length bytes long.
type Field struct {
	Name             string
	Type             uint16
	Length           uint16
	EnterpriseNumber uint32
	Data             []byte
}

// IsEnterprise tells if the field is an enterprise-specific one.
func (f Field) IsEnterprise() bool {
	return f.Type&enterpriseBit != 0 || f.EnterpriseNumber != 0
}

// IsVariableLength tells if the field has a variable length.
func (f Field) IsVariableLength() bool {
	return f.Length == VariableLength
}

// specifierLength returns the size of the field specifier inside a
// template record.
func (f Field) specifierLength(v Version) int {
	if v == V10 && f.IsEnterprise() {
		return 8
	}
	return 4
}

// Validate checks the field can be used with the provided version.
func (f Field) Validate(v Version) error {
	if f.Name == "" {
		return fmt.Errorf("field without a name: %w", ErrValidation)
	}
	if f.IsVariableLength() {
		return fmt.Errorf("field %q has a variable length: %w", f.Name, ErrUnsupportedFieldKind)
	}
	if v == V9 && f.IsEnterprise() {
		return fmt.Errorf("field %q is enterprise-specific with %s: %w", f.Name, v, ErrUnsupportedFieldKind)
	}
	if f.Type&enterpriseBit != 0 && f.EnterpriseNumber == 0 {
		return fmt.Errorf("field %q is enterprise-specific without enterprise number: %w", f.Name, ErrValidation)
	}
	if f.Length == 0 {
		return fmt.Errorf("field %q has a null length: %w", f.Name, ErrValidation)
	}
	if len(f.Data) != int(f.Length) {
		return fmt.Errorf("field %q has %d bytes of data instead of %d: %w",
			f.Name, len(f.Data), f.Length, ErrValidation)
	}
	return nil
}

// ValidateFields checks a list of fields: each field should be valid
// and field names should be unique.
func ValidateFields(v Version, fields []Field) error {
	if len(fields) == 0 {
		return fmt.Errorf("no field: %w", ErrValidation)
	}
	names := map[string]bool{}
	for _, field := range fields {
		if err := field.Validate(v); err != nil {
			return err
		}
		if names[field.Name] {
			return fmt.Errorf("duplicate field %q: %w", field.Name, ErrValidation)
		}
		names[field.Name] = true
	}
	return nil
}

// FieldConfiguration is the configuration of a field.
type FieldConfiguration struct {
	// Name of the field. When Type is 0, a well-known IPFIX
	// information element name is used to infer it.
	Name string `json:"name" validate:"required"`
	// Type is the information element identifier.
	Type uint16 `json:"type"`
	// Length is the length of the field in bytes.
	Length uint16 `json:"length" validate:"min=1"`
	// EnterpriseNumber is the private enterprise number for
	// enterprise-specific fields.
	EnterpriseNumber uint32 `json:"enterprise_number"`
	// Data is the initial value of the field.
	Data []byte `json:"data"`
}

// UnmarshalJSON decodes a field configuration. Data is expected as a
// list of integers.
func (fc *FieldConfiguration) UnmarshalJSON(input []byte) error {
	type plain FieldConfiguration
	var raw struct {
		plain
		Data []int `json:"data"`
	}
	if err := unmarshalStrict(input, &raw); err != nil {
		return err
	}
	*fc = FieldConfiguration(raw.plain)
	fc.Data = nil
	if raw.Data != nil {
		fc.Data = make([]byte, len(raw.Data))
		for i, b := range raw.Data {
			if b < 0 || b > 255 {
				return fmt.Errorf("field %q: data byte %d out of range: %w", fc.Name, b, ErrValidation)
			}
			fc.Data[i] = byte(b)
		}
	}
	return nil
}

// MarshalJSON encodes a field configuration with data as a list of
// integers.
func (fc FieldConfiguration) MarshalJSON() ([]byte, error) {
	type plain FieldConfiguration
	data := make([]int, len(fc.Data))
	for i, b := range fc.Data {
		data[i] = int(b)
	}
	return json.Marshal(struct {
		plain
		Data []int `json:"data"`
	}{plain(fc), data})
}

// Field turns the configuration into a field. Data is copied. When
// no data is provided, the field is zeroed.
func (fc FieldConfiguration) Field() (Field, error) {
	f := Field{
		Name:             fc.Name,
		Type:             fc.Type,
		Length:           fc.Length,
		EnterpriseNumber: fc.EnterpriseNumber,
	}
	if f.Type == 0 {
		t, ok := WellKnownType(fc.Name)
		if !ok {
			return Field{}, fmt.Errorf("field %q has no type: %w", fc.Name, ErrValidation)
		}
		f.Type = t
	}
	if f.EnterpriseNumber != 0 {
		f.Type |= enterpriseBit
	}
	if fc.Data == nil && fc.Length != VariableLength {
		f.Data = make([]byte, fc.Length)
	} else {
		f.Data = append([]byte{}, fc.Data...)
	}
	return f, nil
}

func unmarshalStrict(input []byte, out any) error {
	decoder := json.NewDecoder(bytes.NewReader(input))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	return nil
}

// Clone returns a deep copy of the field.
func (f Field) Clone() Field {
	f.Data = append([]byte{}, f.Data...)
	return f
}

var wellKnownTypes = map[string]uint16{
	"octetDeltaCount":             netflow.IPFIX_FIELD_octetDeltaCount,
	"packetDeltaCount":            netflow.IPFIX_FIELD_packetDeltaCount,
	"protocolIdentifier":          netflow.IPFIX_FIELD_protocolIdentifier,
	"ipClassOfService":            netflow.IPFIX_FIELD_ipClassOfService,
	"tcpControlBits":              netflow.IPFIX_FIELD_tcpControlBits,
	"sourceTransportPort":         netflow.IPFIX_FIELD_sourceTransportPort,
	"sourceIPv4Address":           netflow.IPFIX_FIELD_sourceIPv4Address,
	"sourceIPv4PrefixLength":      netflow.IPFIX_FIELD_sourceIPv4PrefixLength,
	"ingressInterface":            netflow.IPFIX_FIELD_ingressInterface,
	"destinationTransportPort":    netflow.IPFIX_FIELD_destinationTransportPort,
	"destinationIPv4Address":      netflow.IPFIX_FIELD_destinationIPv4Address,
	"destinationIPv4PrefixLength": netflow.IPFIX_FIELD_destinationIPv4PrefixLength,
	"egressInterface":             netflow.IPFIX_FIELD_egressInterface,
	"ipNextHopIPv4Address":        netflow.IPFIX_FIELD_ipNextHopIPv4Address,
	"bgpSourceAsNumber":           netflow.IPFIX_FIELD_bgpSourceAsNumber,
	"bgpDestinationAsNumber":      netflow.IPFIX_FIELD_bgpDestinationAsNumber,
	"sourceIPv6Address":           netflow.IPFIX_FIELD_sourceIPv6Address,
	"destinationIPv6Address":      netflow.IPFIX_FIELD_destinationIPv6Address,
	"sourceMacAddress":            netflow.IPFIX_FIELD_sourceMacAddress,
	"destinationMacAddress":       netflow.IPFIX_FIELD_destinationMacAddress,
	"vlanId":                      netflow.IPFIX_FIELD_vlanId,
	"forwardingStatus":            netflow.IPFIX_FIELD_forwardingStatus,
	"flowStartSeconds":            netflow.IPFIX_FIELD_flowStartSeconds,
	"flowStartMilliseconds":       netflow.IPFIX_FIELD_flowStartMilliseconds,
	"applicationName":             netflow.IPFIX_FIELD_applicationName,
	"samplingInterval":            netflow.IPFIX_FIELD_samplingInterval,
	"samplerId":                   netflow.IPFIX_FIELD_samplerId,
	"samplerMode":                 netflow.IPFIX_FIELD_samplerMode,
	"samplerRandomInterval":       netflow.IPFIX_FIELD_samplerRandomInterval,
	"initiatorOctets":             netflow.IPFIX_FIELD_initiatorOctets,
	"responderOctets":             netflow.IPFIX_FIELD_responderOctets,
}

// WellKnownType returns the information element identifier for the
// provided IPFIX name. The lookup is case-insensitive.
func WellKnownType(name string) (uint16, bool) {
	if t, ok := wellKnownTypes[name]; ok {
		return t, true
	}
	for n, t := range wellKnownTypes {
		if strings.EqualFold(n, name) {
			return t, true
		}
	}
	return 0, false
}
