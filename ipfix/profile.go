// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"ipfixgen/ipfix/domain"
)

// Profile is the set of clients to simulate.
type Profile struct {
	Clients []ClientConfiguration `json:"clients"`
}

// ClientConfiguration is a named domain configuration. In JSON, the
// name sits next to the keys of the domain.
type ClientConfiguration struct {
	Name   string
	Domain domain.Configuration
}

// UnmarshalJSON decodes a client configuration.
func (cc *ClientConfiguration) UnmarshalJSON(input []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(input, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	name, ok := raw["name"]
	if !ok {
		return fmt.Errorf("client without a name: %w", ErrValidation)
	}
	if err := json.Unmarshal(name, &cc.Name); err != nil {
		return fmt.Errorf("invalid client name: %w: %w", ErrValidation, err)
	}
	delete(raw, "name")
	rest, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(rest, &cc.Domain); err != nil {
		return fmt.Errorf("client %q: %w", cc.Name, err)
	}
	return nil
}

// ParseProfile decodes a JSON profile. Unknown keys are rejected. The
// returned error wraps ErrConfigLoad.
func ParseProfile(input []byte) (Profile, error) {
	var profile Profile
	decoder := json.NewDecoder(bytes.NewReader(input))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&profile); err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrConfigLoad, err)
	}
	return profile, nil
}

// ReadProfileFile reads and decodes a JSON profile.
func ReadProfileFile(path string) (Profile, error) {
	input, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("%w: %w", ErrConfigLoad, err)
	}
	return ParseProfile(input)
}
