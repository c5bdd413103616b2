// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"ipfixgen/common/helpers"
)

// Configuration describes a transport.
type Configuration struct {
	// Dst is the destination: host:port or an URL (udp://, http://,
	// https://, file://).
	Dst string `validate:"required,dst"`
	// SrcPort is the local port of the UDP socket. 0 lets the kernel
	// choose.
	SrcPort uint16
	// RepeatsNum is the number of times an HTTP request is retried.
	RepeatsNum int `validate:"min=0"`
	// RepeatsWaitTime is the time to wait between two HTTP attempts.
	RepeatsWaitTime time.Duration `validate:"min=0"`
	// Headers are added to each HTTP request.
	Headers map[string]string
	// TLS is the TLS configuration for HTTPS collectors.
	TLS helpers.TLSConfiguration
	// Timeout is the timeout for one HTTP attempt.
	Timeout time.Duration `validate:"min=0"`
	// FileMaxSize is the size after which a file is rotated. 0 means
	// no rotation.
	FileMaxSize int64 `validate:"min=0"`
}

// DefaultConfiguration is the default configuration of a transport.
func DefaultConfiguration() Configuration {
	return Configuration{
		RepeatsWaitTime: time.Second,
		Timeout:         10 * time.Second,
	}
}

// Duration is a duration in JSON documents. It is either a number of
// seconds or a string like "500ms".
type Duration time.Duration

// UnmarshalJSON decodes a duration.
func (d *Duration) UnmarshalJSON(input []byte) error {
	var raw any
	if err := json.Unmarshal(input, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		if v < 0 {
			return fmt.Errorf("negative duration %v", v)
		}
		*d = Duration(v * float64(time.Second))
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		if parsed < 0 {
			return fmt.Errorf("negative duration %q", v)
		}
		*d = Duration(parsed)
	default:
		return fmt.Errorf("invalid duration %s", input)
	}
	return nil
}

// MarshalJSON encodes a duration as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
