// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"ipfixgen/common/helpers"
	"ipfixgen/ipfix/generator"
	"ipfixgen/ipfix/template"
	"ipfixgen/ipfix/transport"
)

// Configuration describes an observation domain and the collector it
// exports to.
type Configuration struct {
	// NetflowVersion is either 9 (NetFlow v9) or 10 (IPFIX).
	NetflowVersion template.Version `json:"netflow_version" validate:"oneof=9 10"`
	// Dst is the destination of the packets (see transport.ParseDestination).
	Dst string `json:"dst" validate:"required,dst"`
	// DomainID is the observation domain ID (source ID for NetFlow
	// v9). 0 means a random one.
	DomainID uint32 `json:"domain_id"`
	// MTU is the maximum size of an IP packet.
	MTU int `json:"mtu" validate:"min=68,max=65535"`
	// SrcPort is the source port of UDP packets. 0 lets the kernel
	// pick one.
	SrcPort uint16 `json:"src_port"`
	// Generators are the generators of the domain.
	Generators []generator.Configuration `json:"generators" validate:"min=1"`

	// RepeatsNum is the number of retries for an HTTP upload.
	RepeatsNum int `json:"repeats_num" validate:"min=0"`
	// RepeatsWaitTime is the wait between two HTTP attempts.
	RepeatsWaitTime transport.Duration `json:"repeats_wait_time" validate:"min=0"`
	// Headers are added to HTTP uploads.
	Headers map[string]string `json:"headers"`
	// TLS is used for https:// destinations.
	TLS helpers.TLSConfiguration `json:"tls"`
	// FileMaxSize is the size after which the output file is rotated.
	FileMaxSize int64 `json:"file_max_size" validate:"min=0"`
}

// DefaultConfiguration represents the default configuration for a
// domain.
func DefaultConfiguration() Configuration {
	return Configuration{
		NetflowVersion:  template.V10,
		MTU:             1500,
		RepeatsWaitTime: transport.Duration(time.Second),
	}
}

// UnmarshalJSON decodes a domain configuration. Missing keys get their
// default value and unknown keys are rejected.
func (c *Configuration) UnmarshalJSON(input []byte) error {
	type plain Configuration
	config := plain(DefaultConfiguration())
	decoder := json.NewDecoder(bytes.NewReader(input))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return fmt.Errorf("%w: %w", template.ErrValidation, err)
	}
	*c = Configuration(config)
	return nil
}

// transportConfiguration derives the configuration of the transport.
func (c Configuration) transportConfiguration() transport.Configuration {
	config := transport.DefaultConfiguration()
	config.Dst = c.Dst
	config.SrcPort = c.SrcPort
	config.RepeatsNum = c.RepeatsNum
	config.RepeatsWaitTime = time.Duration(c.RepeatsWaitTime)
	config.Headers = c.Headers
	config.TLS = c.TLS
	config.FileMaxSize = c.FileMaxSize
	return config
}
