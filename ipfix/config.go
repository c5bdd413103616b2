// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ipfix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"ipfixgen/common/helpers"
	"ipfixgen/ipfix/transport"
)

// Configuration describes the configuration for the IPFIX component.
type Configuration struct {
	// SchedulingInterval is the interval between two scheduling
	// passes of each client.
	SchedulingInterval time.Duration `validate:"min=1ms"`
	// QueueSize is the number of packets waiting to be sent by each
	// client.
	QueueSize int `validate:"min=1"`
	// ProfileFile is a JSON profile loaded on start.
	ProfileFile string
	// Seed initializes random engines. 0 means a seed derived from
	// the current time.
	Seed int64
}

// DefaultConfiguration represents the default configuration for the
// IPFIX component.
func DefaultConfiguration() Configuration {
	return Configuration{
		SchedulingInterval: 10 * time.Millisecond,
		QueueSize:          1000,
	}
}

// PushConfiguration describes a job pushing the files of a directory
// to a collector.
type PushConfiguration struct {
	// DstURL is the destination: host:port or udp:// for UDP,
	// http:// or https:// for HTTP.
	DstURL string `json:"dst_url" validate:"required,dst"`
	// Dir is the directory to export.
	Dir string `json:"dir" validate:"required"`
	// DirScansNum is the number of scans of the directory. 0 means
	// scanning until stopped.
	DirScansNum int `json:"dir_scans_num" validate:"min=0"`
	// FilesWaitTime is the wait between two scans.
	FilesWaitTime transport.Duration `json:"files_wait_time" validate:"min=0"`
	// FilesWaitTimeSpeedup divides the wait after each empty scan.
	FilesWaitTimeSpeedup float64 `json:"files_wait_time_speedup" validate:"min=0"`
	// HTTPRepeatsNum is the number of retries of an upload.
	HTTPRepeatsNum int `json:"http_repeats_num" validate:"min=0"`
	// HTTPRepeatsWaitTime is the wait between two uploads.
	HTTPRepeatsWaitTime transport.Duration `json:"http_repeats_wait_time" validate:"min=0"`
	// HTTPSitesPerTenant and HTTPDevicesPerSite multiply the
	// exporters of the job: each simulated device pushes the whole
	// directory. 0 counts as 1.
	HTTPSitesPerTenant int `json:"http_sites_per_tenant" validate:"min=0"`
	HTTPDevicesPerSite int `json:"http_devices_per_site" validate:"min=0"`
	// UDPPacketsWaitTime is the wait between two datagrams.
	UDPPacketsWaitTime transport.Duration `json:"udp_packets_wait_time" validate:"min=0"`
	// Headers are added to HTTP uploads.
	Headers map[string]string `json:"headers"`
	// TLS is used for https:// destinations.
	TLS helpers.TLSConfiguration `json:"tls"`
}

// DefaultPushConfiguration represents the default configuration for a
// push job.
func DefaultPushConfiguration() PushConfiguration {
	return PushConfiguration{
		DirScansNum:         1,
		FilesWaitTime:       transport.Duration(60 * time.Second),
		HTTPRepeatsWaitTime: transport.Duration(time.Second),
		HTTPSitesPerTenant:  1,
		HTTPDevicesPerSite:  1,
	}
}

// UnmarshalJSON decodes a push configuration. Missing keys get their
// default value and unknown keys are rejected.
func (pc *PushConfiguration) UnmarshalJSON(input []byte) error {
	type plain PushConfiguration
	config := plain(DefaultPushConfiguration())
	decoder := json.NewDecoder(bytes.NewReader(input))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return fmt.Errorf("%w: %w", ErrValidation, err)
	}
	*pc = PushConfiguration(config)
	return nil
}

func (pc PushConfiguration) transportConfiguration() transport.Configuration {
	config := transport.DefaultConfiguration()
	config.Dst = pc.DstURL
	config.RepeatsNum = pc.HTTPRepeatsNum
	config.RepeatsWaitTime = time.Duration(pc.HTTPRepeatsWaitTime)
	config.Headers = pc.Headers
	config.TLS = pc.TLS
	return config
}

func (pc PushConfiguration) dirConfiguration() transport.DirConfiguration {
	return transport.DirConfiguration{
		Dir:                  pc.Dir,
		DirScansNum:          pc.DirScansNum,
		FilesWaitTime:        time.Duration(pc.FilesWaitTime),
		FilesWaitTimeSpeedup: pc.FilesWaitTimeSpeedup,
		PacketsWaitTime:      time.Duration(pc.UDPPacketsWaitTime),
	}
}
