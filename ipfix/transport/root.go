// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package transport sends IPFIX and NetFlow payloads to a collector
// over UDP or HTTP, or writes them to a file.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/benbjohnson/clock"

	"ipfixgen/common/helpers"
	"ipfixgen/common/reporter"
	"ipfixgen/ipfix/session"
)

// ErrTransport is returned when a payload cannot be delivered.
var ErrTransport = errors.New("transport error")

// Kind is the kind of transport.
type Kind string

const (
	// KindUDP sends each payload as an UDP datagram.
	KindUDP Kind = "udp"
	// KindHTTP posts each payload to an URL.
	KindHTTP Kind = "http"
	// KindFile appends each payload to a file.
	KindFile Kind = "file"
)

// Packet is a payload to send with the number of records it contains.
type Packet struct {
	Name            string
	Payload         []byte
	TemplateRecords int
	DataRecords     int
}

// Transport delivers payloads. Send returns the session record
// describing the outcome. On failure, the returned error wraps
// ErrTransport.
type Transport interface {
	Type() Kind
	Send(ctx context.Context, packet Packet) (session.Record, error)
	Close() error
}

// Dependencies define the dependencies of transports.
type Dependencies struct {
	Clock clock.Clock
}

// ParseDestination returns the kind of transport and the address to
// use for the provided destination. A plain host:port is UDP.
func ParseDestination(dst string) (Kind, string, error) {
	if err := helpers.Validate.Var(dst, "dst"); err != nil {
		return "", "", fmt.Errorf("invalid destination %q", dst)
	}
	if u, err := url.Parse(dst); err == nil {
		switch u.Scheme {
		case "http", "https":
			return KindHTTP, dst, nil
		case "file":
			if u.Host != "" {
				// file://relative/path
				return KindFile, u.Host + u.Path, nil
			}
			return KindFile, u.Path, nil
		case "udp":
			return KindUDP, u.Host, nil
		}
	}
	return KindUDP, dst, nil
}

// IsIPv6 tells if the destination is an IPv6 address.
func IsIPv6(dst string) bool {
	kind, address, err := ParseDestination(dst)
	if err != nil {
		return false
	}
	host := address
	switch kind {
	case KindHTTP:
		u, err := url.Parse(address)
		if err != nil {
			return false
		}
		host = u.Hostname()
	case KindUDP:
		host, _, _ = net.SplitHostPort(address)
	default:
		return false
	}
	ip := net.ParseIP(strings.Trim(host, "[]"))
	return ip != nil && ip.To4() == nil
}

// New creates a transport for the provided configuration.
func New(r *reporter.Reporter, config Configuration, dependencies Dependencies) (Transport, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	if err := helpers.Validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid transport configuration: %w", err)
	}
	kind, address, err := ParseDestination(config.Dst)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindUDP:
		return newUDP(address, config.SrcPort, dependencies)
	case KindHTTP:
		return newHTTP(r, address, config, dependencies)
	case KindFile:
		return newFile(address, config, dependencies)
	}
	return nil, fmt.Errorf("unknown transport %q", kind)
}
