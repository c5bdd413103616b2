// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package helpers

import (
	"net"
	"net/url"
	"strconv"

	"github.com/go-playground/validator/v10"
)

// Validate is a validator instance to be used everywhere.
var Validate *validator.Validate

func validPort(port string, allowZero bool) bool {
	portNum, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return false
	}
	return allowZero || portNum > 0
}

// isListen validates a <dns>:<port> combination for fields typically used for listening address
func isListen(fl validator.FieldLevel) bool {
	host, port, err := net.SplitHostPort(fl.Field().String())
	if err != nil || !validPort(port, true) {
		return false
	}
	// If host is specified, it should match a DNS name
	if host != "" {
		return Validate.Var(host, "hostname_rfc1123") == nil
	}
	return true
}

// isDestination validates an export destination. It can be a
// <host>:<port> combination (IPv6 addresses should be bracketed) or
// an URL whose scheme is udp, http, https or file.
func isDestination(fl validator.FieldLevel) bool {
	val := fl.Field().String()
	u, err := url.Parse(val)
	if err == nil {
		switch u.Scheme {
		case "http", "https":
			return u.Host != ""
		case "file":
			return u.Path != ""
		case "udp":
			val = u.Host
		}
	}
	host, port, err := net.SplitHostPort(val)
	if err != nil || host == "" || !validPort(port, false) {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	return Validate.Var(host, "hostname_rfc1123") == nil
}

func init() {
	Validate = validator.New()
	Validate.RegisterValidation("listen", isListen)
	Validate.RegisterValidation("dst", isDestination)
}
