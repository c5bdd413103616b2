// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package logger

// Configuration if the configuration for logger.
type Configuration struct {
	// Level is the minimum level for this logger. When empty, the
	// global level is used.
	Level string `validate:"omitempty,oneof=trace debug info warn error"`
}

// DefaultConfiguration is the default logging configuration.
func DefaultConfiguration() Configuration {
	return Configuration{}
}
