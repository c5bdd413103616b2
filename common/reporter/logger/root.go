// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package logger handles logging for ipfixgen.
//
// This is a thin wrapper around zerolog. Each log event gets a
// "caller" and a "module" field. The module is the package of the
// first function of the call stack belonging to ipfixgen.
package logger

import (
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ipfixgen/common/reporter/stack"
)

// Logger is a logger instance. It is compatible with the interface
// from zerolog by design.
type Logger struct {
	zerolog.Logger
}

// New creates a new logger
func New(config Configuration) (Logger, error) {
	logger := log.Logger.Hook(contextHook{})
	if config.Level != "" {
		level, err := zerolog.ParseLevel(config.Level)
		if err != nil {
			return Logger{}, err
		}
		logger = logger.Level(level)
	}
	return Logger{logger}, nil
}

type contextHook struct{}

// Run adds more context to an event, including "module" and "caller".
func (h contextHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	callStack := stack.Callers()
	callStack = callStack[3:] // Trial and error, there is a test to check it works
	e.Str("caller", callStack[0].SourceFile(true))
	for _, call := range callStack {
		module := call.FunctionName()
		if !strings.HasPrefix(module, stack.ModuleName) {
			continue
		}
		module = strings.SplitN(module, ".", 2)[0]
		e.Str("module", module)
		break
	}
}
