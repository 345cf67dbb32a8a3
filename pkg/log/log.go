// Copyright 2024 The Shadow-Go Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log is a thin, package-level leveled logger matching spec.md §7's
// {ERROR, WARNING, INFO, DEBUG, TRACE} level set. It wraps logrus rather
// than hand-rolling formatting, the same way the rest of the pack reaches
// for logrus for structured output.
package log

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Level is one of spec.md §7's five severities, ordered least to most
// verbose.
type Level uint32

const (
	Error Level = iota
	Warning
	Info
	Debug
	Trace
)

var logrusLevels = [...]logrus.Level{
	Error:   logrus.ErrorLevel,
	Warning: logrus.WarnLevel,
	Info:    logrus.InfoLevel,
	Debug:   logrus.DebugLevel,
	Trace:   logrus.TraceLevel,
}

// ParseLevel parses the SHADOW_LOG_LEVEL values (0..5) from spec.md §6.
func ParseLevel(n int) Level {
	switch {
	case n <= 0:
		return Error
	case n == 1:
		return Warning
	case n == 2:
		return Info
	case n == 3:
		return Debug
	default:
		return Trace
	}
}

var std = logrus.New()

func init() {
	std.SetOutput(os.Stderr)
	std.SetLevel(logrus.InfoLevel)
	std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// SetLevel adjusts the minimum level that will be emitted.
func SetLevel(l Level) {
	std.SetLevel(logrusLevels[l])
}

// SetOutput redirects log output, e.g. to the shim's SHADOW_LOG_FILE.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

// Errorf logs at ERROR.
func Errorf(format string, args ...interface{}) { std.Errorf(format, args...) }

// Warningf logs at WARNING.
func Warningf(format string, args ...interface{}) { std.Warnf(format, args...) }

// Infof logs at INFO.
func Infof(format string, args ...interface{}) { std.Infof(format, args...) }

// Debugf logs at DEBUG.
func Debugf(format string, args ...interface{}) { std.Debugf(format, args...) }

// Tracef logs at TRACE.
func Tracef(format string, args ...interface{}) { std.Tracef(format, args...) }

// Panicf logs at ERROR and then panics, matching the original `panic()`
// helper's "log then abort" behavior for unrecoverable shim/IPC faults.
func Panicf(format string, args ...interface{}) {
	std.Errorf(format, args...)
	panic(fmt.Sprintf(format, args...))
}
