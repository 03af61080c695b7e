// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
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

package mfrc522

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

var (
	// debugEnabled controls whether debug output reaches the console logger
	debugEnabled atomic.Bool

	loggerMu sync.RWMutex
	logger   = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}).
			With().Timestamp().Str("component", "mfrc522").Logger()
)

func init() {
	if os.Getenv("MFRC522_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
}

// Debugf logs a debug message. It always goes to the session log (if one is
// open) and to the console logger only when debug mode is enabled.
func Debugf(format string, args ...any) {
	logDebug(fmt.Sprintf(format, args...))
}

// Debugln logs a debug message built like fmt.Sprint.
func Debugln(args ...any) {
	logDebug(fmt.Sprint(args...))
}

func logDebug(message string) {
	if sl := sessionLogger(); sl != nil {
		sl.Debug().Msg(message)
	}
	if debugEnabled.Load() {
		loggerMu.RLock()
		l := logger
		loggerMu.RUnlock()
		l.Debug().Msg(message)
	}
}

// SetDebugEnabled allows programmatic control of debug logging
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// DebugEnabled reports whether console debug logging is on.
func DebugEnabled() bool {
	return debugEnabled.Load()
}

// SetLogger replaces the console logger, letting applications route driver
// output into their own zerolog pipeline.
func SetLogger(l zerolog.Logger) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
}
