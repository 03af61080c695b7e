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
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Session log state
var (
	sessionMu      sync.Mutex
	sessionLogFile *os.File
	sessionLogPath string
	sessionLog     *zerolog.Logger
)

// InitSessionLog creates a JSON session log in dir (the current directory
// when empty) that records every debug message regardless of debug mode.
// Returns the log file path for display to the user.
func InitSessionLog(dir string) (string, error) {
	filename := fmt.Sprintf("mfrc522_%s.log", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, filename)

	logFile, err := os.Create(path) //nolint:gosec // filename is constructed internally
	if err != nil {
		return "", fmt.Errorf("failed to create session log: %w", err)
	}

	l := zerolog.New(logFile).With().Timestamp().Logger()
	writeSessionHeader(&l)

	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionLogFile != nil {
		_ = sessionLogFile.Close()
	}
	sessionLogFile = logFile
	sessionLogPath = path
	sessionLog = &l
	return path, nil
}

// CloseSessionLog closes the current session log file.
func CloseSessionLog() error {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	if sessionLogFile == nil {
		return nil
	}

	sessionLog.Info().Msg("session ended")
	err := sessionLogFile.Close()
	sessionLogFile = nil
	sessionLogPath = ""
	sessionLog = nil
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return sessionLogPath
}

func sessionLogger() *zerolog.Logger {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return sessionLog
}

func writeSessionHeader(l *zerolog.Logger) {
	ev := l.Info().
		Int("pid", os.Getpid()).
		Str("os", runtime.GOOS+"/"+runtime.GOARCH).
		Str("go", runtime.Version()).
		Str("cmdline", strings.Join(os.Args, " "))
	if exe, err := os.Executable(); err == nil {
		ev = ev.Str("executable", exe)
	}
	ev.Msg("MFRC522 debug session started")
}
