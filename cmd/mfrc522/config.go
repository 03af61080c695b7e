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

package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

const (
	modeScan      = "scan"
	modeSelfTest  = "selftest"
	modeDump      = "dump"
	modeWriteText = "write-text"
)

var errUsage = errors.New("usage error")

// Config is the resolved reader configuration.
type Config struct {
	Device    string
	Transport string
	ResetPin  string
	LogFile   string
	Keys      []string
	Interval  time.Duration
	Timeout   time.Duration
	Debug     bool
}

// defaultConfig returns the built-in settings.
func defaultConfig() Config {
	return Config{
		Interval: 100 * time.Millisecond,
		Timeout:  30 * time.Second,
	}
}

// fileConfig is the TOML layout of a config file. Durations are written the
// way time.ParseDuration reads them.
type fileConfig struct {
	Debug        *bool    `toml:"debug"`
	Device       string   `toml:"device"`
	Transport    string   `toml:"transport"`
	ResetPin     string   `toml:"reset_pin"`
	LogFile      string   `toml:"log_file"`
	PollInterval string   `toml:"poll_interval"`
	Timeout      string   `toml:"timeout"`
	Keys         []string `toml:"keys"`
}

// options is the parsed command line.
type options struct {
	mode     string
	text     string
	language string
	config   Config
}

// loadConfigFile merges the TOML file at path into cfg.
func loadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from the user
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return fc.apply(cfg)
}

func (fc *fileConfig) apply(cfg *Config) error {
	for _, s := range []struct {
		dst *string
		val string
	}{
		{&cfg.Device, fc.Device},
		{&cfg.Transport, fc.Transport},
		{&cfg.ResetPin, fc.ResetPin},
		{&cfg.LogFile, fc.LogFile},
	} {
		if s.val != "" {
			*s.dst = s.val
		}
	}
	if len(fc.Keys) > 0 {
		cfg.Keys = fc.Keys
	}
	if fc.Debug != nil {
		cfg.Debug = *fc.Debug
	}
	if fc.PollInterval != "" {
		d, err := time.ParseDuration(fc.PollInterval)
		if err != nil {
			return fmt.Errorf("invalid poll_interval: %w", err)
		}
		cfg.Interval = d
	}
	if fc.Timeout != "" {
		d, err := time.ParseDuration(fc.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		cfg.Timeout = d
	}
	return nil
}

// parseArgs parses the command line. The first positional argument selects
// the mode; write-text takes the text as the second one.
func parseArgs(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("mfrc522", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		_, _ = fmt.Fprintf(stderr, "Usage: mfrc522 [flags] <%s|%s|%s|%s TEXT>\n\n",
			modeScan, modeSelfTest, modeDump, modeWriteText)
		fs.PrintDefaults()
	}

	var (
		configPath string
		flagCfg    Config
		keys       string
		language   string
	)
	fs.StringVar(&configPath, "config", "", "TOML config file")
	fs.StringVar(&flagCfg.Device, "device", "", "Device path (auto-detect if empty)")
	fs.StringVar(&flagCfg.Transport, "transport", "", "Transport for -device: spi, i2c or uart (guessed from the path if empty)")
	fs.StringVar(&flagCfg.ResetPin, "reset-pin", "", "GPIO wired to NRSTPD for SPI readers")
	fs.StringVar(&flagCfg.LogFile, "log-file", "", "Also write logs to this rotating file")
	fs.StringVar(&keys, "keys", "", "Comma separated MIFARE Classic keys in hex, tried before the defaults")
	fs.DurationVar(&flagCfg.Interval, "interval", 0, "Poll interval for scan")
	fs.DurationVar(&flagCfg.Timeout, "timeout", 0, "How long dump and write-text wait for a tag")
	fs.BoolVar(&flagCfg.Debug, "debug", false, "Enable debug output")
	fs.StringVar(&language, "lang", "en", "Language code for write-text")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}

	cfg := defaultConfig()
	if configPath != "" {
		if err := loadConfigFile(configPath, &cfg); err != nil {
			return nil, err
		}
	}

	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			cfg.Device = flagCfg.Device
		case "transport":
			cfg.Transport = flagCfg.Transport
		case "reset-pin":
			cfg.ResetPin = flagCfg.ResetPin
		case "log-file":
			cfg.LogFile = flagCfg.LogFile
		case "keys":
			cfg.Keys = splitList(keys)
		case "interval":
			cfg.Interval = flagCfg.Interval
		case "timeout":
			cfg.Timeout = flagCfg.Timeout
		case "debug":
			cfg.Debug = flagCfg.Debug
		}
	})

	opts := &options{mode: modeScan, language: language, config: cfg}
	rest := fs.Args()
	if len(rest) > 0 {
		opts.mode = rest[0]
		rest = rest[1:]
	}

	switch opts.mode {
	case modeScan, modeSelfTest, modeDump:
		if len(rest) > 0 {
			return nil, fmt.Errorf("%w: unexpected arguments %q", errUsage, rest)
		}
	case modeWriteText:
		if len(rest) != 1 || rest[0] == "" {
			return nil, fmt.Errorf("%w: %s needs exactly one text argument", errUsage, modeWriteText)
		}
		opts.text = rest[0]
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", errUsage, opts.mode)
	}

	return opts, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setupLogging points the global zerolog logger at stderr and, when
// configured, at a rotating log file. The returned closer flushes the file.
func setupLogging(cfg *Config, stderr io.Writer) io.Closer {
	level := zerolog.InfoLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05.000"}}
	var closer io.Closer = nopCloser{}
	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    1,
			MaxBackups: 2,
		}
		writers = append(writers, lj)
		closer = lj
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).With().Timestamp().Logger()
	log.Logger = logger
	mfrc522.SetLogger(logger.With().Str("component", "mfrc522").Logger())
	mfrc522.SetDebugEnabled(cfg.Debug)
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
