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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ZaparooProject/go-mfrc522/detection"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
)

const (
	// DefaultPollBudget bounds the ComIrqReg polling of a command.
	DefaultPollBudget = 2000
	// DefaultCRCPollBudget bounds the DivIrqReg polling of a CRC calculation.
	DefaultCRCPollBudget = 5000
	// DefaultAuthPollBudget bounds the Status2Reg polling of MFAuthent.
	DefaultAuthPollBudget = 5000
	// DefaultCommandTimeout is the chip timer budget for a PICC to answer.
	DefaultCommandTimeout = 25 * time.Millisecond

	// timerPrescaler gives a 40 kHz timer (25 us per tick) with TAuto set.
	timerPrescaler = 0xA9
	timerTick      = 25 * time.Microsecond

	softResetAttempts = 3
	softResetDelay    = 50 * time.Millisecond
	hardResetDelay    = 50 * time.Millisecond
)

// DeviceConfig contains configuration options for the Device
type DeviceConfig struct {
	// RetryConfig configures ConnectDevice and the helpers built on Device.
	// Chip operations themselves never retry.
	RetryConfig *RetryConfig
	// PollBudget is the number of ComIrqReg polls before a command times out.
	PollBudget int
	// CRCPollBudget is the number of DivIrqReg polls for a CRC calculation.
	CRCPollBudget int
	// AuthPollBudget is the number of polls allowed for MFAuthent.
	AuthPollBudget int
	// CommandTimeout programs the chip timer that ends a silent transceive.
	CommandTimeout time.Duration
	// AntennaGain is applied by Init.
	AntennaGain AntennaGain
}

// DefaultDeviceConfig returns default device configuration
func DefaultDeviceConfig() *DeviceConfig {
	return &DeviceConfig{
		RetryConfig:    DefaultRetryConfig(),
		PollBudget:     DefaultPollBudget,
		CRCPollBudget:  DefaultCRCPollBudget,
		AuthPollBudget: DefaultAuthPollBudget,
		CommandTimeout: DefaultCommandTimeout,
		AntennaGain:    AntennaGain33dB,
	}
}

// Device represents an MFRC522 reader.
//
// Thread Safety: every exported method holds the device lock for its whole
// duration, so one command is in flight at a time. Separate readers need
// separate Device values with separate transports.
type Device struct {
	transport Transport
	config    *DeviceConfig
	session   *AuthSession
	version   ChipVersion
	mu        syncutil.Mutex
}

// New creates a new MFRC522 device with the given transport. The chip is not
// touched until Init.
func New(transport Transport, opts ...Option) (*Device, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	device := &Device{
		transport: transport,
		config:    DefaultDeviceConfig(),
	}

	for _, opt := range opts {
		if err := opt(device); err != nil {
			return nil, err
		}
	}

	return device, nil
}

// Transport returns the underlying transport
func (d *Device) Transport() Transport {
	return d.transport
}

// Config returns a copy of the device configuration.
func (d *Device) Config() DeviceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return *d.config
}

// SetRetryConfig updates the retry configuration
func (d *Device) SetRetryConfig(config *RetryConfig) {
	d.mu.Lock()
	d.config.RetryConfig = config
	d.mu.Unlock()
}

// Init resets the chip and programs the timer, modulation, CRC preset and
// antenna. It must be called before any PICC operation.
func (d *Device) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.init()
}

func (d *Device) init() error {
	if err := d.reset(); err != nil {
		return err
	}
	return d.configure()
}

// configure programs a freshly reset chip.
func (d *Device) configure() error {
	reload := timerReload(d.config.CommandTimeout)
	setup := []struct {
		reg Register
		val byte
	}{
		{TxModeReg, 0x00},
		{RxModeReg, 0x00},
		{ModWidthReg, 0x26},
		{TModeReg, TModeTAuto},
		{TPrescalerReg, timerPrescaler},
		{TReloadRegH, byte(reload >> 8)},
		{TReloadRegL, byte(reload)},
		{TxASKReg, TxASKForce100},
		{ModeReg, ModeCRCPreset6363},
	}
	for _, s := range setup {
		if err := d.writeRegister(s.reg, s.val); err != nil {
			return err
		}
	}

	if err := d.setAntennaGain(d.config.AntennaGain); err != nil {
		return err
	}
	if err := d.antennaOn(); err != nil {
		return err
	}

	version, err := d.readRegister(VersionReg)
	if err != nil {
		return err
	}
	d.version = ChipVersion(version)
	Debugf("MFRC522 initialized: version %s, timer reload %d", d.version, reload)
	return nil
}

// timerReload converts a timeout into TReload ticks of the 40 kHz timer.
func timerReload(timeout time.Duration) uint16 {
	ticks := timeout / timerTick
	switch {
	case ticks < 1:
		return 1
	case ticks > 0xFFFF:
		return 0xFFFF
	default:
		return uint16(ticks)
	}
}

// Reset performs a hard reset through the NRSTPD pin when the transport
// has one wired and a soft reset otherwise. Any Crypto1 session is lost.
func (d *Device) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reset()
}

func (d *Device) reset() error {
	if _, ok := d.transport.(Resetter); ok {
		err := d.hardReset()
		if !errors.Is(err, ErrResetNotSupported) {
			return err
		}
	}
	return d.softReset()
}

// SoftReset issues the SoftReset command and waits for the oscillator to
// come back. Any Crypto1 session is lost.
func (d *Device) SoftReset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.softReset()
}

func (d *Device) softReset() error {
	d.session = nil
	if err := d.writeRegister(CommandReg, byte(CmdSoftReset)); err != nil {
		return err
	}
	for range softResetAttempts {
		time.Sleep(softResetDelay)
		v, err := d.readRegister(CommandReg)
		if err != nil {
			return err
		}
		if v&CommandPowerDown == 0 {
			return nil
		}
	}
	return statusError(StatusTimeout, "chip still powered down after soft reset")
}

// HardReset pulses NRSTPD. The transport must implement Resetter.
func (d *Device) HardReset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.hardReset()
}

func (d *Device) hardReset() error {
	r, ok := d.transport.(Resetter)
	if !ok {
		return ErrResetNotSupported
	}
	d.session = nil
	if err := r.AssertReset(); err != nil {
		return fmt.Errorf("%w: assert reset: %w", StatusInternalError, err)
	}
	time.Sleep(time.Millisecond)
	if err := r.ReleaseReset(); err != nil {
		return fmt.Errorf("%w: release reset: %w", StatusInternalError, err)
	}
	time.Sleep(hardResetDelay)
	return nil
}

// Version reads VersionReg.
func (d *Device) Version() (ChipVersion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.readRegister(VersionReg)
	if err != nil {
		return 0, err
	}
	d.version = ChipVersion(v)
	return d.version, nil
}

// Close closes the device connection
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.session = nil
	if d.transport != nil {
		if err := d.transport.Close(); err != nil {
			return fmt.Errorf("failed to close transport: %w", err)
		}
	}
	return nil
}

// TransportFactory is a function type for creating transports
type TransportFactory func(path string) (Transport, error)

// TransportFromDeviceFactory creates a transport for a detected device
type TransportFromDeviceFactory func(device detection.DeviceInfo) (Transport, error)

// ConnectOption represents a functional option for ConnectDevice
type ConnectOption func(*connectConfig) error

type connectConfig struct {
	transportFactory       TransportFactory
	transportDeviceFactory TransportFromDeviceFactory
	deviceDetector         func(context.Context, *detection.Options) ([]detection.DeviceInfo, error)
	deviceOptions          []Option
	timeout                time.Duration
	autoDetect             bool
	connectionRetries      int
}

// WithAutoDetection enables automatic device detection instead of using a specific path
func WithAutoDetection() ConnectOption {
	return func(c *connectConfig) error {
		c.autoDetect = true
		return nil
	}
}

// WithDeviceOptions adds device-level options
func WithDeviceOptions(opts ...Option) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceOptions = append(c.deviceOptions, opts...)
		return nil
	}
}

// WithConnectTimeout bounds detection and connection retries.
func WithConnectTimeout(timeout time.Duration) ConnectOption {
	return func(c *connectConfig) error {
		c.timeout = timeout
		return nil
	}
}

// WithTransportFactory sets the transport factory function
func WithTransportFactory(factory TransportFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportFactory = factory
		return nil
	}
}

// WithTransportFromDeviceFactory sets the transport from device factory function
func WithTransportFromDeviceFactory(factory TransportFromDeviceFactory) ConnectOption {
	return func(c *connectConfig) error {
		c.transportDeviceFactory = factory
		return nil
	}
}

// WithConnectionRetries sets the number of connection retry attempts
func WithConnectionRetries(maxAttempts int) ConnectOption {
	return func(c *connectConfig) error {
		if maxAttempts < 1 {
			return fmt.Errorf("connection retries must be at least 1, got %d", maxAttempts)
		}
		c.connectionRetries = maxAttempts
		return nil
	}
}

// WithDeviceDetector sets a custom device detector function for auto-detection
func WithDeviceDetector(
	detector func(context.Context, *detection.Options) ([]detection.DeviceInfo, error),
) ConnectOption {
	return func(c *connectConfig) error {
		c.deviceDetector = detector
		return nil
	}
}

func applyConnectOptions(opts []ConnectOption) (*connectConfig, error) {
	config := &connectConfig{
		timeout:           10 * time.Second,
		connectionRetries: 3,
	}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, fmt.Errorf("failed to apply connect option: %w", err)
		}
	}

	return config, nil
}

// ConnectDevice creates a transport for path (or for the first detected
// reader), initializes the chip and checks that it identifies as an MFRC522
// or a known clone.
//
//	device, err := mfrc522.ConnectDevice(ctx, "/dev/spidev0.0",
//	    mfrc522.WithTransportFactory(func(p string) (mfrc522.Transport, error) {
//	        return spi.New(p)
//	    }))
func ConnectDevice(ctx context.Context, path string, opts ...ConnectOption) (*Device, error) {
	config, err := applyConnectOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to apply connect options: %w", err)
	}

	if config.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.timeout)
		defer cancel()
	}

	transport, err := createTransport(ctx, path, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	device, err := setupDeviceWithRetry(ctx, transport, config)
	if err != nil {
		_ = transport.Close()
		return nil, err
	}

	return device, nil
}

func createTransport(ctx context.Context, path string, config *connectConfig) (Transport, error) {
	if config.autoDetect || path == "" {
		return createAutoDetectedTransport(ctx, config)
	}
	if config.transportFactory == nil {
		return nil, errors.New("transport factory not provided")
	}
	transport, err := config.transportFactory(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create transport for path %s: %w", path, err)
	}
	return transport, nil
}

func createAutoDetectedTransport(ctx context.Context, config *connectConfig) (Transport, error) {
	opts := detection.DefaultOptions()
	opts.Mode = detection.Safe

	detect := config.deviceDetector
	if detect == nil {
		detect = detection.DetectAll
	}
	devices, err := detect(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("failed to detect devices: %w", err)
	}
	if len(devices) == 0 {
		return nil, ErrDeviceNotFound
	}

	if config.transportDeviceFactory == nil {
		return nil, errors.New("transport device factory not provided")
	}
	Debugf("Auto-detected %s", devices[0])
	return config.transportDeviceFactory(devices[0])
}

func setupDevice(transport Transport, config *connectConfig) (*Device, error) {
	device, err := New(transport, config.deviceOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to create device: %w", err)
	}
	if err := device.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize device: %w", err)
	}
	if !device.version.Known() {
		return nil, fmt.Errorf("%w: version register 0x%02X", ErrDeviceNotSupported, byte(device.version))
	}
	return device, nil
}

func setupDeviceWithRetry(ctx context.Context, transport Transport, config *connectConfig) (*Device, error) {
	if config.autoDetect {
		return setupDevice(transport, config)
	}

	retryConfig := &RetryConfig{
		MaxAttempts:       config.connectionRetries,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        500 * time.Millisecond,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
	}

	var device *Device
	err := RetryWithConfig(ctx, retryConfig, func() error {
		var err error
		device, err = setupDevice(transport, config)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to setup device after %d attempts: %w", config.connectionRetries, err)
	}
	return device, nil
}
