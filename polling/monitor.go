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

// Package polling watches the field of an MFRC522 for cards arriving and
// leaving.
package polling

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-mfrc522"
	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"github.com/jonboulle/clockwork"
)

// ErrAlreadyRunning is returned by Start on a running Monitor.
var ErrAlreadyRunning = errors.New("monitor already running")

// Metrics is a snapshot of the Monitor counters.
type Metrics struct {
	Polls          uint64
	Detections     uint64
	Removals       uint64
	Errors         uint64
	Recoveries     uint64
	CallbackErrors uint64
}

type counters struct {
	polls          atomic.Uint64
	detections     atomic.Uint64
	removals       atomic.Uint64
	errors         atomic.Uint64
	recoveries     atomic.Uint64
	callbackErrors atomic.Uint64
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock sets the clock driving the poll ticker and sleep detection.
func WithClock(clock clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = clock
	}
}

// WithRecoverer replaces the default recoverer, which re-initializes the
// chip over the same transport.
func WithRecoverer(r DeviceRecoverer) Option {
	return func(m *Monitor) {
		m.recoverer = r
	}
}

// Monitor polls a Device for cards. A new card is found with REQA and a
// full anti-collision, the card being tracked is checked with WUPA and a
// select by UID. The card is halted after every scan so REQA only ever
// answers for cards that were not seen yet.
type Monitor struct {
	onDetected func(uid *mfrc522.UID) error
	onRemoved  func(uid *mfrc522.UID)
	onError    func(err error)
	clock      clockwork.Clock
	recoverer  DeviceRecoverer
	device     *mfrc522.Device
	cancel     context.CancelFunc
	done       chan struct{}
	err        error
	lastPoll   time.Time
	state      CardState
	config     Config
	metrics    counters
	errorRun   int
	stateMu    syncutil.RWMutex
	runMu      syncutil.Mutex
	paused     atomic.Bool
}

// NewMonitor creates a monitor for device. A nil config uses DefaultConfig.
func NewMonitor(device *mfrc522.Device, config *Config, opts ...Option) *Monitor {
	m := &Monitor{
		device: device,
		config: config.normalized(),
		clock:  clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.recoverer == nil {
		r := NewDefaultRecoverer(device, nil,
			m.config.SleepRecovery.RecoveryBackoff, m.config.SleepRecovery.MaxRecoveryAttempts)
		r.clock = m.clock
		m.recoverer = r
	}
	return m
}

// SetOnCardDetected sets the callback for a newly selected card. The card is
// ACTIVE while the callback runs, so it may read or authenticate.
func (m *Monitor) SetOnCardDetected(callback func(uid *mfrc522.UID) error) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.onDetected = callback
}

// SetOnCardRemoved sets the callback for when the tracked card leaves the
// field.
func (m *Monitor) SetOnCardRemoved(callback func(uid *mfrc522.UID)) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.onRemoved = callback
}

// SetOnError sets the callback for the error that stops the polling loop.
func (m *Monitor) SetOnError(callback func(err error)) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.onError = callback
}

// Device returns the device being polled. It may change after a recovery
// that reopened the reader.
func (m *Monitor) Device() *mfrc522.Device {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.device
}

// State returns the tracked card.
func (m *Monitor) State() CardState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state.clone()
}

// Metrics returns the counters collected so far.
func (m *Monitor) Metrics() Metrics {
	return Metrics{
		Polls:          m.metrics.polls.Load(),
		Detections:     m.metrics.detections.Load(),
		Removals:       m.metrics.removals.Load(),
		Errors:         m.metrics.errors.Load(),
		Recoveries:     m.metrics.recoveries.Load(),
		CallbackErrors: m.metrics.callbackErrors.Load(),
	}
}

// Start launches the polling loop. It runs until ctx is done, Stop is
// called or recovery from a device failure gives up.
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	ticker := m.clock.NewTicker(m.config.PollInterval)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.err = nil
	m.lastPoll = m.clock.Now()
	go m.run(ctx, ticker, m.done)
	return nil
}

// Stop ends the polling loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
	m.cancel = nil
}

// Done is closed when the polling loop exits.
func (m *Monitor) Done() <-chan struct{} {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.done
}

// Err returns the error that ended the polling loop, if any.
func (m *Monitor) Err() error {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.err
}

// Pause suspends polling, e.g. while the application writes to a card.
func (m *Monitor) Pause() {
	m.paused.Store(true)
}

// Resume continues polling after Pause.
func (m *Monitor) Resume() {
	m.paused.Store(false)
}

func (m *Monitor) run(ctx context.Context, ticker clockwork.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := m.tick(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.stateMu.Lock()
				m.err = err
				cb := m.onError
				m.stateMu.Unlock()
				mfrc522.Debugf("Polling stopped: %v", err)
				if cb != nil {
					cb(err)
				}
				return
			}
		}
	}
}

func (m *Monitor) tick(ctx context.Context) error {
	if m.paused.Load() {
		m.lastPoll = m.clock.Now()
		return nil
	}
	return m.Poll(ctx)
}

// Poll runs one scan of the field. It is what the polling loop runs on
// every tick and must not be called while the loop is running. Only an
// unrecoverable device failure is returned.
func (m *Monitor) Poll(ctx context.Context) error {
	now := m.clock.Now()
	if !m.lastPoll.IsZero() && m.config.SleepRecovery.DetectSleep(now.Sub(m.lastPoll), m.config.PollInterval) {
		mfrc522.Debugf("Poll gap of %v, assuming host sleep", now.Sub(m.lastPoll))
		if err := m.recover(ctx); err != nil {
			return err
		}
	}
	m.lastPoll = now
	m.metrics.polls.Add(1)

	m.stateMu.RLock()
	current := m.state.UID
	m.stateMu.RUnlock()

	var err error
	if current == nil {
		err = m.scanForCard(now)
	} else {
		err = m.checkPresence(current, now)
	}
	return m.handleScanError(ctx, err)
}

func (m *Monitor) scanForCard(now time.Time) error {
	device := m.Device()
	uid, err := device.Select()
	if err != nil {
		if errors.Is(err, mfrc522.StatusTimeout) {
			return nil
		}
		return err
	}

	m.stateMu.Lock()
	m.state.TransitionToDetected(uid, now)
	cb := m.onDetected
	m.stateMu.Unlock()
	m.metrics.detections.Add(1)
	mfrc522.Debugf("Card %s detected (%s)", uid, uid.Type())

	if cb != nil {
		if cbErr := cb(uid); cbErr != nil {
			m.metrics.callbackErrors.Add(1)
			mfrc522.Debugf("Card detected callback failed: %v", cbErr)
		}
	}
	return halt(device)
}

func (m *Monitor) checkPresence(current *mfrc522.UID, now time.Time) error {
	device := m.Device()
	uid, err := device.Reselect(current)
	if err == nil && uid.Equal(current) {
		m.stateMu.Lock()
		m.state.MarkSeen(now)
		m.stateMu.Unlock()
		return halt(device)
	}
	if isDeviceError(err) {
		return err
	}

	m.stateMu.Lock()
	removed := m.state.MarkMissed(m.config.RemovalMisses)
	cb := m.onRemoved
	if removed {
		m.state.TransitionToIdle()
	}
	m.stateMu.Unlock()

	if removed {
		m.metrics.removals.Add(1)
		mfrc522.Debugf("Card %s removed", current)
		if cb != nil {
			cb(current)
		}
	}
	return nil
}

// halt puts the selected card to sleep and leaves any Crypto1 session the
// callback may have opened.
func halt(device *mfrc522.Device) error {
	err := device.HaltA()
	if device.Session() != nil {
		if stopErr := device.StopCrypto1(); stopErr != nil && err == nil {
			err = stopErr
		}
	}
	if isDeviceError(err) {
		return err
	}
	return nil
}

func isDeviceError(err error) bool {
	var te *mfrc522.TransportError
	return errors.As(err, &te)
}

func (m *Monitor) handleScanError(ctx context.Context, err error) error {
	if err == nil {
		m.errorRun = 0
		return nil
	}
	if !isDeviceError(err) {
		mfrc522.Debugf("Scan failed: %v", err)
		return nil
	}

	m.metrics.errors.Add(1)
	m.errorRun++
	mfrc522.Debugf("Device error %d in a row: %v", m.errorRun, err)
	if m.config.MaxConsecutiveErrors == 0 || m.errorRun < m.config.MaxConsecutiveErrors {
		return nil
	}
	m.errorRun = 0
	return m.recover(ctx)
}

func (m *Monitor) recover(ctx context.Context) error {
	if err := m.recoverer.AttemptRecovery(ctx); err != nil {
		return fmt.Errorf("device recovery failed: %w", err)
	}
	m.metrics.recoveries.Add(1)

	m.stateMu.Lock()
	m.device = m.recoverer.GetDevice()
	m.stateMu.Unlock()
	return nil
}
