//go:build deadlock

// Package syncutil provides the device lock types. This file is compiled
// when building with -tags=deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex serializes access to one reader, with deadlock detection.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex guards state read far more often than written, with deadlock
// detection.
type RWMutex struct {
	deadlock.RWMutex
}
