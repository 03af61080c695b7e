//go:build !deadlock

// Package syncutil provides the device lock types. Default builds use the
// standard library; building with -tags=deadlock swaps in
// github.com/sasha-s/go-deadlock so a command stuck holding the chip shows
// up as a lock-order report instead of a silent hang.
package syncutil

import "sync"

// Mutex serializes access to one reader.
//
//nolint:gocritic // embedding exposes Lock and Unlock
type Mutex struct {
	sync.Mutex
}

// RWMutex guards state read far more often than written.
//
//nolint:gocritic // embedding exposes the lock methods
type RWMutex struct {
	sync.RWMutex
}
