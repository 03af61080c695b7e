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

package detection

import (
	"time"

	"github.com/ZaparooProject/go-mfrc522/internal/syncutil"
	"github.com/jonboulle/clockwork"
)

// cacheEntry holds cached detection results.
type cacheEntry struct {
	timestamp time.Time
	devices   []DeviceInfo
}

// detectionCache keeps the last results per transport.
type detectionCache struct {
	clock   clockwork.Clock
	entries map[string]cacheEntry
	mu      syncutil.RWMutex
}

var cache = newDetectionCache(clockwork.NewRealClock())

func newDetectionCache(clock clockwork.Clock) *detectionCache {
	return &detectionCache{
		clock:   clock,
		entries: make(map[string]cacheEntry),
	}
}

// get returns a copy of the cached devices if they are younger than ttl.
func (c *detectionCache) get(transport string, ttl time.Duration) ([]DeviceInfo, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[transport]
	if !exists || c.clock.Since(entry.timestamp) > ttl {
		return nil, false
	}
	return cloneDevices(entry.devices), true
}

func (c *detectionCache) set(transport string, devices []DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[transport] = cacheEntry{
		devices:   cloneDevices(devices),
		timestamp: c.clock.Now(),
	}
}

func (c *detectionCache) clear(transport string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if transport == "" {
		c.entries = make(map[string]cacheEntry)
		return
	}
	delete(c.entries, transport)
}

// cloneDevices copies devices including their metadata maps.
func cloneDevices(devices []DeviceInfo) []DeviceInfo {
	out := make([]DeviceInfo, len(devices))
	for i, d := range devices {
		out[i] = d
		if d.Metadata != nil {
			out[i].Metadata = make(map[string]string, len(d.Metadata))
			for k, v := range d.Metadata {
				out[i].Metadata[k] = v
			}
		}
	}
	return out
}

func getCached(transport string, ttl time.Duration) ([]DeviceInfo, bool) {
	return cache.get(transport, ttl)
}

func setCached(transport string, devices []DeviceInfo) {
	cache.set(transport, devices)
}

func clearCache() {
	cache.clear("")
}

func clearCacheForTransport(transport string) {
	cache.clear(transport)
}
