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

package polling

import (
	"time"

	"github.com/ZaparooProject/go-mfrc522"
)

// CardState tracks the card currently in the field
type CardState struct {
	DetectedAt time.Time
	LastSeen   time.Time
	UID        *mfrc522.UID
	Misses     int
}

// Present reports whether a card is being tracked. It works on the copies
// Monitor.State returns.
func (cs CardState) Present() bool {
	return cs.UID != nil
}

// TransitionToDetected starts tracking uid.
func (cs *CardState) TransitionToDetected(uid *mfrc522.UID, now time.Time) {
	cs.UID = uid
	cs.DetectedAt = now
	cs.LastSeen = now
	cs.Misses = 0
}

// MarkSeen records that the tracked card answered a scan.
func (cs *CardState) MarkSeen(now time.Time) {
	cs.LastSeen = now
	cs.Misses = 0
}

// MarkMissed records a scan the tracked card did not answer and reports
// whether it now counts as removed.
func (cs *CardState) MarkMissed(limit int) bool {
	cs.Misses++
	return cs.Misses >= limit
}

// TransitionToIdle forgets the tracked card.
func (cs *CardState) TransitionToIdle() {
	*cs = CardState{}
}

func (cs *CardState) clone() CardState {
	out := *cs
	if cs.UID != nil {
		uid := *cs.UID
		uid.Bytes = append([]byte(nil), cs.UID.Bytes...)
		out.UID = &uid
	}
	return out
}
