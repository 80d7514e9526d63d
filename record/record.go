// Copyright 2025 Petr Havelka <petr.havelka.dev@gmail.com>
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package record defines the per-line output record shared by all
// log dialect drivers.
package record

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"poslogproc/timestamp"
)

// Row is a single materialized log line (or synthesized file-level
// entry) ready to be written to the sink. Time is the zero value when
// the source line carried no recognizable timestamp.
type Row struct {
	RawLine       string    `json:"rawLine"`
	Time          time.Time `json:"-"`
	LogLevel      string    `json:"logLevel"`
	TransIDs      []string  `json:"transIds"`
	SourceFile    string    `json:"sourceFile"`
	IsTransaction bool      `json:"isTransaction"`
}

// HasTime tests whether the row carries a usable timestamp.
func (r *Row) HasTime() bool {
	return !r.Time.IsZero()
}

// GetTime returns the row timestamp (zero when absent).
func (r *Row) GetTime() time.Time {
	return r.Time
}

// EpochSeconds returns the row timestamp as fractional Unix seconds;
// ok is false when the row has no timestamp (maps to SQL NULL).
func (r *Row) EpochSeconds() (float64, bool) {
	return timestamp.EpochSeconds(r.Time)
}

// TransIDList returns the attached transaction IDs joined with commas,
// the form the sink and exports store them in.
func (r *Row) TransIDList() string {
	return strings.Join(r.TransIDs, ",")
}

// ID derives a stable identifier for deduplication purposes.
func (r *Row) ID() string {
	sum := sha1.Sum([]byte(r.SourceFile + "\n" + r.RawLine + "\n" + r.Time.Format(time.RFC3339Nano)))
	return hex.EncodeToString(sum[:])
}

// ToJSON converts self to a JSON string.
func (r *Row) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}
