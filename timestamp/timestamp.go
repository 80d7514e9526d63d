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

// Package timestamp normalizes the handful of datetime notations found
// in POS application logs and transaction exports into time.Time values.
// A zero time means "no usable timestamp" - callers must not treat it
// as an error.
package timestamp

import (
	"strings"
	"time"
)

// formats are tried in order; Go's time.Parse accepts a fractional
// second in the input even when the layout has none, so each entry
// covers both the plain and the sub-second variant of its notation.
var formats = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"02/01/06 15:04:05",
	"02/01/2006 15:04:05",
}

// Parse converts a raw datetime string into a time.Time.
// Logger-style values use a comma as the fraction separator
// ("2025-01-03 14:18:32,399") - the comma is normalized to a dot
// before matching. An unrecognized value yields the zero time.
func Parse(value string) time.Time {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}
	}
	v = strings.Replace(v, ",", ".", 1)
	for _, f := range formats {
		if t, err := time.Parse(f, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

// EpochSeconds returns t as fractional Unix seconds. The second return
// value is false for the zero time so callers can map it to a SQL NULL.
func EpochSeconds(t time.Time) (float64, bool) {
	if t.IsZero() {
		return 0, false
	}
	return float64(t.UnixNano()) / float64(time.Second), true
}

// Min returns the earlier of a and b, ignoring zero values.
func Min(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() {
		return a
	}
	if b.Before(a) {
		return b
	}
	return a
}

// Max returns the later of a and b, ignoring zero values.
func Max(a, b time.Time) time.Time {
	if a.IsZero() {
		return b
	}
	if b.IsZero() {
		return a
	}
	if b.After(a) {
		return b
	}
	return a
}
