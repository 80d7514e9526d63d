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

// Package analysis derives timeline statistics from ingested rows:
// per-level counts, time range and activity bursts (dense clusters of
// row timestamps found via DBSCAN) the dashboard timeline highlights.
package analysis

import (
	"math"
	"sort"
	"time"

	"github.com/kelindar/dbscan"

	"poslogproc/record"
	"poslogproc/timestamp"
)

type clusterablePoint struct {
	t time.Time
}

func (cp clusterablePoint) DistanceTo(other dbscan.Point) float64 {
	return math.Abs((other.(clusterablePoint)).t.Sub(cp.t).Seconds())
}

func (cp clusterablePoint) Name() string {
	return cp.t.Format(time.RFC3339)
}

// Burst is a dense group of row timestamps.
type Burst struct {
	Start time.Time
	End   time.Time
	Size  int
}

// Duration returns the time span covered by the burst.
func (b Burst) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// FindBursts clusters the given timestamps with DBSCAN: a burst is a
// group of at least minSize timestamps where each member has a
// neighbor within maxGap. Bursts come back ordered by start time.
func FindBursts(timestamps []time.Time, minSize int, maxGap time.Duration) []Burst {
	points := make([]dbscan.Point, 0, len(timestamps))
	for _, t := range timestamps {
		if t.IsZero() {
			continue
		}
		points = append(points, clusterablePoint{t: t})
	}
	if len(points) == 0 {
		return nil
	}
	clusters := dbscan.Cluster(minSize, maxGap.Seconds(), points...)

	bursts := make([]Burst, 0, len(clusters))
	for _, cl := range clusters {
		var start, end time.Time
		for _, p := range cl {
			t := p.(clusterablePoint).t
			start = timestamp.Min(start, t)
			end = timestamp.Max(end, t)
		}
		bursts = append(bursts, Burst{Start: start, End: end, Size: len(cl)})
	}
	sort.Slice(bursts, func(i, j int) bool {
		return bursts[i].Start.Before(bursts[j].Start)
	})
	return bursts
}

// Summary describes the ingested row set for the dashboard header.
type Summary struct {
	NumRows         int
	NumTransactions int
	FirstTime       time.Time
	LastTime        time.Time
	LevelCounts     map[string]int
}

// Summarize computes the overall statistics of a row set.
func Summarize(rows []record.Row, numTransactions int) Summary {
	sum := Summary{
		NumRows:         len(rows),
		NumTransactions: numTransactions,
		LevelCounts:     make(map[string]int),
	}
	for _, row := range rows {
		if row.LogLevel != "" {
			sum.LevelCounts[row.LogLevel]++
		}
		sum.FirstTime = timestamp.Min(sum.FirstTime, row.Time)
		sum.LastTime = timestamp.Max(sum.LastTime, row.Time)
	}
	return sum
}

// RowTimes extracts the non-zero timestamps of a row set.
func RowTimes(rows []record.Row) []time.Time {
	var times []time.Time
	for _, row := range rows {
		if row.HasTime() {
			times = append(times, row.Time)
		}
	}
	return times
}
