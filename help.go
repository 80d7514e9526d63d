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

package main

import "poslogproc/config"

var helpTexts = map[string]string{

	config.ActionBatch: `Batch processes the configured log files and stores both raw rows
and aggregated transactions into the configured SQLite database.
The source may be a single file or a directory (optionally filtered
by filePattern/fromMtime). Generic POS logs, whole-file XML exports
and prom*.xml vendor exports are detected automatically; set
logFormat to "iis" for IIS W3C extended logs (with optional GeoIP
enrichment via geoIpDbPath). When scriptPath is set, each finalized
transaction is passed through the script's transform() function
before it is stored.`,

	config.ActionTimeline: `Timeline processes the configured log files and prints overall
statistics: row/transaction counts, the covered time range,
per-level counts and activity bursts (dense groups of row
timestamps). Burst detection is parameterized by burstMinSize and
burstMaxGapSecs. Nothing is written to the database.`,

	config.ActionExport: `Export processes the configured log files and writes the
aggregated transactions into an XLSX workbook at exportPath, with
one sheet for transactions and one for their items.`,
}
