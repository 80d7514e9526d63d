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

package config

import (
	"encoding/json"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"poslogproc/common"
	"poslogproc/fsop"
	"poslogproc/load/batch"
)

const (
	ActionBatch    = "batch"
	ActionTimeline = "timeline"
	ActionExport   = "export"
	ActionHelp     = "help"
	ActionVersion  = "version"
)

// Main describes poslogproc's configuration
type Main struct {
	LogFiles    *batch.Conf `json:"logFiles"`
	DBPath      string      `json:"dbPath"`
	GeoIPDbPath string      `json:"geoIpDbPath"`
	ScriptPath  string      `json:"scriptPath"`
	ExportPath  string      `json:"exportPath"`
	LogPath     string      `json:"logPath"`
	LogLevel    string      `json:"logLevel"`

	// BurstMinSize and BurstMaxGapSecs parameterize the timeline burst
	// detection (defaults: 5 rows within 30 seconds of a neighbor).
	BurstMinSize    int `json:"burstMinSize"`
	BurstMaxGapSecs int `json:"burstMaxGapSecs"`
}

// Validate checks for essential config properties and fills in
// defaults.
func Validate(conf *Main, action string) {
	if conf.LogFiles == nil {
		log.Fatal().Msg("missing the `logFiles` configuration section")
	}
	if err := conf.LogFiles.Validate(); err != nil {
		log.Fatal().Err(err).Msg("logFiles validation error")
	}
	if action == ActionBatch && conf.DBPath == "" {
		log.Fatal().Msg("missing configuration `dbPath` for the `batch` action")
	}
	if action == ActionExport && conf.ExportPath == "" {
		log.Fatal().Msg("missing configuration `exportPath` for the `export` action")
	}
	if conf.GeoIPDbPath != "" && !fsop.IsFile(conf.GeoIPDbPath) {
		log.Fatal().Msgf("Invalid geoIpDbPath: '%s'", conf.GeoIPDbPath)
	}
	if conf.ScriptPath != "" && !fsop.IsFile(conf.ScriptPath) {
		log.Fatal().Msgf("Invalid scriptPath: '%s'", conf.ScriptPath)
	}
	if conf.BurstMinSize == 0 {
		conf.BurstMinSize = 5
	}
	if conf.BurstMaxGapSecs == 0 {
		conf.BurstMaxGapSecs = 30
	}
}

// Load loads main configuration (either from a local fs or via
// http(s))
func Load(path string) *Main {
	rawData, err := common.LoadSupportedResource(path)
	if err != nil {
		log.Fatal().Msgf("%s", err)
	}
	var conf Main
	err = json.Unmarshal(rawData, &conf)
	if err != nil {
		log.Fatal().Msgf("%s", err)
	}
	return &conf
}

// SetupLog configures the global zerolog logger according to the
// configuration: level (default info) and either a log file or a
// human-friendly console writer on stderr.
func SetupLog(conf *Main) {
	level, err := zerolog.ParseLevel(conf.LogLevel)
	if err != nil || conf.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}
	if conf.LogPath != "" {
		logf, err := os.OpenFile(conf.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			log.Fatal().Msgf("Failed to initialize log. File: %s", conf.LogPath)
		}
		out = logf
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}
