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

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/oschwald/geoip2-golang"
	"github.com/rs/zerolog/log"

	"poslogproc/aggregate"
	"poslogproc/analysis"
	"poslogproc/config"
	"poslogproc/dialect/generic"
	"poslogproc/dialect/iis"
	"poslogproc/export"
	"poslogproc/load/batch"
	"poslogproc/record"
	"poslogproc/save/sqlite"
	"poslogproc/scripting"
)

// collectRows runs the configured log files through the matching
// dialect driver. IIS sources produce rows only; the generic dialect
// additionally fills the shared transaction map.
func collectRows(
	ctx context.Context,
	conf *config.Main,
) ([]record.Row, *aggregate.TransactionMap, error) {
	files, err := conf.LogFiles.ListFiles()
	if err != nil {
		return nil, nil, err
	}
	log.Info().Int("numFiles", len(files)).Str("srcPath", conf.LogFiles.SrcPath).
		Msg("found files to process")
	tm := aggregate.NewTransactionMap()

	if conf.LogFiles.LogFormat == batch.LogFormatIIS {
		rows, err := collectIISRows(ctx, conf, files)
		return rows, tm, err
	}
	rows, _, _, err := generic.ParseFiles(ctx, files, tm)
	return rows, tm, err
}

func collectIISRows(ctx context.Context, conf *config.Main, files []string) ([]record.Row, error) {
	var geoDB *geoip2.Reader
	if conf.GeoIPDbPath != "" {
		var err error
		geoDB, err = geoip2.Open(conf.GeoIPDbPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open GeoIP database: %w", err)
		}
		defer geoDB.Close()
	}
	parser := iis.NewParser(geoDB)
	var rows []record.Row
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return rows, err
		}
		entries, err := parser.ParseFile(file)
		if err != nil {
			return rows, err
		}
		sourceFile := filepath.Base(file)
		for _, entry := range entries {
			rows = append(rows, entry.Row(sourceFile))
		}
		log.Info().Str("file", file).Int("numRows", len(entries)).Msg("processed IIS log file")
	}
	return rows, nil
}

func runBatch(ctx context.Context, conf *config.Main) {
	rows, tm, err := collectRows(ctx, conf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to process configured log files")
	}

	store, err := sqlite.New(conf.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open the dashboard database")
	}
	defer store.Close()

	if err := store.InsertRows(ctx, rows); err != nil {
		log.Fatal().Err(err).Msg("failed to store rows")
	}

	var env *scripting.Environment
	if conf.ScriptPath != "" {
		env, err = scripting.New(conf.ScriptPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load the customization script")
		}
		defer env.Close()
	}

	for _, rec := range tm.All() {
		if env != nil {
			if err := env.Transform(rec); err != nil {
				log.Error().Err(err).Str("transId", rec.TransID).
					Msg("customization script failed, storing the record unchanged")
			}
		}
		if err := store.UpsertTransaction(ctx, rec); err != nil {
			log.Fatal().Err(err).Msg("failed to store transaction")
		}
	}

	sum := analysis.Summarize(rows, tm.Size())
	runID := uuid.New().String()
	metadata := map[string]string{
		"run_id":           runID,
		"src_path":         conf.LogFiles.SrcPath,
		"run_time":         time.Now().Format(time.RFC3339),
		"num_rows":         fmt.Sprintf("%d", sum.NumRows),
		"num_transactions": fmt.Sprintf("%d", sum.NumTransactions),
	}
	if !sum.FirstTime.IsZero() {
		metadata["first_ts"] = sum.FirstTime.Format(time.RFC3339)
		metadata["last_ts"] = sum.LastTime.Format(time.RFC3339)
	}
	for key, value := range metadata {
		if err := store.StoreMetadata(ctx, key, value); err != nil {
			log.Fatal().Err(err).Msg("failed to store run metadata")
		}
	}
	log.Info().
		Str("runId", runID).
		Int("numRows", sum.NumRows).
		Int("numTransactions", sum.NumTransactions).
		Msg("batch ingestion finished")
}

func runTimeline(ctx context.Context, conf *config.Main) {
	rows, tm, err := collectRows(ctx, conf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to process configured log files")
	}
	sum := analysis.Summarize(rows, tm.Size())
	fmt.Printf("rows: %d\ntransactions: %d\n", sum.NumRows, sum.NumTransactions)
	if !sum.FirstTime.IsZero() {
		fmt.Printf("time range: %s .. %s\n",
			sum.FirstTime.Format(time.RFC3339), sum.LastTime.Format(time.RFC3339))
	}
	for level, count := range sum.LevelCounts {
		fmt.Printf("level %s: %d\n", level, count)
	}
	bursts := analysis.FindBursts(
		analysis.RowTimes(rows),
		conf.BurstMinSize,
		time.Duration(conf.BurstMaxGapSecs)*time.Second,
	)
	for _, burst := range bursts {
		fmt.Printf("burst: %s .. %s (%d rows)\n",
			burst.Start.Format(time.RFC3339), burst.End.Format(time.RFC3339), burst.Size)
	}
}

func runExport(ctx context.Context, conf *config.Main) {
	_, tm, err := collectRows(ctx, conf)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to process configured log files")
	}
	if err := export.WriteWorkbook(conf.ExportPath, tm.All()); err != nil {
		log.Fatal().Err(err).Msg("failed to write the export workbook")
	}
	log.Info().Str("path", conf.ExportPath).Int("numTransactions", tm.Size()).
		Msg("export finished")
}
