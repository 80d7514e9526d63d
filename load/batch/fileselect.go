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

// Package batch selects the log files a single ingestion run should
// process - either one explicitly configured file or a directory
// filtered by file name pattern and modification time.
package batch

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"poslogproc/fsop"
)

// LogFormatGeneric and LogFormatIIS select the dialect driver a
// configured source uses.
const (
	LogFormatGeneric = "generic"
	LogFormatIIS     = "iis"
)

// Conf represents a configuration for a single batch ingestion task.
type Conf struct {
	SrcPath string `json:"srcPath"`

	// FilePattern is an optional file name glob (e.g. "*.log") applied
	// when SrcPath is a directory.
	FilePattern string `json:"filePattern"`

	// FromMtime, when set (RFC 3339), skips files last modified before
	// the given time.
	FromMtime string `json:"fromMtime"`

	// LogFormat is either "generic" (default) or "iis".
	LogFormat string `json:"logFormat"`
}

// Validate checks the configuration and fills in defaults.
func (c *Conf) Validate() error {
	if c.SrcPath == "" {
		return fmt.Errorf("missing srcPath")
	}
	if !fsop.IsFile(c.SrcPath) && !fsop.IsDir(c.SrcPath) {
		return fmt.Errorf("srcPath %s is neither a file nor a directory", c.SrcPath)
	}
	if c.FilePattern != "" {
		if _, err := filepath.Match(c.FilePattern, "probe"); err != nil {
			return fmt.Errorf("invalid filePattern %s: %w", c.FilePattern, err)
		}
	}
	if c.LogFormat == "" {
		c.LogFormat = LogFormatGeneric
	}
	if c.LogFormat != LogFormatGeneric && c.LogFormat != LogFormatIIS {
		return fmt.Errorf("unknown logFormat %s", c.LogFormat)
	}
	if c.FromMtime != "" {
		if _, err := time.Parse(time.RFC3339, c.FromMtime); err != nil {
			return fmt.Errorf("invalid fromMtime %s: %w", c.FromMtime, err)
		}
	}
	return nil
}

func (c *Conf) fromMtime() time.Time {
	if c.FromMtime == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, c.FromMtime)
	return t
}

// ListFiles resolves the configured source to the list of files to
// process, sorted by name. Directory entries not matching the
// configured pattern or older than fromMtime are skipped.
func (c *Conf) ListFiles() ([]string, error) {
	if fsop.IsFile(c.SrcPath) {
		return []string{c.SrcPath}, nil
	}
	entries, err := os.ReadDir(c.SrcPath)
	if err != nil {
		return nil, fmt.Errorf("failed to list source directory: %w", err)
	}
	minMtime := c.fromMtime()
	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if c.FilePattern != "" {
			matches, _ := filepath.Match(c.FilePattern, entry.Name())
			if !matches {
				continue
			}
		}
		fullPath := filepath.Join(c.SrcPath, entry.Name())
		if !minMtime.IsZero() && fsop.GetFileMtime(fullPath).Before(minMtime) {
			log.Debug().Str("file", fullPath).Msg("skipping file older than fromMtime")
			continue
		}
		files = append(files, fullPath)
	}
	sort.Strings(files)
	return files, nil
}
