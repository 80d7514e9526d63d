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
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/czcorpus/cnc-gokit/collections"

	"poslogproc/config"
)

var (
	version   string
	buildDate string
	gitCommit string
)

var confActions = []string{
	config.ActionBatch, config.ActionTimeline, config.ActionExport,
}

func help(topic string) {
	if topic == "" {
		fmt.Printf("Missing action to help with. Select one of the: %s\n",
			strings.Join(confActions, ", "))
		return
	}
	fmt.Printf("\n[%s]\n\n", topic)
	if text, ok := helpTexts[topic]; ok {
		fmt.Println(text)

	} else {
		fmt.Println("- no information available -")
	}
	fmt.Println()
}

func setup(confPath, action string) *config.Main {
	conf := config.Load(confPath)
	config.Validate(conf, action)
	config.SetupLog(conf)
	return conf
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr,
			"Poslogproc - a utility for parsing POS terminal logs into a dashboard database\n\n"+
				"Usage:\n\t%s [options] [action] [config.json]\n\n"+
				"Available actions:\n\t%s\n\nOptions:\n",
			filepath.Base(os.Args[0]),
			strings.Join(append(confActions, config.ActionVersion, config.ActionHelp), ", "))
		flag.PrintDefaults()
	}
	flag.Parse()
	action := flag.Arg(0)

	switch {
	case action == config.ActionHelp:
		help(flag.Arg(1))
	case action == config.ActionVersion:
		fmt.Printf("Poslogproc %s\nbuild date: %s\nlast commit: %s\n",
			version, buildDate, gitCommit)
	case collections.SliceContains(confActions, action):
		conf := setup(flag.Arg(1), action)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		switch action {
		case config.ActionBatch:
			runBatch(ctx, conf)
		case config.ActionTimeline:
			runTimeline(ctx, conf)
		case config.ActionExport:
			runExport(ctx, conf)
		}
	default:
		fmt.Printf("Unknown action [%s]. Try -h for help\n", action)
		os.Exit(1)
	}
}
