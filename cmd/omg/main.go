// Copyright 2016 Google Inc. All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command omg compiles pattern lists and matches them against
// haystacks:
//
//	omg compile [flags] COMPILED PATTERNS
//	omg match [flags] COMPILED HAYSTACK
//
// Match output is one match per line, "<offset>:<matched-bytes>".
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/peterbourgon/ff/v3/ffcli"
	sglog "github.com/sourcegraph/log"
	_ "go.uber.org/automaxprocs"

	"github.com/omgmatch/omgmatch"
)

const outputBufferSize = 256 * 1024

type transformFlags struct {
	ignoreCase  bool
	ignorePunct bool
	elideWS     bool
}

func (t *transformFlags) register(fs *flag.FlagSet) {
	fs.BoolVar(&t.ignoreCase, "ignore-case", false, "ignore case")
	fs.BoolVar(&t.ignorePunct, "ignore-punctuation", false, "ignore punctuation")
	fs.BoolVar(&t.elideWS, "elide-whitespace", false, "collapse whitespace runs")
}

func (t *transformFlags) bits() uint32 {
	var flags uint32
	if t.ignoreCase {
		flags |= omgmatch.FlagIgnoreCase
	}
	if t.ignorePunct {
		flags |= omgmatch.FlagIgnorePunctuation
	}
	if t.elideWS {
		flags |= omgmatch.FlagElideWhitespace
	}
	return flags
}

func compileCmd() *ffcli.Command {
	fs := flag.NewFlagSet("omg compile", flag.ExitOnError)
	var tf transformFlags
	tf.register(fs)
	verbose := fs.Bool("v", false, "verbose output")

	return &ffcli.Command{
		Name:       "compile",
		ShortUsage: "omg compile [flags] COMPILED PATTERNS",
		ShortHelp:  "compile a newline-separated pattern file into an index",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return flag.ErrHelp
			}
			stats, err := omgmatch.CompilePatternsFile(args[0], args[1], tf.bits())
			if err != nil {
				return err
			}
			if *verbose {
				printPatternStoreStats(os.Stderr, stats)
			}
			return nil
		},
	}
}

func matchCmd() *ffcli.Command {
	fs := flag.NewFlagSet("omg match", flag.ExitOnError)
	var tf transformFlags
	tf.register(fs)
	var opts omgmatch.MatchOptions
	fs.BoolVar(&opts.LongestOnly, "longest", false, "only return the longest match at each offset")
	fs.BoolVar(&opts.NoOverlap, "no-overlap", false, "suppress overlapping matches")
	fs.BoolVar(&opts.WordBoundary, "word-boundary", false, "only match at word boundaries")
	fs.BoolVar(&opts.WordPrefix, "word-prefix", false, "only match at word prefixes")
	fs.BoolVar(&opts.WordSuffix, "word-suffix", false, "only match at word suffixes")
	fs.BoolVar(&opts.LineStart, "line-start", false, "only match at the start of a line")
	fs.BoolVar(&opts.LineEnd, "line-end", false, "only match at the end of a line")
	threads := fs.Int("threads", 0, "number of scan workers (0 = all CPUs)")
	chunkSize := fs.Int("chunk-size", 0, "scan partition chunk size (0 = default)")
	output := fs.String("o", "", "write results to `FILE` instead of stdout")
	verbose := fs.Bool("v", false, "verbose output")

	return &ffcli.Command{
		Name:       "match",
		ShortUsage: "omg match [flags] COMPILED HAYSTACK",
		ShortHelp:  "report every pattern occurrence in a haystack",
		FlagSet:    fs,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 2 {
				return flag.ErrHelp
			}

			matcher, err := omgmatch.NewMatcherAuto(args[0], tf.bits())
			if err != nil {
				return err
			}
			defer matcher.Close()

			if err := matcher.SetThreads(*threads); err != nil {
				return err
			}
			if err := matcher.SetChunkSize(*chunkSize); err != nil {
				return err
			}

			var stats omgmatch.Stats
			matcher.AddStats(&stats)

			haystack, closeMap, err := omgmatch.MapFile(args[1])
			if err != nil {
				return err
			}
			defer closeMap()

			matches, err := matcher.Scan(haystack, opts)
			if err != nil {
				return err
			}

			out := io.Writer(os.Stdout)
			if *output != "" {
				f, err := os.Create(*output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			if err := printMatches(out, matches); err != nil {
				return err
			}

			if *verbose {
				hdr := matcher.Header()
				hdr.WriteInfo(os.Stderr)
				printMatchStats(os.Stderr, stats, len(matches))
			}
			return nil
		},
	}
}

func printMatches(w io.Writer, matches []omgmatch.Match) error {
	buf := bufio.NewWriterSize(w, outputBufferSize)
	for i := range matches {
		buf.WriteString(strconv.FormatUint(matches[i].Offset, 10))
		buf.WriteByte(':')
		buf.Write(matches[i].Bytes)
		buf.WriteByte('\n')
	}
	return buf.Flush()
}

func printPatternStoreStats(w io.Writer, s omgmatch.PatternStoreStats) {
	ratio := 0.0
	if s.TotalInputBytes > 0 {
		ratio = float64(s.TotalStoredBytes) / float64(s.TotalInputBytes)
	}
	fmt.Fprintf(w, "Stored pattern count: %s, smallest %s, largest %s, duplicates removed: %s, input bytes: %s, stored bytes: %s, ratio: %.2f\n",
		humanize.Comma(int64(s.StoredPatternCount)),
		humanize.Comma(int64(s.SmallestPatternLength)),
		humanize.Comma(int64(s.LargestPatternLength)),
		humanize.Comma(int64(s.DuplicatePatterns)),
		humanize.Comma(int64(s.TotalInputBytes)),
		humanize.Comma(int64(s.TotalStoredBytes)),
		ratio)
}

func printMatchStats(w io.Writer, s omgmatch.Stats, matches int) {
	ratio := 0.0
	if matches > 0 {
		ratio = float64(s.TotalComparisons) / float64(matches)
	}
	fmt.Fprintf(w, "Total attempts: %s, filtered: %s, misses: %s, hits: %s, compares: %s, matches: %s, compare to match ratio: %.2f\n",
		humanize.Comma(int64(s.TotalAttempts)),
		humanize.Comma(int64(s.TotalFiltered)),
		humanize.Comma(int64(s.TotalMisses)),
		humanize.Comma(int64(s.TotalHits)),
		humanize.Comma(int64(s.TotalComparisons)),
		humanize.Comma(int64(matches)),
		ratio)
}

func main() {
	liblog := sglog.Init(sglog.Resource{
		Name:    "omg",
		Version: omgmatch.Version,
	})
	defer liblog.Sync()
	logger := sglog.Scoped("omg", "pattern list matcher CLI")

	root := &ffcli.Command{
		ShortUsage: "omg <subcommand>",
		Subcommands: []*ffcli.Command{
			compileCmd(),
			matchCmd(),
		},
		Exec: func(ctx context.Context, args []string) error {
			return flag.ErrHelp
		},
	}

	if err := root.ParseAndRun(context.Background(), os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			fmt.Fprintln(os.Stderr, ffcli.DefaultUsageFunc(root))
			os.Exit(2)
		}
		logger.Error("omg failed", sglog.Error(err))
		os.Exit(1)
	}
}
