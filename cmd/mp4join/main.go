// Command mp4join concatenates same-codec ISO-BMFF/MP4 recordings into a single file without
// re-encoding, rebuilding only the container index.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tetsuo/mp4merge/internal/logging"
	"github.com/tetsuo/mp4merge/merge"

	flag "github.com/spf13/pflag"
)

var usg = `Usage of %s:

%s concatenates several contiguous ISO-BMFF/MP4 recordings (e.g. action-camera or camcorder
clips split across files) into one output file, without re-encoding. Media payload is copied
verbatim; only the container index (moov tree) is rebuilt.

$ %s -o merged.mp4 GX010001.MP4 GX010002.MP4 GX010003.MP4
`

type options struct {
	Output    string
	LogLevel  string
	LogFormat string
	Inputs    []string
}

func parseOptions() *options {
	name := os.Args[0]
	o := options{}

	flag.StringVarP(&o.Output, "output", "o", "", "output file path (required)")
	logFormatUsage := fmt.Sprintf("format of log output: %v", logging.LogFormats)
	flag.StringVarP(&o.LogFormat, "logformat", "", logging.LogText, logFormatUsage)
	flag.StringVarP(&o.LogLevel, "loglevel", "", "info", "initial log level")
	flag.CommandLine.SortFlags = false

	flag.Usage = func() {
		parts := strings.Split(name, "/")
		short := parts[len(parts)-1]
		fmt.Fprintf(os.Stderr, usg, short, short, short)
		fmt.Fprintf(os.Stderr, "\nRun as %s -o output.mp4 input1.mp4 input2.mp4 ...\n\n", short)
		flag.PrintDefaults()
		os.Exit(2)
	}

	flag.Parse()

	if o.Output == "" || len(flag.Args()) < 1 {
		flag.Usage()
	}
	o.Inputs = flag.Args()

	return &o
}

func main() {
	o := parseOptions()

	if err := logging.InitSlog(o.LogLevel, o.LogFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	slog.Info("starting merge", "inputs", len(o.Inputs), "output", o.Output)

	lastReport := time.Now()
	progress := func(fraction float64) {
		if fraction < 1.0 && time.Since(lastReport) < 500*time.Millisecond {
			return
		}
		lastReport = time.Now()
		slog.Info("merge progress", "percent", fraction*100)
	}

	if err := merge.MergePaths(o.Inputs, o.Output, progress); err != nil {
		slog.Error("merge failed", "error", err, "partial_output", o.Output)
		os.Exit(1)
	}

	if err := merge.PropagateFileTimes(o.Inputs[0], o.Output); err != nil {
		slog.Warn("failed to propagate file times", "error", err)
	}

	slog.Info("merge complete", "output", o.Output)
}
