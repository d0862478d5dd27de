package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/jsphweid/pianobot/constants"
	"github.com/jsphweid/pianobot/file"
	"github.com/jsphweid/pianobot/midi"
	"github.com/jsphweid/pianobot/model"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(reportCmd)
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Summarizes the takes in the local takes directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		r, err := analyzeTakes(file.NewDir(cfg.TakesDir))
		if err != nil {
			return err
		}
		r.print(cmd.OutOrStdout())
		return nil
	},
}

type takesReport struct {
	numTakes   int
	numSkipped int
	numEvents  int
	numNotes   int
	total      time.Duration
	longest    string
	longestDur time.Duration
}

func analyzeTakes(dir *file.Dir) (takesReport, error) {
	var report takesReport
	names, err := dir.Takes()
	if err != nil {
		return report, err
	}
	for _, name := range names {
		events, tpb, err := midi.ReadTakeFile(dir.Path(name + ".mid"))
		if err != nil {
			logger.Warn("report: skipping take", "take", name, "err", err)
			report.numSkipped += 1
			continue
		}
		q := midi.Quantizer{BPM: constants.DefaultBPM, TicksPerBeat: tpb}
		var ticks uint32
		for _, e := range events {
			ticks += e.Ticks
			if e.Kind == model.NoteOn {
				report.numNotes += 1
			}
		}
		d := q.Duration(ticks)
		report.numTakes += 1
		report.numEvents += len(events)
		report.total += d
		if d > report.longestDur {
			report.longest, report.longestDur = name, d
		}
	}
	return report, nil
}

func (r takesReport) print(w io.Writer) {
	fmt.Fprintf(w, "takes: %v (skipped %v)\n", r.numTakes, r.numSkipped)
	fmt.Fprintf(w, "events: %v\n", r.numEvents)
	fmt.Fprintf(w, "notes played: %v\n", r.numNotes)
	fmt.Fprintf(w, "total time: %v\n", r.total)
	if r.longest != "" {
		fmt.Fprintf(w, "longest take: %v (%v)\n", r.longest, r.longestDur)
	}
}
