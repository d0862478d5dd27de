package cmd

import (
	"os"
	"time"

	"github.com/jsphweid/pianobot/constants"
	"github.com/jsphweid/pianobot/midi"
	"github.com/jsphweid/pianobot/sample"
	"github.com/jsphweid/pianobot/util"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/smf"
)

var (
	excerptFrom  time.Duration
	excerptNotes int
	excerptOut   string
)

func init() {
	excerptCmd.Flags().DurationVar(&excerptFrom, "from", 0, "where the excerpt starts, from the beginning of the take")
	excerptCmd.Flags().IntVar(&excerptNotes, "notes", 10, "number of note on and note off messages to keep")
	excerptCmd.Flags().StringVarP(&excerptOut, "out", "o", "excerpt.mid", "file to write")
	rootCmd.AddCommand(excerptCmd)
}

var excerptCmd = &cobra.Command{
	Use:   "excerpt <take.mid>",
	Short: "Cuts a short excerpt out of a take",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mf, err := smf.ReadFile(args[0])
		if err != nil {
			return errors.Wrapf(err, "could not read %v", args[0])
		}
		mt, ok := mf.TimeFormat.(smf.MetricTicks)
		if !ok {
			return errors.New("take does not use metric ticks")
		}
		q := midi.Quantizer{BPM: constants.DefaultBPM, TicksPerBeat: uint16(mt)}
		res := sample.Create(mf, uint64(q.Ticks(excerptFrom)), util.Clamp(excerptNotes, 1, 10000))

		f, err := os.Create(excerptOut)
		if err != nil {
			return errors.Wrap(err, "could not create excerpt")
		}
		defer f.Close()
		if _, err := res.WriteTo(f); err != nil {
			return errors.Wrap(err, "could not write excerpt")
		}
		logger.Info("excerpt: written", "path", excerptOut)
		return nil
	},
}
