package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jsphweid/pianobot/constants"
	"github.com/jsphweid/pianobot/db"
	"github.com/jsphweid/pianobot/midi"
	"github.com/jsphweid/pianobot/model"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var inspectWithIndex bool

func init() {
	inspectCmd.Flags().BoolVar(&inspectWithIndex, "index", false, "also print the take's row from the DynamoDB index")
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <take.mid>",
	Short: "Prints the events of a recorded take",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		events, tpb, err := midi.ReadTakeFile(args[0])
		if err != nil {
			return err
		}
		printTake(cmd.OutOrStdout(), events, tpb)

		if !inspectWithIndex {
			return nil
		}
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.AWS.Table == "" {
			return errors.New("no dynamodb table configured")
		}
		sess, err := db.NewSession(cfg.AWS.Region, cfg.AWS.Endpoint)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(args[0]), ".mid")
		metas, err := db.NewFromSession(sess, cfg.AWS.Table).GetTakes(cmd.Context(), []string{name})
		if err != nil {
			return err
		}
		printMetadata(cmd.OutOrStdout(), name, metas)
		return nil
	},
}

func printTake(w io.Writer, events []model.RecordedEvent, tpb uint16) {
	q := midi.Quantizer{BPM: constants.DefaultBPM, TicksPerBeat: tpb}
	var abs uint32
	fmt.Fprintf(w, "ticks per beat: %v, events: %v\n", tpb, len(events))
	for _, e := range events {
		abs += e.Ticks
		fmt.Fprintf(w, "%10v  %v\n", q.Duration(abs), midi.Describe(e))
	}
}

func printMetadata(w io.Writer, name string, metas map[string]model.TakeMetadata) {
	meta, ok := metas[name]
	if !ok {
		fmt.Fprintf(w, "%v is not indexed\n", name)
		return
	}
	fmt.Fprintf(w, "take id: %v\npublic: %v\nstarted: %v\nduration: %vms\n",
		meta.TakeID, meta.Public, meta.StartedAt.Local(), meta.DurationMs)
}
