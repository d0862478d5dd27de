package cmd

import (
	"fmt"

	"github.com/jsphweid/pianobot/device"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(portsCmd)
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "Lists MIDI ports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dev, err := device.Open(logger)
		if err != nil {
			return err
		}
		defer dev.Close()

		ins, outs, err := dev.Ports()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "inputs:")
		for _, name := range ins {
			fmt.Fprintf(out, "  %v\n", name)
		}
		fmt.Fprintln(out, "outputs:")
		for _, name := range outs {
			fmt.Fprintf(out, "  %v\n", name)
		}
		return nil
	},
}
