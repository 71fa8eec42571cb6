package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var queryCmd = &cobra.Command{
	Use:   "query <mean|stddev|max|min> <path>",
	Short: "Run an aggregate query over an observation's buffer",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		since, _ := cmd.Flags().GetFloat64("since")

		var (
			v   float64
			err error
		)
		switch args[0] {
		case "mean":
			v, err = h.QueryMean(args[1], since)
		case "stddev":
			v, err = h.QueryStdDev(args[1], since)
		case "max":
			v, err = h.QueryMax(args[1], since)
		case "min":
			v, err = h.QueryMin(args[1], since)
		default:
			return fmt.Errorf("unknown aggregate %q, want mean|stddev|max|min", args[0])
		}
		if err != nil {
			return err
		}
		fmt.Println(v)
		return nil
	},
}

func init() {
	queryCmd.Flags().Float64("since", 0, "start time: seconds-before-now if < 30 years, else an absolute epoch timestamp")
	rootCmd.AddCommand(queryCmd)
}
