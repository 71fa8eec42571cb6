package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/nxthongbk/datahub/internal/sample"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Manage resource tree entries",
}

var createInputCmd = &cobra.Command{
	Use:   "create-input <path> <type>",
	Short: "Create (or validate) an Input resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseType(args[1])
		if err != nil {
			return err
		}
		units, _ := cmd.Flags().GetString("units")
		handle, err := h.CreateInput(args[0], units, t)
		if err != nil {
			return err
		}
		fmt.Printf("created input %s (handle %d)\n", args[0], handle)
		return nil
	},
}

var createOutputCmd = &cobra.Command{
	Use:   "create-output <path> <type>",
	Short: "Create (or validate) an Output resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseType(args[1])
		if err != nil {
			return err
		}
		units, _ := cmd.Flags().GetString("units")
		handle, err := h.CreateOutput(args[0], units, t)
		if err != nil {
			return err
		}
		fmt.Printf("created output %s (handle %d)\n", args[0], handle)
		return nil
	},
}

var createObservationCmd = &cobra.Command{
	Use:   "create-observation <path>",
	Short: "Create (or reopen, restoring any backup) an Observation under /obs/",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		handle, err := h.CreateObservation(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("created observation %s (handle %d)\n", args[0], handle)
		return nil
	},
}

var routeCmd = &cobra.Command{
	Use:   "route <destination> <source>",
	Short: "Wire destination to read from source",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return h.SetSource(args[0], args[1])
	},
}

var pushCmd = &cobra.Command{
	Use:   "push <path> <type> <value>",
	Short: "Push a sample to a resource",
	Args:  cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseType(args[1])
		if err != nil {
			return err
		}
		var raw string
		if len(args) == 3 {
			raw = args[2]
		}
		s, err := sampleFromCLI(t, raw)
		if err != nil {
			return err
		}
		accepted, reported, err := h.Push(args[0], t, s)
		if err != nil {
			return err
		}
		fmt.Printf("accepted=%v reported=%s\n", accepted, mustJSON(reported))
		return nil
	},
}

var currentCmd = &cobra.Command{
	Use:   "current <path>",
	Short: "Print a resource's current value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, ok, err := h.Current(args[0])
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("(no current value)")
			return nil
		}
		fmt.Println(mustJSON(s))
		return nil
	},
}

func parseType(s string) (sample.Type, error) {
	switch s {
	case "trigger":
		return sample.Trigger, nil
	case "boolean":
		return sample.Boolean, nil
	case "numeric":
		return sample.Numeric, nil
	case "string":
		return sample.String, nil
	case "json":
		return sample.JSON, nil
	default:
		return 0, fmt.Errorf("unknown sample type %q", s)
	}
}

func sampleFromCLI(t sample.Type, raw string) (sample.Sample, error) {
	now := float64(nowUnix())
	switch t {
	case sample.Trigger:
		return sample.NewTrigger(now), nil
	case sample.Boolean:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return sample.Sample{}, err
		}
		return sample.NewBoolean(now, b), nil
	case sample.Numeric:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return sample.Sample{}, err
		}
		return sample.NewNumeric(now, v), nil
	case sample.String:
		return sample.NewString(now, raw), nil
	case sample.JSON:
		return sample.NewJSON(now, raw), nil
	default:
		return sample.Sample{}, fmt.Errorf("unknown sample type %v", t)
	}
}

func mustJSON(s sample.Sample) string {
	b, err := s.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}
	return string(b)
}

func init() {
	createInputCmd.Flags().String("units", "", "engineering units")
	createOutputCmd.Flags().String("units", "", "engineering units")

	treeCmd.AddCommand(createInputCmd, createOutputCmd, createObservationCmd, routeCmd, pushCmd, currentCmd)
	rootCmd.AddCommand(treeCmd)
}
