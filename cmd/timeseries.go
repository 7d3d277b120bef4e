package main

import (
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ltser-cli/internal/workflow"
)

var timeseriesCmd = &cobra.Command{
	Use:   "timeseries <file>",
	Short: "Filter a flux tower time series",
	Long:  "Selects columns of a FLUXNET-style CSV, restricts rows to a [from, to) window and blanks the missing-value sentinel. Writes CSV.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := timeseriesOptions(cmd)
		if err != nil {
			return err
		}
		data, err := workflow.ReadTable(args[0], workflow.XLSXOptions{})
		if err != nil {
			return err
		}
		filtered, err := workflow.FilterTimeSeries(data, opts)
		if err != nil {
			return eris.Wrap(err, "timeseries")
		}
		out, _ := cmd.Flags().GetString("out")
		return withOutput(out, func(w io.Writer) error {
			return filtered.WriteCSV(w)
		})
	},
}

func timeseriesOptions(cmd *cobra.Command) (workflow.TimeSeriesOptions, error) {
	var opts workflow.TimeSeriesOptions
	opts.TimestampColumn, _ = cmd.Flags().GetString("timestamp")
	opts.Columns, _ = cmd.Flags().GetStringSlice("columns")
	opts.Missing, _ = cmd.Flags().GetString("missing")

	parse := func(flag string) (time.Time, error) {
		v, _ := cmd.Flags().GetString(flag)
		if v == "" {
			return time.Time{}, nil
		}
		t, err := workflow.ParseTimestamp(v)
		if err != nil {
			return time.Time{}, eris.Wrapf(err, "timeseries: --%s", flag)
		}
		return t, nil
	}
	var err error
	if opts.From, err = parse("from"); err != nil {
		return opts, err
	}
	if opts.To, err = parse("to"); err != nil {
		return opts, err
	}
	return opts, nil
}

func addTimeseriesFlags(cmd *cobra.Command) {
	cmd.Flags().String("timestamp", "", "timestamp column (default first column)")
	cmd.Flags().StringSlice("columns", nil, "value columns to keep (default all)")
	cmd.Flags().String("from", "", "window start, inclusive")
	cmd.Flags().String("to", "", "window end, exclusive")
	cmd.Flags().String("missing", workflow.DefaultMissing, "missing-value sentinel")
	cmd.Flags().String("out", "", "output file (default stdout)")
}

func init() {
	addTimeseriesFlags(timeseriesCmd)
	rootCmd.AddCommand(timeseriesCmd)
}
