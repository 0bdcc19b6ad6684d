package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/acbmarket/feedctl/internal/derive"
)

var percentCmd = &cobra.Command{
	Use:   "percent <label=value>...",
	Short: "Split raw tallies into percentages that add up to 100",
	Long: `Split raw tallies into percentages that add up to exactly 100.

Examples:
  feedctl percent Yes=620 No=380
  feedctl percent --precision 1 a=1 b=1 c=1`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		precision, _ := cmd.Flags().GetInt("precision")
		if precision < 0 || precision > derive.MaxPrecision {
			return fmt.Errorf("--precision must be between 0 and %d", derive.MaxPrecision)
		}
		tallies, err := parseTallies(args)
		if err != nil {
			return err
		}
		shares := derive.Percentages(tallies, precision)
		return writeOutput(cmd.OutOrStdout(), outputFormat, shares, func(w io.Writer) {
			for _, s := range shares {
				fmt.Fprintf(w, "%-16s %s%%\n", s.Label, strconv.FormatFloat(s.Percent, 'f', precision, 64))
			}
		})
	},
}

func init() {
	percentCmd.Flags().Int("precision", 0, "decimal places")
}

func parseTallies(args []string) ([]derive.Tally, error) {
	out := make([]derive.Tally, 0, len(args))
	for _, arg := range args {
		label, raw, ok := strings.Cut(arg, "=")
		if !ok {
			label, raw = fmt.Sprintf("#%d", len(out)+1), arg
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid tally %q: %w", arg, err)
		}
		out = append(out, derive.Tally{Label: label, Value: v})
	}
	return out, nil
}
