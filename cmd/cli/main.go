package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"tablefix/adapters/excel"
	"tablefix/domain/modifier"
	"tablefix/domain/table"
	"tablefix/internal/errors"
	"tablefix/internal/logging"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// options shared by every subcommand
type options struct {
	in     string
	out    string
	strict bool
	logger *slog.Logger
}

func main() {
	_ = godotenv.Load()

	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}
	var logLevel string

	rootCmd := &cobra.Command{
		Use:           "tablefix",
		Short:         "Clean up CSV and XLSX tables from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			opts.logger, _ = logging.SetupLogger(logging.Options{
				Level:  logLevel,
				Output: stderr,
			})
		},
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVar(&opts.in, "in", "", "Input file (.csv or .xlsx)")
	rootCmd.PersistentFlags().StringVar(&opts.out, "out", "", "Output CSV file (stdout when empty)")
	rootCmd.PersistentFlags().BoolVar(&opts.strict, "strict", os.Getenv("STRICT_CONDITIONS") == "true", "Reject unknown rule conditions")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level for diagnostics on stderr")
	_ = rootCmd.MarkPersistentFlagRequired("in")

	rootCmd.AddCommand(
		newDedupeCmd(opts),
		newRulesCmd(opts),
		newRowsCmd(opts),
	)
	return rootCmd
}

func newDedupeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "dedupe",
		Short: "Remove fully duplicated rows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, func(m *modifier.Modifier, t *table.Table) (*table.Table, error) {
				return m.RemoveDuplicates(t), nil
			})
		},
	}
}

func newRulesCmd(opts *options) *cobra.Command {
	var rules string

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Keep only the rows that satisfy every rule",
		Long: `Apply a JSON array of rules to the table.

Example: tablefix rules --in data.csv --rules '[{"column": "Age", "condition": "greater_than", "value": 30}]'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readArgument(rules)
			if err != nil {
				return err
			}
			parsed, err := modifier.ParseRules(text)
			if err != nil {
				return err
			}
			return run(cmd, opts, func(m *modifier.Modifier, t *table.Table) (*table.Table, error) {
				return m.ApplyRules(t, parsed)
			})
		},
	}

	cmd.Flags().StringVar(&rules, "rules", "", "Rules as JSON, or @path to a JSON file")
	_ = cmd.MarkFlagRequired("rules")
	return cmd
}

func newRowsCmd(opts *options) *cobra.Command {
	var ops string

	cmd := &cobra.Command{
		Use:   "rows",
		Short: "Add or delete rows",
		Long: `Apply a JSON array of row operations in order.

Example: tablefix rows --in data.csv --ops '[{"action": "delete", "index": 0}, {"action": "add", "row_data": {"Name": "Eve"}}]'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := readArgument(ops)
			if err != nil {
				return err
			}
			parsed, err := modifier.ParseOperations(text)
			if err != nil {
				return err
			}
			return run(cmd, opts, func(m *modifier.Modifier, t *table.Table) (*table.Table, error) {
				return m.AddOrDeleteRows(t, parsed)
			})
		},
	}

	cmd.Flags().StringVar(&ops, "ops", "", "Row operations as JSON, or @path to a JSON file")
	_ = cmd.MarkFlagRequired("ops")
	return cmd
}

type transform func(m *modifier.Modifier, t *table.Table) (*table.Table, error)

func run(cmd *cobra.Command, opts *options, apply transform) error {
	f, err := os.Open(opts.in)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", opts.in)
	}
	defer f.Close()

	t, err := excel.NewDataReader(opts.logger).ReadTable(opts.in, f)
	if err != nil {
		return err
	}

	m := modifier.New(modifier.WithStrictConditions(opts.strict), modifier.WithLogger(opts.logger))
	result, err := apply(m, t)
	if err != nil {
		return err
	}

	if err := writeResult(cmd.OutOrStdout(), opts.out, result); err != nil {
		return err
	}

	for _, entry := range m.SaveLog() {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s  %-20s %s\n",
			entry.Timestamp.Format("2006-01-02 15:04:05"), entry.Action, entry.Details)
	}
	return nil
}

func writeResult(stdout io.Writer, path string, t *table.Table) error {
	if path == "" {
		return excel.WriteCSV(t, stdout)
	}
	out, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", path)
	}
	if err := excel.WriteCSV(t, out); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// readArgument returns the flag value, or the file contents for @path
func readArgument(value string) (string, error) {
	if !strings.HasPrefix(value, "@") {
		return value, nil
	}
	data, err := os.ReadFile(strings.TrimPrefix(value, "@"))
	if err != nil {
		return "", errors.Wrapf(err, "failed to read %s", value[1:])
	}
	return string(data), nil
}
