// Package main provides the command line interface for xlgrid documents.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/javajack/xlgrid"
	"github.com/spf13/cobra"
)

var (
	configPath string
	debug      bool

	dims      []int
	trust     bool
	table     int
	sheetName string
	at        string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "xlgrid",
		Short: "Evaluate and inspect three-dimensional spreadsheet documents",
		Long: `xlgrid opens spreadsheet save files, evaluates cells, validates their
expressions and converts them to and from xlsx workbooks.

Documents are untrusted unless their detached signature verifies; use
--trust to evaluate an unsigned document anyway.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: ~/.xlgrid/config.yaml if present)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	newCmd := &cobra.Command{
		Use:   "new PATH",
		Short: "Create an empty document",
		Args:  cobra.ExactArgs(1),
		RunE:  runNew,
	}
	newCmd.Flags().IntSliceVarP(&dims, "dims", "d", nil, "Shape as rows,cols,tables")

	evalCmd := &cobra.Command{
		Use:   "eval PATH CELL...",
		Short: "Print the values of cells (B3 or row,col[,table])",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runEval,
	}
	evalCmd.Flags().BoolVar(&trust, "trust", false, "Leave safe mode even without a valid signature")
	evalCmd.Flags().IntVar(&table, "table", 0, "Table for cell references without one")

	setCmd := &cobra.Command{
		Use:   "set PATH CELL SOURCE",
		Short: "Set the source of one cell and save",
		Args:  cobra.ExactArgs(3),
		RunE:  runSet,
	}
	setCmd.Flags().IntVar(&table, "table", 0, "Table for cell references without one")

	describeCmd := &cobra.Command{
		Use:   "describe PATH",
		Short: "Print the structure of a document without evaluating it",
		Args:  cobra.ExactArgs(1),
		RunE:  runDescribe,
	}

	validateCmd := &cobra.Command{
		Use:   "validate PATH",
		Short: "Check every cell and macro line for syntax errors",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	exportCmd := &cobra.Command{
		Use:   "export PATH OUT.xlsx",
		Short: "Evaluate a document and write the values to an xlsx workbook",
		Args:  cobra.ExactArgs(2),
		RunE:  runExport,
	}
	exportCmd.Flags().BoolVar(&trust, "trust", false, "Leave safe mode even without a valid signature")

	importCmd := &cobra.Command{
		Use:   "import IN.xlsx PATH",
		Short: "Paste an xlsx worksheet into a document (created if missing)",
		Args:  cobra.ExactArgs(2),
		RunE:  runImport,
	}
	importCmd.Flags().StringVar(&sheetName, "sheet", "", "Worksheet to import (default: first)")
	importCmd.Flags().StringVar(&at, "at", "A1", "Top-left target cell")
	importCmd.Flags().IntVar(&table, "table", 0, "Target table")

	signCmd := &cobra.Command{
		Use:   "sign PATH",
		Short: "Write the detached signature of a document",
		Args:  cobra.ExactArgs(1),
		RunE:  runSign,
	}

	rootCmd.AddCommand(newCmd, evalCmd, setCmd, describeCmd, validateCmd, exportCmd, importCmd, signCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// setup loads the configuration and installs the logger.
func setup() (*xlgrid.Config, []xlgrid.Option, error) {
	path := configPath
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, ".xlgrid", "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}

	cfg := xlgrid.DefaultConfig()
	if path != "" {
		loaded, err := xlgrid.LoadConfig(path)
		if err != nil {
			return nil, nil, err
		}
		cfg = *loaded
	}

	level := cfg.Level()
	if debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	opts := append(cfg.Options(), xlgrid.WithLogger(logger))
	return &cfg, opts, nil
}

func open(ctx context.Context, path string) (*xlgrid.Grid, error) {
	_, opts, err := setup()
	if err != nil {
		return nil, err
	}
	g := xlgrid.New(opts...)
	if _, err := g.Open(ctx, path); err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if trust && g.SafeMode() {
		if err := g.LeaveSafeMode(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		}
	}
	return g, nil
}

func runNew(cmd *cobra.Command, args []string) error {
	_, opts, err := setup()
	if err != nil {
		return err
	}
	if len(dims) > 0 {
		if len(dims) != 3 {
			return fmt.Errorf("--dims needs rows,cols,tables, got %v", dims)
		}
		opts = append(opts, xlgrid.WithShape(xlgrid.Shape{Rows: dims[0], Cols: dims[1], Tables: dims[2]}))
	}
	g := xlgrid.New(opts...)
	if err := g.SaveFile(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("created %s with shape %s\n", args[0], g.Shape())
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	g, err := open(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if g.SafeMode() {
		fmt.Fprintln(os.Stderr, "document is in safe mode; pass --trust to evaluate")
	}
	for _, ref := range args[1:] {
		c, err := xlgrid.ParseCoord(ref, table)
		if err != nil {
			return err
		}
		r, err := g.Evaluate(c)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", c.CellName(), r)
	}
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	g, err := open(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	c, err := xlgrid.ParseCoord(args[1], table)
	if err != nil {
		return err
	}
	if err := g.SetSource(c, args[2]); err != nil {
		return err
	}
	return g.SaveFile(cmd.Context(), args[0])
}

func runDescribe(cmd *cobra.Command, args []string) error {
	_, opts, err := setup()
	if err != nil {
		return err
	}
	out, err := xlgrid.Describe(args[0], opts...)
	if err != nil {
		return err
	}
	fmt.Print(out)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	_, opts, err := setup()
	if err != nil {
		return err
	}
	issues, err := xlgrid.Validate(args[0], opts...)
	if err != nil {
		return err
	}
	failed := false
	for _, issue := range issues {
		fmt.Println(issue)
		if issue.Severity == xlgrid.SeverityError {
			failed = true
		}
	}
	if failed {
		return fmt.Errorf("%s: validation failed", args[0])
	}
	if len(issues) == 0 {
		fmt.Printf("%s: ok\n", args[0])
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	g, err := open(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return g.ExportXLSX(args[1])
}

func runImport(cmd *cobra.Command, args []string) error {
	in, path := args[0], args[1]
	_, opts, err := setup()
	if err != nil {
		return err
	}
	g := xlgrid.New(opts...)
	if _, err := os.Stat(path); err == nil {
		if _, err := g.Open(cmd.Context(), path); err != nil {
			return err
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	topLeft, err := xlgrid.ParseCoord(at, table)
	if err != nil {
		return err
	}
	report, err := g.ImportXLSX(cmd.Context(), in, sheetName, topLeft)
	if err != nil {
		return err
	}
	if err := g.SaveFile(cmd.Context(), path); err != nil {
		return err
	}
	fmt.Printf("imported %d cells into %s", report.Cells, path)
	if report.RowsTruncated || report.ColsTruncated {
		fmt.Print(" (truncated to the grid shape)")
	}
	fmt.Println()
	return nil
}

func runSign(cmd *cobra.Command, args []string) error {
	cfg, _, err := setup()
	if err != nil {
		return err
	}
	signer := cfg.Signer()
	if signer == nil {
		return fmt.Errorf("no signing_key_file configured")
	}
	if err := xlgrid.SignFile(signer, args[0]); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", xlgrid.SignaturePath(args[0]))
	return nil
}
