package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/ferry/ffi"
	"github.com/chazu/ferry/telemetry"
	"github.com/chazu/ferry/vm"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] <script>",
	Short: "Execute a string operation script",
	Long: `Execute a script of string operations, one per line, printing results.
Raised exceptions are reported and execution continues with the next line.`,
	Args: cobra.ExactArgs(1),
	RunE: runScript,
}

func init() {
	runCmd.Flags().String("metrics", "", "write Prometheus metrics to this file after the run")
	runCmd.Flags().Bool("gc", false, "run a full collection after the script and report it")
}

func runScript(cmd *cobra.Command, args []string) error {
	metricsPath, err := cmd.Flags().GetString("metrics")
	if err != nil {
		return fmt.Errorf("failed to get metrics flag: %w", err)
	}
	finalGC, err := cmd.Flags().GetBool("gc")
	if err != nil {
		return fmt.Errorf("failed to get gc flag: %w", err)
	}

	mrb, err := ffi.Open(settings)
	if err != nil {
		return err
	}
	defer mrb.Close()

	if err := execFile(mrb, args[0], cmd.OutOrStdout()); err != nil {
		return err
	}
	if finalGC {
		st := mrb.GC()
		fmt.Fprintf(cmd.OutOrStdout(), "gc: marked %d, freed %d, live %d\n", st.Marked, st.Freed, st.Live)
	}

	if metricsPath != "" {
		reg, err := telemetry.NewRegistry(mrb, nil)
		if err != nil {
			return err
		}
		if err := telemetry.WriteTextfile(metricsPath, reg); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}

// execFile runs the script at path on mrb.
func execFile(mrb *vm.Interpreter, path string, out io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return newRunner(mrb, out).Run(f)
}
