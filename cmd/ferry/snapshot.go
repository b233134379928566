package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/ferry/ffi"
	"github.com/chazu/ferry/vm"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [flags] <script>",
	Short: "Run a script and write a CBOR snapshot of the heap",
	Long: `Run a script, then encode every live heap slot, the globals and the
pending exception as canonical CBOR. With --read, decode an existing
snapshot and print a summary instead.`,
	Args: cobra.ExactArgs(1),
	RunE: snapshotScript,
}

func init() {
	snapshotCmd.Flags().StringP("output", "o", "", "snapshot file (default: <script>.cbor)")
	snapshotCmd.Flags().Bool("read", false, "treat the argument as a snapshot file and summarize it")
}

func snapshotScript(cmd *cobra.Command, args []string) error {
	read, err := cmd.Flags().GetBool("read")
	if err != nil {
		return fmt.Errorf("failed to get read flag: %w", err)
	}
	if read {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		snap, err := vm.UnmarshalSnapshot(data)
		if err != nil {
			return err
		}
		return summarize(cmd.OutOrStdout(), snap)
	}

	output, err := cmd.Flags().GetString("output")
	if err != nil {
		return fmt.Errorf("failed to get output flag: %w", err)
	}
	if output == "" {
		output = args[0] + ".cbor"
	}

	mrb, err := ffi.Open(settings)
	if err != nil {
		return err
	}
	defer mrb.Close()

	if err := execFile(mrb, args[0], io.Discard); err != nil {
		return err
	}
	data, err := vm.MarshalSnapshot(mrb.Snapshot())
	if err != nil {
		return err
	}
	if err := os.WriteFile(output, data, 0644); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d slots, %d bytes)\n", output, mrb.Heap().Len(), len(data))
	return nil
}

func summarize(w io.Writer, snap *vm.Snapshot) error {
	for _, rec := range snap.Slots {
		switch {
		case rec.Bytes != nil:
			fmt.Fprintf(w, "%6d %-10s %-12s %q\n", rec.Handle, rec.Type, rec.Class, rec.Bytes)
		case rec.Message != "":
			fmt.Fprintf(w, "%6d %-10s %-12s %s\n", rec.Handle, rec.Type, rec.Class, rec.Message)
		default:
			fmt.Fprintf(w, "%6d %-10s %s\n", rec.Handle, rec.Type, rec.Class)
		}
	}
	fmt.Fprintf(w, "%d slots, %d globals\n", len(snap.Slots), len(snap.Globals))
	return nil
}
