//go:build linux

package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ja7ad/causalprof/pkg/codemap"
	"github.com/ja7ad/causalprof/pkg/disasm"
	"github.com/ja7ad/causalprof/pkg/system/image"
	"github.com/ja7ad/causalprof/pkg/system/perf"
)

func main() {
	root := &cobra.Command{
		Use:   "causalprof",
		Short: "Causal profiler inspection tool",
		Long: `The causalprof tool inspects binaries and the local machine for the
causal profiling runtime: it dumps the basic-block partition the
profiler would discover for each function, and reports whether this
machine can deliver hardware overflow samples.

Profiling itself is done in-process: link pkg/causal into the target,
declare progress counters, and set CAUSAL_MODE.

Examples:
  causalprof dump ./a.out
  causalprof dump --function main.work ./a.out
  causalprof env`,
	}

	root.AddCommand(dumpCmd(), envCmd())

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func dumpCmd() *cobra.Command {
	var function string

	cmd := &cobra.Command{
		Use:   "dump BINARY",
		Short: "Print every function's basic-block partition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(args[0], function)
		},
	}
	cmd.Flags().StringVarP(&function, "function", "f", "", "dump only functions whose name contains this substring")
	return cmd
}

func runDump(path, function string) error {
	img, err := image.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	m := codemap.New(slog.Default())
	if _, err := m.AddFile(img.Path, img.Text); err != nil {
		return err
	}
	matched := 0
	for _, fn := range img.Funcs {
		if function != "" && !strings.Contains(fn.Name, function) {
			continue
		}
		f := codemap.NewFunction(fn.Name, fn.Range, img.LoadOffset,
			disasm.NewCode(fn.Range.Base+img.LoadOffset, fn.Code))
		if err := m.AddFunction(f); err != nil {
			slog.Warn("skipping overlapping symbol", "name", fn.Name, "err", err)
			continue
		}
		matched++
	}
	if matched == 0 {
		return fmt.Errorf("no functions matched in %s", path)
	}

	m.DumpFunctions(os.Stdout)
	return nil
}

func envCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Report whether this machine can profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := perf.Paranoid()
			if err != nil {
				return err
			}
			fmt.Printf("perf_event_paranoid: %d\n", level)

			src, detail, err := perf.Detect()
			if err != nil {
				return fmt.Errorf("no usable event source: %w", err)
			}
			fmt.Printf("event source: %s (%s)\n", src, detail)
			return nil
		},
	}
}
