package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pgavlin/reftable/cmd/reftable/dump"
	"github.com/pgavlin/reftable/cmd/reftable/run"
	"github.com/pgavlin/reftable/cmd/reftable/stats"
	"github.com/pgavlin/reftable/exec"
	"github.com/pgavlin/reftable/pool"
)

var version = "<unknown>"

// syncLogger flushes logger. Errors from syncing a terminal or other unsyncable file are ignored.
func syncLogger(logger *zap.Logger) error {
	if logger == nil {
		return nil
	}
	if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) && !errors.Is(err, syscall.ENOTTY) {
		return fmt.Errorf("syncing log: %w", err)
	}
	return nil
}

func configureCLI() *cobra.Command {
	var cpuProfile string
	var memProfile string
	var verbose bool
	var logger *zap.Logger

	rootCommand := &cobra.Command{
		Use:           "reftable",
		Short:         "reftable WebAssembly table tool",
		Long:          "reftable - run scripts of WebAssembly table operations",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				l, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				logger = l
				exec.SetLogger(logger)
				pool.SetLogger(logger)
			}

			if cpuProfile != "" {
				f, err := os.Create(cpuProfile)
				if err != nil {
					return err
				}
				pprof.StartCPUProfile(f)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if cpuProfile != "" {
				pprof.StopCPUProfile()
			}

			if memProfile != "" {
				f, err := os.Create(memProfile)
				if err != nil {
					return err
				}
				runtime.GC()
				pprof.WriteHeapProfile(f)
			}

			return syncLogger(logger)
		},
	}

	rootCommand.AddCommand(dump.Command())
	rootCommand.AddCommand(run.Command())
	rootCommand.AddCommand(stats.Command())

	rootCommand.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log table operations to stderr")
	rootCommand.PersistentFlags().StringVar(&cpuProfile, "cpu", "", "emit Go CPU profile data to this path")
	rootCommand.PersistentFlags().StringVar(&memProfile, "mem", "", "emit Go memory profile data to this path")

	rootCommand.PersistentFlags().MarkHidden("cpu")
	rootCommand.PersistentFlags().MarkHidden("mem")

	return rootCommand
}

func main() {
	rootCommand := configureCLI()

	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
