package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/cmd/wasmload/dump"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/cmd/wasmload/validate"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/exec"
	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/load"
)

var version = "<unknown>"

func configureCLI() *cobra.Command {
	var cpuProfile string
	var memProfile string
	var verbose bool
	var spectest bool

	config := load.DefaultConfig()

	rootCommand := &cobra.Command{
		Use:           "wasmload",
		Short:         "WebAssembly module loader",
		Long:          "wasmload - load, validate and inspect WebAssembly modules",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				logger, err := zap.NewDevelopment()
				if err != nil {
					return err
				}
				config.Logger = logger
			}
			if spectest {
				config.Resolver = exec.MapResolver{}.With(exec.NewSpectestModule())
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
			if config.Logger != nil {
				config.Logger.Sync()
			}

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

			return nil
		},
	}

	rootCommand.AddCommand(dump.Command(&config))
	rootCommand.AddCommand(validate.Command(&config))

	flags := rootCommand.PersistentFlags()
	flags.Var(&config.Features, "features", "comma-separated list of enabled proposals")
	flags.BoolVar(&config.Rewrite, "rewrite", config.Rewrite, "rewrite function bodies into the slot-based encoding")
	flags.Uint64Var(&config.MemoryPoolSize, "memory-pool", 0, "bound on the default maximum size of memories, in bytes")
	flags.BoolVar(&spectest, "spectest", false, "resolve imports against the spectest host module")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	flags.StringVar(&cpuProfile, "cpu", "", "emit Go CPU profile data to this path")
	flags.StringVar(&memProfile, "mem", "", "emit Go memory profile data to this path")

	flags.MarkHidden("cpu")
	flags.MarkHidden("mem")

	return rootCommand
}

func main() {
	rootCommand := configureCLI()

	if err := rootCommand.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}
