package validate

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dongsheng28849455/wasm-micro-runtime-sub000/load"
)

func Command(config *load.Config) *cobra.Command {
	var quiet bool

	command := &cobra.Command{
		Use:   "validate [paths to modules]",
		Short: "Validate WebAssembly modules",
		Long:  "Load and validate each module, reporting the first error found in each",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("expected at least one argument")
			}

			failed := 0
			for _, path := range args {
				mod, err := load.LoadFile(path, *config)
				if err != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", path, err)
					failed++
					continue
				}
				mod.Close()

				if !quiet {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", path)
				}
			}

			if failed != 0 {
				return fmt.Errorf("%d of %d modules failed to validate", failed, len(args))
			}
			return nil
		},
	}

	command.Flags().BoolVarP(&quiet, "quiet", "q", false, "only report failures")

	return command
}
