package run

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgavlin/reftable/exec"
	"github.com/pgavlin/reftable/script"
)

func Command() *cobra.Command {
	var config script.Config

	command := &cobra.Command{
		Use:   "run [path to script]",
		Short: "Run table scripts",
		Long:  "Run a CSV script of table operations and print the results of its get, grow and size operations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return errors.New("expected exactly one argument")
			}

			ops, err := script.LoadFile(args[0])
			if err != nil {
				return err
			}

			env, closer, err := config.NewEnv(exec.Logger())
			if err != nil {
				return err
			}
			defer closer()

			result, runErr := script.Run(ops, env)
			defer result.Release()

			if err := script.WriteOutputs(os.Stdout, result); err != nil {
				return err
			}
			return runErr
		},
	}

	config.RegisterFlags(command.PersistentFlags())

	return command
}
