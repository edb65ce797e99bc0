package dump

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/pgavlin/reftable/exec"
	"github.com/pgavlin/reftable/script"
)

func Command() *cobra.Command {
	var config script.Config
	var partial bool

	command := &cobra.Command{
		Use:   "dump [path to script]",
		Short: "Dump table contents",
		Long:  "Run a CSV script of table operations and dump the contents of its tables in CSV format.",
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

			result, err := script.Run(ops, env)
			defer result.Release()
			if err != nil && !partial {
				return err
			}
			return script.WriteDump(os.Stdout, result)
		},
	}

	config.RegisterFlags(command.PersistentFlags())
	command.PersistentFlags().BoolVarP(&partial, "partial", "p", false, "dump the tables of scripts that fail")

	return command
}
