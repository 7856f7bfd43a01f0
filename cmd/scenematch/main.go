package main

import (
	"os"

	"github.com/proxima-xr/scenematch/cmd"
	"github.com/proxima-xr/scenematch/cmd/run"
)

func main() {
	rootCmd := cmd.NewRootCommand()

	runCmd := run.NewRunCommand()
	rootCmd.AddCommand(runCmd)

	validateCmd := cmd.NewValidateCommand()
	rootCmd.AddCommand(validateCmd)

	versionCmd := cmd.NewVersionCommand()
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
