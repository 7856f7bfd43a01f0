package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/proxima-xr/scenematch/cmd/util"
	"github.com/proxima-xr/scenematch/pkg/scene"
)

// ValidationResult is printed by the validate command.
type ValidationResult struct {
	Path     string   `json:"path"`
	Name     string   `json:"name,omitempty"`
	Ticks    int      `json:"ticks"`
	Entities int      `json:"entities"`
	Queries  int      `json:"queries"`
	Sets     int      `json:"sets"`
	Errors   []string `json:"errors,omitempty"`
}

func NewValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a scene file",
		Long:  "Decode a scene file, compile its expressions and report every problem found.",
		RunE:  runValidate,
		Args:  cobra.NoArgs,
		PreRun: func(cmd *cobra.Command, args []string) {
			flags := cmd.Flags()

			util.MustBindPFlag(sceneConf, flags.Lookup(sceneFlag))
		},
	}

	flags := cmd.Flags()
	flags.String(sceneFlag, "", "the path of the scene file")

	// NOTE: if you add a new flag here, add the binding in PreRun

	return cmd
}

func runValidate(cmd *cobra.Command, _ []string) error {
	if err := viper.ReadInConfig(); err != nil && !errors.As(err, &viper.ConfigFileNotFoundError{}) {
		return fmt.Errorf("failed to load config: %w", err)
	}

	path := viper.GetString(sceneConf)
	if path == "" {
		return fmt.Errorf("missing scene file")
	}

	s, err := scene.Load(path)
	if err != nil {
		return err
	}

	result := ValidationResult{
		Path:     path,
		Name:     s.Name,
		Ticks:    s.Length(),
		Entities: len(s.Entities),
		Queries:  len(s.Queries),
		Sets:     len(s.Sets),
	}

	verr := s.Validate()
	if verr != nil {
		var joined interface{ Unwrap() []error }
		if errors.As(verr, &joined) {
			for _, e := range joined.Unwrap() {
				result.Errors = append(result.Errors, e.Error())
			}
		} else {
			result.Errors = []string{verr.Error()}
		}
	}

	// print validation results in json format to allow piping to other commands, e.g. jq
	marshalled, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("error gathering validation results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(marshalled))

	if verr != nil {
		return fmt.Errorf("scene '%s' has %d problem(s)", path, len(result.Errors))
	}
	return nil
}
