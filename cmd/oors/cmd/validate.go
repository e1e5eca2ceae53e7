package cmd

import (
	"errors"
	"fmt"

	"github.com/GoCodeAlone/oors"
	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command
func NewValidateCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration without starting any module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := load(cmd.Context(), opts.loader())
			if err != nil {
				return err
			}

			modules := builtins(doc)
			err = checkSections(doc, modules)
			v := newValidator()
			for _, mod := range modules {
				normalized, verr := v.ValidateModule(mod)
				if verr == nil {
					verr = oors.DecodeConfig(normalized, configTarget(mod))
				}
				if verr != nil {
					err = errors.Join(err, fmt.Errorf("%s: %w", mod.Name(), verr))
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", mod.Name())
			}
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return nil
		},
	}
}
