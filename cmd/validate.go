package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/service"
)

func newValidateCmd(factory service.ComponentFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Check whether pasted credentials open an authenticated session",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withComponents(cmd, factory, func(ctx context.Context, c *service.Components) error {
				creds, err := readCredentials(cmd, argOrEmpty(args), c.Normalizer)
				if err != nil {
					return err
				}
				valid, err := c.Validator.Validate(ctx, creds)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd, map[string]interface{}{
					"valid":       valid,
					"credentials": credentialNames(creds),
				}); err != nil {
					return err
				}
				if !valid {
					return fmt.Errorf("credentials did not authenticate: %w", schemas.ErrSessionRejected)
				}
				return nil
			})
		},
	}
}
