package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/service"
)

// outcomeView is the printable form of an engine.Outcome.
type outcomeView struct {
	AccountID string              `json:"accountId"`
	Result    *schemas.SyncResult `json:"result,omitempty"`
	Error     string              `json:"error,omitempty"`
}

func newSyncCmd(factory service.ComponentFactory) *cobra.Command {
	var (
		all       bool
		credsPath string
	)
	cmd := &cobra.Command{
		Use:   "sync [account-id]",
		Short: "Collect new interactions for one account or every active account",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return errors.New("pass exactly one of an account id or --all")
			}
			if all && credsPath != "" {
				return errors.New("--credentials applies to a single account")
			}
			return withComponents(cmd, factory, func(ctx context.Context, c *service.Components) error {
				if all {
					return syncAll(ctx, cmd, c)
				}
				var creds []schemas.Credential
				if credsPath != "" {
					var err error
					if creds, err = readCredentials(cmd, credsPath, c.Normalizer); err != nil {
						return err
					}
				}
				res, err := c.Engine.SyncInteractions(ctx, args[0], creds)
				if err != nil {
					return err
				}
				return writeJSON(cmd, res)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "sync every active account")
	cmd.Flags().StringVar(&credsPath, "credentials", "", "credential paste to build the session from (\"-\" for stdin)")
	return cmd
}

func syncAll(ctx context.Context, cmd *cobra.Command, c *service.Components) error {
	outcomes, err := c.Engine.SyncAll(ctx)
	if err != nil {
		return err
	}
	views := make([]outcomeView, len(outcomes))
	failed := 0
	for i, o := range outcomes {
		views[i].AccountID = o.AccountID
		if o.Err != nil {
			views[i].Error = o.Err.Error()
			failed++
			continue
		}
		res := o.Result
		views[i].Result = &res
	}
	if err := writeJSON(cmd, views); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d accounts failed to sync", failed, len(outcomes))
	}
	return nil
}
