package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sociallink/internal/service"
)

func newSendCmd(factory service.ComponentFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "send <account-id> <target-handle> <message...>",
		Short: "Send a direct message from a connected account",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[2:], " ")
			return withComponents(cmd, factory, func(ctx context.Context, c *service.Components) error {
				res, err := c.Engine.SendDirectMessage(ctx, args[0], args[1], text)
				if err != nil {
					return err
				}
				if err := writeJSON(cmd, res); err != nil {
					return err
				}
				if !res.Success {
					return fmt.Errorf("message not sent: %s", res.Reason)
				}
				return nil
			})
		},
	}
}
