package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/service"
)

func newConnectCmd(factory service.ComponentFactory) *cobra.Command {
	var (
		workspace string
		qrOut     string
	)
	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Connect an account by scanning a login QR code",
		Long: `Opens the platform's QR login page, saves the code as a PNG and waits for
it to be scanned from the mobile app. Once the login completes the account is
activated and its credentials stored.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if workspace == "" {
				return errors.New("--workspace is required")
			}
			return withComponents(cmd, factory, func(ctx context.Context, c *service.Components) error {
				start, err := c.Engine.InitiateQRConnection(ctx, workspace)
				if err != nil {
					return fmt.Errorf("failed to start connection: %w", err)
				}
				if err := writeCode(qrOut, start.Code); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Scan the code saved to %s with the mobile app before %s.\n",
					qrOut, start.ExpiresAt.Local().Format(time.Kitchen))

				res, err := awaitConnection(ctx, c, start.ConnectionID, c.Config.QR().PollInterval)
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]interface{}{
					"accountId":   res.AccountID,
					"username":    res.Username,
					"credentials": credentialNames(res.Credentials),
				})
			})
		},
	}
	cmd.Flags().StringVarP(&workspace, "workspace", "w", "", "workspace the account belongs to")
	cmd.Flags().StringVar(&qrOut, "qr-out", "qr.png", "where to save the QR code image")
	return cmd
}

func writeCode(path string, code []byte) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("could not expand path %s: %w", path, err)
	}
	if err := os.WriteFile(expanded, code, 0o600); err != nil {
		return fmt.Errorf("failed to save QR code: %w", err)
	}
	return nil
}

// awaitConnection polls until the handshake is terminal and claims it when
// it connected.
func awaitConnection(ctx context.Context, c *service.Components, id string, every time.Duration) (schemas.ConnectionResult, error) {
	if every <= 0 {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		st, err := c.Engine.GetConnectionStatus(id)
		if err != nil {
			return schemas.ConnectionResult{}, err
		}
		switch st.State {
		case schemas.QRConnected:
			return c.Engine.CompleteConnection(ctx, id)
		case schemas.QRExpired, schemas.QRError:
			if st.Error != "" {
				return schemas.ConnectionResult{}, fmt.Errorf("connection %s ended in state %s: %s", id, st.State, st.Error)
			}
			return schemas.ConnectionResult{}, fmt.Errorf("connection %s ended in state %s", id, st.State)
		}
		select {
		case <-ctx.Done():
			return schemas.ConnectionResult{}, ctx.Err()
		case <-ticker.C:
		}
	}
}
