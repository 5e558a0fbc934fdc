package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sociallink/internal/credentials"
	"github.com/xkilldash9x/sociallink/internal/platform"
)

func newNormalizeCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Parse pasted credentials into canonical records",
		Long: `Reads a credential paste (cookie header, Set-Cookie lines, inspector table,
raw inspector copy or a cookie-editor JSON export) from the file or stdin and
prints the canonical records.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			plat, err := platform.New(cfg.Platform())
			if err != nil {
				return err
			}
			creds, err := readCredentials(cmd, argOrEmpty(args), credentials.New(plat.CookieDomain()))
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return writeJSON(cmd, creds)
			case "header":
				_, err := fmt.Fprintln(cmd.OutOrStdout(), credentials.Format(creds))
				return err
			default:
				return fmt.Errorf("unknown format %q (want json or header)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "output format: json or header")
	return cmd
}
