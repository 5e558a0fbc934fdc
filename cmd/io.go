package cmd

import (
	"fmt"
	"io"
	"os"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/sociallink/api/schemas"
	"github.com/xkilldash9x/sociallink/internal/credentials"
)

// writeJSON prints v as indented JSON on the command's output.
func writeJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.ConfigCompatibleWithStandardLibrary.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readInput returns the contents of the named file, or stdin for "" and "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("could not expand path %s: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	return data, nil
}

// readCredentials parses a pasted credential blob from path or stdin.
func readCredentials(cmd *cobra.Command, path string, n *credentials.Normalizer) ([]schemas.Credential, error) {
	raw, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	creds := n.Parse(string(raw))
	if len(creds) == 0 {
		return nil, schemas.ErrMalformedInput
	}
	return creds, nil
}

// credentialNames lists names only; values never reach the terminal.
func credentialNames(creds []schemas.Credential) []string {
	names := make([]string, len(creds))
	for i, c := range creds {
		names[i] = c.Name
	}
	return names
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
