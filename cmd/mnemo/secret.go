// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sigil-dev/mnemo/internal/secrets"
	sigilerr "github.com/sigil-dev/mnemo/pkg/errors"
)

// secretStoreFactory is swapped out in tests.
var secretStoreFactory = func() secrets.Store {
	return secrets.NewKeyringStore()
}

func newSecretCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage credentials in the OS keyring",
		Long: `Store credentials in the OS keyring and reference them from mnemo.yaml as
keyring://mnemo/<name>, for example:

  mnemo secret set openai-api-key < key.txt
  embedding:
    api_key: keyring://mnemo/openai-api-key`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <name>",
			Short: "Store a secret read from stdin",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecretSet,
		},
		&cobra.Command{
			Use:   "list",
			Short: "List stored secret names",
			Args:  cobra.NoArgs,
			RunE:  runSecretList,
		},
		&cobra.Command{
			Use:   "delete <name>",
			Short: "Delete a stored secret",
			Args:  cobra.ExactArgs(1),
			RunE:  runSecretDelete,
		},
	)
	return cmd
}

func runSecretSet(cmd *cobra.Command, args []string) error {
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	value := strings.TrimSpace(line)
	if value == "" {
		return sigilerr.New(sigilerr.CodeCLIInputInvalid, "no secret value on stdin")
	}
	if err := secretStoreFactory().Set(secrets.DefaultService, args[0], value); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "stored keyring://%s/%s\n", secrets.DefaultService, args[0])
	return err
}

func runSecretList(cmd *cobra.Command, _ []string) error {
	keys, err := secretStoreFactory().List(secrets.DefaultService)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(keys) == 0 {
		_, _ = fmt.Fprintln(out, "No secrets stored.")
		return nil
	}
	for _, k := range keys {
		_, _ = fmt.Fprintf(out, "keyring://%s/%s\n", secrets.DefaultService, k)
	}
	return nil
}

func runSecretDelete(cmd *cobra.Command, args []string) error {
	if err := secretStoreFactory().Delete(secrets.DefaultService, args[0]); err != nil {
		return err
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
	return err
}
