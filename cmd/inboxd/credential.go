package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/nhle/inbox-companion/internal/apperr"
	"github.com/nhle/inbox-companion/internal/credential"
	"github.com/nhle/inbox-companion/internal/display"
)

var credentialDelete bool

var credentialCmd = &cobra.Command{
	Use:   "credential",
	Short: "Manage the IMAP password in the system keyring",
}

var credentialSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store the IMAP password for the configured account",
	Long: `Store the IMAP password under imap:<username>@<host>. The password is
read from the terminal without echo, or from the first line of stdin when
stdin is not a terminal. With --delete the stored password is removed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		vault := cur.vault
		if vault == nil {
			var err error
			if vault, err = credential.Open(); err != nil {
				return err
			}
		}

		key := cur.cfg.IMAP.CredentialKey()
		if credentialDelete {
			if err := vault.Delete(key); err != nil {
				return err
			}
			display.SuccessMsg(cmd.OutOrStdout(), "removed %s", key)
			return nil
		}

		password, err := readPassword(cmd, key)
		if err != nil {
			return err
		}
		if err := vault.Set(key, password); err != nil {
			return err
		}
		display.SuccessMsg(cmd.OutOrStdout(), "stored %s", key)
		return nil
	},
}

func readPassword(cmd *cobra.Command, key string) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Password for %s: ", key)
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return checkPassword(string(b))
	}

	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading password from stdin: %w", err)
	}
	return checkPassword(strings.TrimRight(line, "\r\n"))
}

func checkPassword(p string) (string, error) {
	if p == "" {
		return "", apperr.Validationf("credential.set", "password must not be empty")
	}
	return p, nil
}

func init() {
	credentialSetCmd.Flags().BoolVar(&credentialDelete, "delete", false, "Remove the stored password instead")

	credentialCmd.AddCommand(credentialSetCmd)
	rootCmd.AddCommand(credentialCmd)
}
