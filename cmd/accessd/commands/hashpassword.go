package commands

import (
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/maxpark/accessd/pkg/session"
)

var hashPasswordCmd = &cobra.Command{
	Use:   "hash-password",
	Short: "Generate a password digest for the admin config",
	Long: `Read a password from the terminal and print the digest to put in
admin.password_digest (or the ACCESSD_ADMIN_PASSWORD_DIGEST
environment variable).`,
	RunE: runHashPassword,
}

func runHashPassword(cmd *cobra.Command, args []string) error {
	fmt.Fprint(os.Stderr, "Password: ")
	password, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	fmt.Fprint(os.Stderr, "Confirm:  ")
	confirm, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return fmt.Errorf("read confirmation: %w", err)
	}

	if string(password) != string(confirm) {
		return fmt.Errorf("passwords do not match")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	digest, err := session.HashPasswordArgon2(string(password))
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	fmt.Println(digest)
	return nil
}
