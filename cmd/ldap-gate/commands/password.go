package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/isometry/ldap-gate/internal/password"
)

// ErrPasswordMismatch is returned by verify-password when the hash does not match.
var ErrPasswordMismatch = errors.New("password does not match")

func newHashPasswordCommand() *cobra.Command {
	var scheme string

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Hash a password read from stdin",
		Long: `Read a password from the first line of stdin and print its tagged hash,
suitable for a userPassword attribute.

Examples:
  echo -n 's3cret' | ldap-gate hash-password`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}

			hashed, err := password.Hash(plaintext, password.Scheme(scheme))
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), hashed)
			return err
		},
	}

	cmd.Flags().StringVar(&scheme, "scheme", string(password.Default), "hash scheme")

	return cmd
}

func newVerifyPasswordCommand() *cobra.Command {
	var hash string

	cmd := &cobra.Command{
		Use:   "verify-password",
		Short: "Check a password read from stdin against a stored hash",
		Long: `Read a password from the first line of stdin and compare it with a stored
userPassword value. Exits non-zero on mismatch.

Examples:
  echo -n 's3cret' | ldap-gate verify-password --hash '{SSHA}...'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			plaintext, err := readSecret(cmd.InOrStdin())
			if err != nil {
				return err
			}

			if !password.Verify(plaintext, hash) {
				return ErrPasswordMismatch
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return err
		},
	}

	cmd.Flags().StringVar(&hash, "hash", "", "stored hash to compare against")
	_ = cmd.MarkFlagRequired("hash")

	return cmd
}

// readSecret returns the first line of r without its line ending.
func readSecret(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return "", errors.New("password cannot be empty")
	}
	return line, nil
}
