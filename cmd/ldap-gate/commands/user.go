package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/isometry/ldap-gate/internal/ldap"
)

func newUserCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Inspect and manage directory users",
	}

	cmd.AddCommand(
		newUserShowCommand(opts),
		newUserCreateCommand(opts),
		newUserDeleteCommand(opts),
	)

	return cmd
}

func newUserShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <uid>",
		Short: "Print a user entry as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, err := loggingContext(cmd, cfg)
			if err != nil {
				return err
			}

			dir, err := openDirectory(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = dir.Close() }()

			if err := dir.users.RefreshOne(ctx, args[0]); err != nil {
				return err
			}
			user, ok := dir.users.Get(args[0])
			if !ok {
				return fmt.Errorf("user %s: %w", args[0], ldap.ErrEntryNotFound)
			}

			return printJSON(cmd.OutOrStdout(), user)
		},
	}
}

type userCreateOptions struct {
	uid         string
	password    string
	mail        string
	firstName   string
	lastName    string
	name        string
	school      string
	genie       string
	matricule   string
	number      string
	pictureFile string
}

func newUserCreateCommand(opts *rootOptions) *cobra.Command {
	o := &userCreateOptions{}

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user entry",
		Long: `Create an inetOrgPerson entry under the users base DN. The password is
hashed before it is sent. Nothing is written when the uid already exists.

Examples:
  ldap-gate user create --uid jdoe --password s3cret --mail jdoe@example.com \
    --first-name John --last-name Doe --name "John Doe"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			builder := ldap.NewUserBuilder().
				UID(o.uid).
				Password(o.password).
				Mail(o.mail).
				FirstName(o.firstName).
				LastName(o.lastName).
				Name(o.name).
				School(o.school).
				Genie(o.genie).
				Matricule(o.matricule).
				Number(o.number)

			if o.pictureFile != "" {
				picture, err := os.ReadFile(o.pictureFile)
				if err != nil {
					return fmt.Errorf("failed to read picture: %w", err)
				}
				builder.Picture(picture)
			}

			user, err := builder.Build()
			if err != nil {
				return err
			}

			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, err := loggingContext(cmd, cfg)
			if err != nil {
				return err
			}

			dir, err := openDirectory(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = dir.Close() }()

			if err := dir.users.RefreshOne(ctx, user.UID); err != nil {
				return err
			}

			created, err := dir.users.Create(ctx, user)
			if err != nil {
				return err
			}
			if !created {
				return fmt.Errorf("user %s already exists", user.UID)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "created %s\n", dir.users.DN(user.UID))
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.uid, "uid", "", "user id")
	f.StringVar(&o.password, "password", "", "plaintext password")
	f.StringVar(&o.mail, "mail", "", "email address")
	f.StringVar(&o.firstName, "first-name", "", "given name")
	f.StringVar(&o.lastName, "last-name", "", "surname")
	f.StringVar(&o.name, "name", "", "common name")
	f.StringVar(&o.school, "school", "", "school (departmentNumber)")
	f.StringVar(&o.genie, "genie", "", "genie (roomNumber)")
	f.StringVar(&o.matricule, "matricule", "", "matricule (employeeNumber)")
	f.StringVar(&o.number, "number", "", "phone number (telephoneNumber)")
	f.StringVar(&o.pictureFile, "picture", "", "path to a JPEG picture")

	return cmd
}

func newUserDeleteCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <uid>",
		Short: "Delete a user entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load(cmd)
			if err != nil {
				return err
			}
			ctx, err := loggingContext(cmd, cfg)
			if err != nil {
				return err
			}

			dir, err := openDirectory(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = dir.Close() }()

			if _, err := dir.users.Delete(ctx, args[0]); err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", dir.users.DN(args[0]))
			return err
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
