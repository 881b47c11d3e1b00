package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/isometry/ldap-gate/internal/ldap"
)

func newGroupCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "group",
		Short: "Inspect and manage directory groups",
	}

	cmd.AddCommand(
		newGroupShowCommand(opts),
		newGroupExtendCommand(opts, "add-owner", "Add owner DNs to a group", func(g *ldap.GroupCache) groupExtender { return g.AddOwners }),
		newGroupExtendCommand(opts, "add-member", "Add member DNs to a group", func(g *ldap.GroupCache) groupExtender { return g.AddMembers }),
	)

	return cmd
}

func newGroupShowCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show <cn>",
		Short: "Print a group entry as JSON",
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

			if err := dir.groups.RefreshOne(ctx, args[0]); err != nil {
				return err
			}
			group, ok := dir.groups.Get(args[0])
			if !ok {
				return fmt.Errorf("group %s: %w", args[0], ldap.ErrEntryNotFound)
			}

			return printJSON(cmd.OutOrStdout(), group)
		},
	}
}

type groupExtender func(ctx context.Context, cn string, dns []string) (bool, error)

func newGroupExtendCommand(opts *rootOptions, use, short string, pick func(*ldap.GroupCache) groupExtender) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <cn> <dn>...",
		Short: short,
		Args:  cobra.MinimumNArgs(2),
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

			changed, err := pick(dir.groups)(ctx, args[0], args[1:])
			if err != nil {
				return err
			}

			status := "unchanged"
			if changed {
				status = "updated"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", status, args[0])
			return err
		},
	}
}
