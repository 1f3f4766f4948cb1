package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/francaflow/flow-go/internal/clients"
)

func newClientsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clients",
		Short: "Manage the client directory",
		Long: `Manage the client directory the server looks client codes up in.

These commands open the configured backend ([clients] backend) directly,
so run them on the server host or against the same Redis instance.`,
	}

	cmd.AddCommand(newClientsListCmd())
	cmd.AddCommand(newClientsAddCmd())
	cmd.AddCommand(newClientsRemoveCmd())
	cmd.AddCommand(newClientsMigrateCmd())

	return cmd
}

func newClientsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every client",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClientStore(cmd, func(cc *CLIContext, store clients.Store) error {
				list, err := store.List(cmd.Context())
				if err != nil {
					return err
				}

				return printClients(os.Stdout, list, cc.Flags.JSON)
			})
		},
	}
}

func newClientsAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a client with a unique code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			name, _ := cmd.Flags().GetString("name")
			category, _ := cmd.Flags().GetString("category")
			code, _ := cmd.Flags().GetString("code")

			return withClientStore(cmd, func(cc *CLIContext, store clients.Store) error {
				c, err := store.Add(cmd.Context(), clients.NewClient{Name: name, Category: category, Code: code})
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(os.Stdout, c)
				}

				cc.Statusf("Added %s (%s) with code %q, id %s\n", c.Name, c.Category, c.Code, c.ID)

				return nil
			})
		},
	}

	cmd.Flags().String("name", "", "client name (required)")
	cmd.Flags().String("category", "", "client category (required)")
	cmd.Flags().String("code", "", "unique public code (required)")

	for _, f := range []string{"name", "category", "code"} {
		if err := cmd.MarkFlagRequired(f); err != nil {
			panic(err)
		}
	}

	return cmd
}

func newClientsRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a client by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClientStore(cmd, func(cc *CLIContext, store clients.Store) error {
				if err := store.Remove(cmd.Context(), args[0]); err != nil {
					return err
				}

				cc.Statusf("Removed %s\n", args[0])

				return nil
			})
		},
	}
}

func newClientsMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Replace the directory with the built-in client list",
		Long: `Replace the whole client directory with the built-in list of legacy
clients. Clients added since are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClientStore(cmd, func(cc *CLIContext, store clients.Store) error {
				list, err := store.Migrate(cmd.Context())
				if err != nil {
					return err
				}

				if cc.Flags.JSON {
					return printJSON(os.Stdout, list)
				}

				cc.Statusf("%d clients migrated\n", len(list))

				return nil
			})
		},
	}
}

// withClientStore opens the configured store, runs fn, and closes it.
func withClientStore(cmd *cobra.Command, fn func(*CLIContext, clients.Store) error) (err error) {
	cc := mustCLIContext(cmd.Context())

	store, err := openClientStore(cmd.Context(), cc.Cfg, cc.Logger)
	if err != nil {
		return err
	}

	defer func() {
		if cerr := store.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing client directory: %w", cerr)
		}
	}()

	return fn(cc, store)
}

func printClients(w io.Writer, list []clients.Client, asJSON bool) error {
	if asJSON {
		if list == nil {
			list = []clients.Client{}
		}

		return printJSON(w, list)
	}

	if len(list) == 0 {
		fmt.Fprintln(w, "No clients.")
		return nil
	}

	rows := make([][]string, 0, len(list))
	for _, c := range list {
		rows = append(rows, []string{c.Code, c.Name, c.Category, formatTime(c.CreatedAt), c.ID})
	}

	printTable(w, []string{"CODE", "NAME", "CATEGORY", "ADDED", "ID"}, rows)

	return nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
