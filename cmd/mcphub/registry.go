package main

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newRegistryCmd(a *app) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Browse the public server registry",
	}
	cmd.PersistentFlags().BoolVar(&refresh, "refresh", false, "ignore the cached registry")

	search := &cobra.Command{
		Use:   "search [QUERY]",
		Short: "Search servers by name, description or tag",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if refresh {
				if _, err := a.registry.Fetch(cmd.Context(), true); err != nil {
					return err
				}
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			entries, err := a.registry.Search(cmd.Context(), query)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Version", "Tags", "Description"})
			for _, e := range entries {
				t.AppendRow(table.Row{e.Name, e.Version, strings.Join(e.Tags, ", "), e.Description})
			}
			t.Render()
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show NAME",
		Short: "Show a registry entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := a.registry.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Name:        %s\n", entry.Name)
			fmt.Fprintf(out, "Version:     %s\n", entry.Version)
			fmt.Fprintf(out, "Repository:  %s\n", entry.Repository)
			fmt.Fprintf(out, "Tags:        %s\n", strings.Join(entry.Tags, ", "))
			fmt.Fprintf(out, "Description: %s\n", entry.Description)
			return nil
		},
	}

	install := &cobra.Command{
		Use:   "install NAME",
		Short: "Install a server listed in the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := a.registry.Lookup(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			server, err := a.manager.Install(cmd.Context(), entry.Descriptor())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s (%s) at %s\n", server.Name, server.Version, server.InstallPath)
			return nil
		},
	}

	cmd.AddCommand(search, show, install)
	return cmd
}
