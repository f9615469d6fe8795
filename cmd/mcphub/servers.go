package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vlazic/mcphub/internal/models"
)

type installOptions struct {
	file           string
	name           string
	version        string
	runtime        string
	pkg            string
	args           []string
	port           int
	authToken      string
	env            map[string]string
	installCommand string
	installArgs    []string
}

func newInstallCmd(a *app) *cobra.Command {
	opts := &installOptions{}
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a server and register it with Claude Desktop",
		Example: `  mcphub install --name "Git MCP Server" --runtime node --package git-mcp-server --arg --stdio
  mcphub install --file weather.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			descriptor, err := opts.descriptor()
			if err != nil {
				return err
			}
			server, err := a.manager.Install(cmd.Context(), descriptor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Installed %s (%s) at %s\n", server.Name, server.Version, server.InstallPath)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.file, "file", "f", "", "read the server descriptor from a YAML file")
	f.StringVar(&opts.name, "name", "", "server name")
	f.StringVar(&opts.version, "version", "", "version to record")
	f.StringVar(&opts.runtime, "runtime", "", "runtime: node or python")
	f.StringVar(&opts.pkg, "package", "", "registry package name or repository URL")
	f.StringArrayVar(&opts.args, "arg", nil, "argument passed to the server (repeatable)")
	f.IntVar(&opts.port, "port", 0, "port passed as --port when starting")
	f.StringVar(&opts.authToken, "auth-token", "", "token passed as --auth-token when starting")
	f.StringToStringVar(&opts.env, "env", nil, "environment variable KEY=VALUE (repeatable)")
	f.StringVar(&opts.installCommand, "install-command", "", "override the install command")
	f.StringArrayVar(&opts.installArgs, "install-arg", nil, "argument for --install-command (repeatable)")
	return cmd
}

func (o *installOptions) descriptor() (*models.ServerDescriptor, error) {
	if o.file != "" {
		data, err := os.ReadFile(o.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read descriptor: %w", err)
		}
		var d models.ServerDescriptor
		if err := yaml.Unmarshal(data, &d); err != nil {
			return nil, fmt.Errorf("failed to parse descriptor: %w", err)
		}
		return &d, nil
	}

	args := o.args
	if args == nil {
		args = []string{}
	}
	return &models.ServerDescriptor{
		Name:             o.name,
		Version:          o.version,
		Runtime:          models.Runtime(o.runtime),
		PackageReference: o.pkg,
		InstallCommand:   o.installCommand,
		InstallArgs:      o.installArgs,
		CommandArgs:      args,
		DefaultNetwork: models.NetworkSettings{
			Port:      o.port,
			AuthToken: o.authToken,
			Env:       o.env,
		},
	}, nil
}

func newUninstallCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall NAME",
		Short: "Stop, delete and unregister a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.manager.Uninstall(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uninstalled %s\n", models.Slug(args[0]))
			return nil
		},
	}
}

func newListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed servers",
		RunE: func(cmd *cobra.Command, args []string) error {
			servers, err := a.manager.ListServers(cmd.Context())
			if err != nil {
				return err
			}
			if len(servers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No servers installed")
				return nil
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Version", "Runtime", "Enabled", "Running", "Port", "Path"})
			for _, s := range servers {
				port := "-"
				if s.Port > 0 {
					port = strconv.Itoa(s.Port)
				}
				t.AppendRow(table.Row{s.Name, s.Version, s.Runtime, s.Enabled, s.Running, port, s.InstallPath})
			}
			t.Render()
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status NAME",
		Short: "Show an installed server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := a.manager.GetServer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out, err := yaml.Marshal(struct {
				Name    string                  `yaml:"name"`
				Server  *models.InstalledServer `yaml:"server"`
				Running bool                    `yaml:"running"`
				Process *models.ProcessInfo     `yaml:"process,omitempty"`
			}{status.Name, status.InstalledServer, status.Running, status.Process})
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newEnableCmd(a *app, enabled bool) *cobra.Command {
	use, short := "enable NAME", "Register a server with Claude Desktop"
	if !enabled {
		use, short = "disable NAME", "Remove a server from Claude Desktop without uninstalling it"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			server, err := a.manager.SetEnabled(args[0], enabled)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s enabled=%t\n", server.Name, server.Enabled)
			return nil
		},
	}
}

func newConfigureCmd(a *app) *cobra.Command {
	var (
		port      int
		authToken string
		env       map[string]string
		cmdArgs   []string
	)
	cmd := &cobra.Command{
		Use:   "configure NAME",
		Short: "Change port, auth token, environment or arguments of a server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			update := &models.ServerUpdate{}
			flags := cmd.Flags()
			if flags.Changed("port") {
				update.Port = &port
			}
			if flags.Changed("auth-token") {
				update.AuthToken = &authToken
			}
			if flags.Changed("env") {
				update.Env = env
			}
			if flags.Changed("arg") {
				update.CommandArgs = cmdArgs
			}

			server, err := a.manager.Reconfigure(args[0], update)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", server.Name)
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&port, "port", 0, "port passed as --port when starting")
	f.StringVar(&authToken, "auth-token", "", "token passed as --auth-token when starting")
	f.StringToStringVar(&env, "env", nil, "replace the environment with KEY=VALUE pairs")
	f.StringArrayVar(&cmdArgs, "arg", nil, "replace the server arguments (repeatable)")
	return cmd
}

func newStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start NAME",
		Short: "Start a server in the background",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.manager.Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Started %s (pid %d), logging to %s\n", models.Slug(args[0]), info.PID, info.LogPath)
			return nil
		},
	}
}

func newStopCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stop NAME",
		Short: "Stop a running server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stopped, err := a.manager.Stop(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !stopped {
				fmt.Fprintf(cmd.OutOrStdout(), "%s is not running\n", models.Slug(args[0]))
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stopped %s\n", models.Slug(args[0]))
			return nil
		},
	}
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Rewrite the Claude Desktop config from local state",
		RunE: func(cmd *cobra.Command, args []string) error {
			changed, err := a.manager.Reconcile()
			if err != nil {
				return err
			}
			if changed {
				fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", a.clients.Path())
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Already in sync")
			}
			return nil
		},
	}
}
