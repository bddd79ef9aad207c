package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"filegate/internal/cli"
	"filegate/internal/client"
	"filegate/internal/config"
	"filegate/internal/logging"
	"filegate/internal/server"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "filegate",
	Short:         "Filegate stores uploaded files across several storage backends.",
	Long:          `Filegate is an upload gateway. It writes each file to the first storage backend that accepts it and serves it back by location, owner, session and file id.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "serve" || cmd.Name() == "hash-token" {
			return nil
		}
		return client.LoadBaseURL()
	},
}

var serveFlags struct {
	Port    string
	EnvFile string
}
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway server.",
	Long:  `Run the gateway server. Backends, principals and limits are read from the environment and the optional .env file.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load(serveFlags.EnvFile)
		if serveFlags.Port != "" {
			cfg.Port = serveFlags.Port
		}

		logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
		if err != nil {
			return err
		}
		return server.Serve(cmd.Context(), cfg, logger)
	},
}

var pushCmdFlags cli.PushFlags
var pushCmd = &cobra.Command{
	Use:   "push [file1] [file2] ...",
	Short: "Upload files.",
	Long:  `Upload files. Each file gets its own id inside one upload session. With --path every file is written to that path instead.`,
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Push(cmd.Context(), pushCmdFlags, args)
	},
}

var pullCmdFlags cli.PullFlags
var pullCmd = &cobra.Command{
	Use:   "pull [location/]uid/session/file",
	Short: "Download a file.",
	Long:  `Download a file. Without a location every backend is searched.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Pull(cmd.Context(), pullCmdFlags, args[0])
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your files.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.List(cmd.Context())
	},
}

var loginServer string
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token.",
	Long:  `Store an access token. The token is checked against the server before it is saved.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Login(loginServer)
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored access token.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.Logout()
	},
}

var hashTokenCmd = &cobra.Command{
	Use:   "hash-token",
	Short: "Print a bcrypt hash of a token for the principals file.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.HashToken()
	},
}

func main() {
	rootCmd.AddCommand(serveCmd, pushCmd, pullCmd, listCmd, loginCmd, logoutCmd, hashTokenCmd)

	// ==============
	// serveCmd flags
	// ==============
	serveCmd.Flags().StringVarP(&serveFlags.Port, "port", "p", "", "Port to listen on, overrides PORT")
	serveCmd.Flags().StringVar(&serveFlags.EnvFile, "env-file", ".env", "Optional .env file")

	// =============
	// pushCmd flags
	// =============
	pushCmd.Flags().StringVarP(
		&pushCmdFlags.Path, "path", "p", "",
		"Explicit storage path, use slashes to separate folders. Requires an application token",
	)

	// =============
	// pullCmd flags
	// =============
	pullCmd.Flags().StringVarP(&pullCmdFlags.Out, "out", "o", ".", "Output directory")

	loginCmd.Flags().StringVar(&loginServer, "server", "", "Server URL to remember, e.g. https://files.example.com")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
