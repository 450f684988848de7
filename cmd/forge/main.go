package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"forge/pkg/engine"
	"forge/pkg/server"
)

func main() {
	root := &cobra.Command{
		Use:   "forge",
		Short: "Self-hosted source control service",
	}

	root.AddCommand(newVersionCmd())
	root.AddCommand(newServeCmd())
	root.AddCommand(newInitRepoCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("forge 0.1.0-dev")
		},
	}
}

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := server.LoadConfig(configPath)
			if err != nil {
				return err
			}
			logger, err := server.NewLogger(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			eng, err := engine.New(cfg.ReposRoot)
			if err != nil {
				return err
			}

			logger.Info("listening on " + cfg.ListenAddr)
			return server.New(eng, logger, cfg).ListenAndServe()
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	return cmd
}

func newInitRepoCmd() *cobra.Command {
	var root string
	var defaultBranch string

	cmd := &cobra.Command{
		Use:   "init-repo <name>",
		Short: "Create a bare repository under the repos root",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := engine.New(root)
			if err != nil {
				return err
			}
			if err := eng.CreateRepository(args[0], defaultBranch); err != nil {
				return err
			}
			fmt.Printf("created %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "repos", "repositories root directory")
	cmd.Flags().StringVar(&defaultBranch, "branch", "main", "default branch name")
	return cmd
}
