package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotsetgreg/rumi/pkg/config"
	"github.com/dotsetgreg/rumi/pkg/memory"
)

type rootOptions struct {
	configPath string
	debug      bool
}

func executeCLI() error {
	return buildRootCommand().ExecuteContext(context.Background())
}

func buildRootCommand() *cobra.Command {
	opts := &rootOptions{}
	var showVersion bool

	root := &cobra.Command{
		Use:   appName,
		Short: "Conversational memory for a Discord assistant",
		Long: strings.TrimSpace(`rumi records every message it sees in a Discord guild, keeps rolling
channel summaries and per-user profiles, and serves time-windowed context.

Run the gateway to start recording, or use the inspection commands to look
inside the memory database.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion(cmd.OutOrStdout())
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default ~/.rumi/config.json)")
	root.PersistentFlags().BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")

	root.AddCommand(newGatewayCommand(opts))
	root.AddCommand(newCleanupCommand(opts))
	root.AddCommand(newStatusCommand(opts))
	root.AddCommand(newContextCommand(opts))
	root.AddCommand(newProfileCommand(opts))
	root.AddCommand(newUsersCommand(opts))
	root.AddCommand(newTablesCommand(opts))
	root.AddCommand(newShellCommand(opts))
	root.AddCommand(newVersionCommand())
	root.AddCommand(newDocsCommand(buildRootCommand))

	return root
}

// withStore loads the config, opens the store and runs fn against it.
func withStore(opts *rootOptions, fn func(cfg *config.Config, store *memory.SQLiteStore) error) error {
	cfg, err := loadConfig(opts.configPath, opts.debug)
	if err != nil {
		return err
	}
	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("open memory store: %w", err)
	}
	defer store.Close()
	return fn(cfg, store)
}

func newGatewayCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "gateway",
		Short:   "Run the Discord gateway",
		Long:    "Connect to Discord, record guild messages, serve slash commands and run the retention sweeper.",
		Example: "  rumi gateway --debug",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts.configPath, opts.debug)
			if err != nil {
				return err
			}
			return runGateway(cmd.OutOrStdout(), cfg)
		},
	}
}

func newCleanupCommand(opts *rootOptions) *cobra.Command {
	var rawDays, summaryDays int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete messages and summaries past their retention horizon",
		Example: strings.Join([]string{
			"  rumi cleanup",
			"  rumi cleanup --raw-days 14 --summary-days 60",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(cfg *config.Config, store *memory.SQLiteStore) error {
				policy := retentionPolicy(cfg)
				if rawDays > 0 {
					policy.RawDays = rawDays
				}
				if summaryDays > 0 {
					policy.SummaryDays = summaryDays
				}
				return runCleanup(cmd.Context(), cmd.OutOrStdout(), store, policy)
			})
		},
	}
	cmd.Flags().IntVar(&rawDays, "raw-days", 0, "Override retention.raw_days")
	cmd.Flags().IntVar(&summaryDays, "summary-days", 0, "Override retention.summary_days")
	return cmd
}

func newStatusCommand(opts *rootOptions) *cobra.Command {
	var guildID, channelID string

	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show configuration and memory database status",
		Example: "  rumi status --guild 123 --channel 456",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(cfg *config.Config, store *memory.SQLiteStore) error {
				configPath := opts.configPath
				if configPath == "" {
					configPath = config.DefaultPath()
				}
				return runStatus(cmd.Context(), cmd.OutOrStdout(), statusInput{
					configPath: configPath,
					cfg:        cfg,
					store:      store,
					guildID:    guildID,
					channelID:  channelID,
				})
			})
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "Guild id for channel status")
	cmd.Flags().StringVar(&channelID, "channel", "", "Channel id for channel status")
	return cmd
}

func newContextCommand(opts *rootOptions) *cobra.Command {
	var guildID, channelID string
	var days int

	cmd := &cobra.Command{
		Use:     "context",
		Short:   "Print the summarized conversation context of a channel",
		Example: "  rumi context --guild 123 --channel 456 --days 3",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(cfg *config.Config, store *memory.SQLiteStore) error {
				return runContext(cmd.Context(), cmd.OutOrStdout(), store, guildID, channelID, days)
			})
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "Guild id")
	cmd.Flags().StringVar(&channelID, "channel", "", "Channel id")
	cmd.Flags().IntVar(&days, "days", 7, "How many days of summaries to include")
	_ = cmd.MarkFlagRequired("guild")
	_ = cmd.MarkFlagRequired("channel")
	return cmd
}

func newProfileCommand(opts *rootOptions) *cobra.Command {
	var userID, guildID string

	cmd := &cobra.Command{
		Use:     "profile",
		Short:   "Show a user's stats and stored profile",
		Example: "  rumi profile --user 789 --guild 123",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(cfg *config.Config, store *memory.SQLiteStore) error {
				return runProfile(cmd.Context(), cmd.OutOrStdout(), store, userID, guildID)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "User id")
	cmd.Flags().StringVar(&guildID, "guild", "", "Guild id")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newUsersCommand(opts *rootOptions) *cobra.Command {
	var guildID string
	var limit int

	cmd := &cobra.Command{
		Use:     "users",
		Short:   "List recently seen users",
		Example: "  rumi users --guild 123 --limit 50",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(cfg *config.Config, store *memory.SQLiteStore) error {
				return runUsers(cmd.Context(), cmd.OutOrStdout(), store, guildID, limit)
			})
		},
	}
	cmd.Flags().StringVar(&guildID, "guild", "", "Only count messages in this guild")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum users to list")
	return cmd
}

func newTablesCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tables",
		Short: "List core and per-user partition tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(cfg *config.Config, store *memory.SQLiteStore) error {
				return runTables(cmd.Context(), cmd.OutOrStdout(), store)
			})
		},
	}
}

func newShellCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactively inspect the memory database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(opts, func(cfg *config.Config, store *memory.SQLiteStore) error {
				return runShell(cmd.Context(), cmd.OutOrStdout(), store, retentionPolicy(cfg))
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion(cmd.OutOrStdout())
			return nil
		},
	}
}
