package main

import (
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/wadjakorntonsri/go-safelink/pkg/adapters/repository"
	"github.com/wadjakorntonsri/go-safelink/pkg/config"
	"github.com/wadjakorntonsri/go-safelink/pkg/logging"
	"github.com/wadjakorntonsri/go-safelink/pkg/ports"
)

func newRootCommand() *cobra.Command {
	var serverFlag string

	ctx := newCommandContext(&serverFlag)

	rootCmd := &cobra.Command{
		Use:           "safelink",
		Short:         "Issue, inspect and visit safe links",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Gateway base URL (defaults to BASE_URL)")

	rootCmd.AddCommand(newIssueCommand(ctx))
	rootCmd.AddCommand(newShowCommand(ctx))
	rootCmd.AddCommand(newExportCommand(ctx))
	rootCmd.AddCommand(newImportCommand(ctx))
	rootCmd.AddCommand(newVisitCommand(ctx))

	return rootCmd
}

type commandContext struct {
	serverFlag *string

	configOnce sync.Once
	config     *config.Config
	logger     *slog.Logger
	configErr  error
}

func newCommandContext(serverFlag *string) *commandContext {
	return &commandContext{serverFlag: serverFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.configErr = err
			return
		}
		logger, err := logging.New(logging.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: os.Stderr})
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.logger = logger
	})
	return c.config, c.configErr
}

func (c *commandContext) serverURL() string {
	if c.serverFlag != nil {
		if s := strings.TrimSpace(*c.serverFlag); s != "" {
			return strings.TrimRight(s, "/")
		}
	}
	if c.config != nil {
		return c.config.BaseURL
	}
	return config.Default().BaseURL
}

func (c *commandContext) log() *slog.Logger {
	if c.logger == nil {
		return logging.NewNop()
	}
	return c.logger
}

// withStore opens the configured token store for the duration of fn.
func (c *commandContext) withStore(fn func(ports.TokenStore) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := repository.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}
