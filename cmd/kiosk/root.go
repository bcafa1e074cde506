package main

import (
	"strings"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teslashibe/go-elevatr/internal/config"
	"github.com/teslashibe/go-elevatr/internal/log"
)

// skipConfig marks commands that must work without a valid configuration.
const skipConfig = "skipConfigLoad"

type commandContext struct {
	configFlag   string
	logLevelFlag string

	once   sync.Once
	config *config.Config
	err    error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.once.Do(func() {
		cfg, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.err = err
			return
		}
		if c.logLevelFlag != "" {
			cfg.Logging.Level = c.logLevelFlag
		}
		c.config = cfg
	})
	return c.config, c.err
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	root := &cobra.Command{
		Use:           "kiosk",
		Short:         "Elevator kiosk face identification",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// .env is optional
			_ = godotenv.Load()

			if cmd.Annotations[skipConfig] == "true" {
				log.Init(ctx.logLevelFlag, "text")
				return nil
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			log.Init(cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path (default "+config.DefaultPath+")")
	root.PersistentFlags().StringVar(&ctx.logLevelFlag, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(newRunCommand(ctx))
	root.AddCommand(newGalleryCommand(ctx))
	root.AddCommand(newHistoryCommand(ctx))
	root.AddCommand(newConfigCommand(ctx))
	return root
}
