package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/fitlife/fitlife-sync/pkg/config"
	"github.com/fitlife/fitlife-sync/pkg/logger"
)

const serviceName = "fitlife-sync"

// loadConfig reads envFile (when present) and the environment, then applies
// flag overrides bound through viper.
func loadConfig(envFile string) (*config.Config, error) {
	if envFile != "" {
		if err := config.LoadDotEnv(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if v := viper.GetString("port"); v != "" {
		cfg.App.Port = v
	}
	if viper.GetBool("verbose") {
		cfg.App.LogLevel = "debug"
	}
	if v := viper.GetString("base-url"); v != "" {
		cfg.Client.BaseURL = v
	}
	if v := viper.GetString("token"); v != "" {
		cfg.Client.Token = v
	}
	if v := viper.GetString("store-dsn"); v != "" {
		cfg.Client.StoreDSN = v
	}
	return cfg, nil
}

// newLogger writes to stderr so command output on stdout stays parseable.
func newLogger(cfg *config.Config) *logger.Logger {
	return logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// bindFlags binds the named flags of c to viper keys of the same name.
func bindFlags(c *cobra.Command, names ...string) {
	for _, name := range names {
		flag := c.Flags().Lookup(name)
		if flag == nil {
			flag = c.PersistentFlags().Lookup(name)
		}
		if err := viper.BindPFlag(name, flag); err != nil {
			log.Printf("Failed to bind %s flag: %v", name, err)
		}
	}
}
