package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/archivetools/aqc/internal/constants"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// InstallConfigFlag adds a persistent --config flag to the command.
func InstallConfigFlag(cmd *cobra.Command) *string {
	return cmd.PersistentFlags().String("config", "", "use a specific configuration file")
}

// InitViperConfig sets up the viper instance for the given command.
//
// Configuration is looked up, in order of precedence, in the --config flag,
// the current directory, and the user configuration directory. Environment
// variables prefixed with the upper-cased command name override file values.
// A missing configuration file is not an error.
func InitViperConfig(cmdName string, cmd *cobra.Command, vip *viper.Viper) error {
	if v, err := cmd.Flags().GetString("config"); err == nil && v != "" {
		vip.SetConfigFile(v)
	} else {
		vip.SetConfigName(cmdName)
		vip.AddConfigPath(".")
		vip.AddConfigPath(constants.DefaultConfigPath)
	}

	if err := vip.ReadInConfig(); err != nil {
		var e viper.ConfigFileNotFoundError
		if !errors.As(err, &e) {
			return fmt.Errorf("invalid configuration file: %w", err)
		}
		slog.Info("No configuration file found, using defaults")
	} else {
		slog.Info("Using configuration file", "file", vip.ConfigFileUsed())
	}

	vip.SetEnvPrefix(strings.ToUpper(cmdName))
	vip.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	vip.AutomaticEnv()

	return nil
}
