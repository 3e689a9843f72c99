package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/psantana5/mev-supervisor/internal/config"
	"github.com/psantana5/mev-supervisor/internal/logging"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string

	vp      *viper.Viper
	vpErr   error
	version = "dev"
)

// exitError carries a process exit code through cobra
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitWith(code int, err error) error {
	return &exitError{code: code, err: err}
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "mevsup",
	Short: "Supervisor for the MEV trading bot",
	Long: `mevsup keeps the MEV trading bot running, records everything it prints
to a per-session log, and on shutdown reports what the session did: opportunities,
bundles, executions, profit estimates and the wallet balance change.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and returns the process exit code
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./mevsup.yaml or $HOME/.mevsup/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json")
}

// initConfig reads in config file and ENV variables if set
func initConfig() {
	vp, vpErr = config.NewViper(cfgFile)
	if vpErr != nil {
		return
	}
	_ = vp.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = vp.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))
}

// loadConfig binds the command's flags to their keys and decodes the config
func loadConfig(cmd *cobra.Command, bindings map[string]string) (*config.Config, error) {
	if vpErr != nil {
		return nil, vpErr
	}
	if vp == nil {
		initConfig()
		if vpErr != nil {
			return nil, vpErr
		}
	}
	for key, flag := range bindings {
		if err := vp.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return nil, fmt.Errorf("failed to bind --%s: %w", flag, err)
		}
	}
	return config.Decode(vp)
}

// newLogger builds the zap logger for a command
func newLogger(cfg *config.Config) (*zap.Logger, func() error, error) {
	return logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
}
