package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/mev-supervisor/internal/config"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long:  `Commands for inspecting and generating the mevsup configuration file.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after defaults, the config file and MEVSUP_*
environment variables have been applied.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

var configGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a default configuration file",
	Args:  cobra.NoArgs,
	RunE:  runConfigGenerate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGenerateCmd)

	configGenerateCmd.Flags().StringVarP(&configOutput, "output", "o", "", "write to file instead of stdout")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, nil)
	if err != nil {
		return err
	}
	data, err := config.GenerateYAML(cfg)
	if err != nil {
		return err
	}
	if used := config.ConfigFile(vp); used != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "# loaded from %s\n", used)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func runConfigGenerate(cmd *cobra.Command, args []string) error {
	data, err := config.GenerateYAML(config.Default())
	if err != nil {
		return err
	}
	if configOutput == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	if _, err := os.Stat(configOutput); err == nil {
		return fmt.Errorf("%s already exists", configOutput)
	}
	if err := os.WriteFile(configOutput, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Configuration written to %s\n", configOutput)
	return nil
}
