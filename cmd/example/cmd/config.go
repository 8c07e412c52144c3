package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configOutput string

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration inspection",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Prints the configuration after defaults, the config file, EXAMPLE_*
environment variables and flags have been merged.`,
	Args: cobra.NoArgs,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)

	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", "table", "Output format: table, yaml or json")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch configOutput {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(cfg)

	case "yaml":
		encoder := yaml.NewEncoder(out)
		encoder.SetIndent(2)
		if err := encoder.Encode(cfg); err != nil {
			return err
		}
		return encoder.Close()

	case "table":
		return renderConfigTable(out)

	default:
		return fmt.Errorf("unknown output format %q (want table, yaml or json)", configOutput)
	}
}

// renderConfigTable lists every flattened config key with its merged value
func renderConfigTable(w io.Writer) error {
	keys := viper.AllKeys()
	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.Header("Key", "Value")
	for _, key := range keys {
		if err := table.Append([]string{key, fmt.Sprintf("%v", viper.Get(key))}); err != nil {
			return fmt.Errorf("failed to add row %s: %w", key, err)
		}
	}
	return table.Render()
}
