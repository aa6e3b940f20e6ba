package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kyleroche/deconstructor/internal/config"
	"github.com/kyleroche/deconstructor/pkg/rules"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Show the active ruleset",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewLoader(cfgFile).Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		ruleset, err := rules.Load(cfg.RulesetPath)
		if err != nil {
			return fmt.Errorf("failed to load ruleset: %w", err)
		}

		fmt.Println(ruleset.Render())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
}
