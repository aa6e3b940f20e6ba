package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kyleroche/deconstructor/internal/config"
	"github.com/kyleroche/deconstructor/internal/logger"
	"github.com/kyleroche/deconstructor/internal/tracing"
	"github.com/kyleroche/deconstructor/pkg/agent"
	"github.com/kyleroche/deconstructor/pkg/driver"
	"github.com/kyleroche/deconstructor/pkg/rules"
	"github.com/kyleroche/deconstructor/pkg/toolkit"
	"github.com/kyleroche/deconstructor/pkg/transcript"
	"github.com/kyleroche/deconstructor/pkg/words"
)

var (
	word    string
	verbose bool
)

var deconstructCmd = &cobra.Command{
	Use:   "deconstruct",
	Short: "Deconstruct a word into its etymological components",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeconstruct(cmd.Context())
	},
}

func init() {
	deconstructCmd.Flags().StringVarP(&word, "word", "w", "", "the word to deconstruct")
	deconstructCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show detailed output")
	_ = deconstructCmd.MarkFlagRequired("word")
	rootCmd.AddCommand(deconstructCmd)
}

func runDeconstruct(ctx context.Context) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}

	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Pretty: cfg.Log.Pretty,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer appLogger.Close()
	zlog := appLogger.Zerolog()

	if err := tracing.Init(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Protocol:    cfg.Tracing.Protocol,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: cfg.Tracing.ServiceName,
	}); err != nil {
		// Tracing must never block the run.
		zlog.Warn().Err(err).Msg("Tracing disabled")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			zlog.Warn().Err(err).Msg("Trace flush failed")
		}
	}()

	modelDriver, err := driverFromEnv(cfg.Provider)
	if err != nil {
		return err
	}

	ruleset, err := rules.Load(cfg.RulesetPath)
	if err != nil {
		return fmt.Errorf("failed to load ruleset: %w", err)
	}

	loop, err := agent.New(agent.Config{
		Driver:    modelDriver,
		Registry:  toolkit.NewRegistry(),
		Logger:    zlog,
		Estimator: transcript.NewEstimator(),
		Options: agent.Options{
			Model:                  cfg.Model,
			Temperature:            cfg.Temperature,
			MaxCompletionTokens:    cfg.MaxTokens,
			MaxIterations:          cfg.Loop.MaxIterations,
			ToolTimeout:            cfg.Loop.ToolTimeout,
			TokenBudget:            cfg.Loop.TokenBudget,
			MaxConcurrentToolCalls: cfg.Loop.MaxConcurrentToolCalls,
			RetryLimit:             cfg.Loop.RetryLimit,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create agent loop: %w", err)
	}

	deconstructor, err := words.NewDeconstructor(words.DeconstructorConfig{
		Runner:      loop,
		Ruleset:     ruleset,
		MaxAttempts: cfg.MaxAttempts,
		Logger:      zlog,
	})
	if err != nil {
		return err
	}

	result, err := deconstructor.Deconstruct(ctx, word)
	if err != nil {
		return fmt.Errorf("error deconstructing word: %w", err)
	}

	if verbose {
		encoded, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to render output: %w", err)
		}
		fmt.Println(string(encoded))
		return nil
	}

	fmt.Printf("Word: %s\n", word)
	fmt.Printf("Parts: %s\n", result.PartsSummary())
	fmt.Printf("Definition: %s\n", result.FinalDefinition())
	return nil
}

// driverFromEnv builds the model driver, reading credentials from the
// process environment. The agent loop itself never touches secrets.
func driverFromEnv(provider string) (driver.Driver, error) {
	var apiKey string
	switch provider {
	case "anthropic":
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no API key in environment for provider %s", provider)
	}
	return driver.New(provider, apiKey)
}
