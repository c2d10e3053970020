package main

import (
	"fmt"
	"os"

	"github.com/aretw0/preceptor/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "preceptor",
	Short: "Preceptor is a clinical reasoning tutor",
	Long: `Preceptor walks a student through a clinical case one phase at a time:
summary, differential, leading diagnosis, alternatives, errors, plan and
feedback. It ends with a case report and a virtual patient persona.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Path to a YAML configuration file")
	pf.String("log-level", "", "Log level: debug, info, warn, error")
	pf.Bool("log-json", false, "Write logs as JSON")
	pf.String("gateway", "", "Model backend: openai, vertex, vertex-gemini, scripted, echo")
	pf.String("model", "", "Model name passed to the backend")
	pf.String("base-url", "", "Base URL of an OpenAI-compatible API")
	pf.String("system-prompt", "", "Tutor system prompt, or a catalog name such as 'tutor'")
	pf.String("store", "", "Session store: memory, file, redis")
	pf.String("store-dir", "", "Directory of the file session store")
	pf.String("redis-addr", "", "Redis address")
	pf.String("artifacts", "", "Artifact store: file, memory, redis, gcs")
	pf.String("artifacts-dir", "", "Directory of the file artifact store")
	pf.String("bucket", "", "GCS bucket of the gcs artifact store")
}

// loadConfig layers the persistent flags the user set over config.Load.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	flags := cmd.Flags()
	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	str := func(name string, dst *string) {
		if flags.Changed(name) {
			*dst, _ = flags.GetString(name)
		}
	}
	str("log-level", &cfg.Log.Level)
	str("gateway", &cfg.Gateway.Backend)
	str("model", &cfg.Gateway.Model)
	str("base-url", &cfg.Gateway.BaseURL)
	str("system-prompt", &cfg.Engine.SystemPrompt)
	str("store", &cfg.Store.Backend)
	str("store-dir", &cfg.Store.Dir)
	str("redis-addr", &cfg.Redis.Addr)
	str("artifacts", &cfg.Artifacts.Backend)
	str("artifacts-dir", &cfg.Artifacts.Dir)
	str("bucket", &cfg.Artifacts.Bucket)
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}

	if cfg.Gateway.Backend == config.GatewayOpenAI && cfg.Gateway.APIKey == "" {
		cfg.Gateway.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	return cfg, cfg.Validate()
}
