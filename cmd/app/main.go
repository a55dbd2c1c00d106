package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/trevnoctilla/toolprobe/config"
	"github.com/trevnoctilla/toolprobe/pkg/logger"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "toolprobe",
	Short:         "Exercise converter tool pages end to end in a real browser",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cfgFile != "" {
			return config.ReadFile(cfgFile)
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, ~/.toolprobe/config.yaml)")
	flags.String("catalog", "", "tool catalog YAML; the built-in video converter is used when empty")
	flags.String("base-url", "", "base URL prepended to relative tool URLs")
	flags.String("driver", "", "browser driver: playwright or chromedp")
	flags.String("endpoint", "", "remote browser endpoint")
	flags.Bool("launch", false, "start a playwright run-server container when no endpoint is set")

	_ = v().BindPFlag("catalog.path", flags.Lookup("catalog"))
	_ = v().BindPFlag("catalog.baseURL", flags.Lookup("base-url"))
	_ = v().BindPFlag("browser.driver", flags.Lookup("driver"))
	_ = v().BindPFlag("browser.endpoint", flags.Lookup("endpoint"))
	_ = v().BindPFlag("browser.launch", flags.Lookup("launch"))
}

func v() *viper.Viper {
	return config.Viper()
}

func main() {
	log := logger.New()

	defer func() {
		if r := recover(); r != nil {
			log.Error("Panic recovered: %v", r)
			os.Exit(1)
		}
	}()

	if err := rootCmd.Execute(); err != nil {
		log.Error("%v", err)
		os.Exit(1)
	}
}
