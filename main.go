// Package main provides the gosift command line.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"gosift/internal/config"
	"gosift/internal/version"
)

var (
	configPath string
	logLevel   string
	workers    int
)

var rootCmd = &cobra.Command{
	Use:   "gosift",
	Short: "Extract SIFT keypoints and descriptors from grayscale images",
	Long: `gosift builds a Gaussian scale-space pyramid for each input image and
extracts keypoints with their orientations and 128-value descriptors.

Examples:
  gosift extract photo.png -o photo.npy
  gosift extract frames/*.png --repeat 10 --report
  gosift config > sift.yaml`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), version.String())
	},
}

var configCmd = &cobra.Command{
	Use:   "config [PATH]",
	Short: "Write the effective configuration as YAML",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := loadConfig()
		if err != nil {
			return err
		}
		if len(args) == 1 {
			return conf.Save(args[0])
		}
		data, err := conf.Marshal()
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "j", 0, "Worker goroutines (0 uses GOMAXPROCS)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(extractCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig returns the defaults, or the file given with --config, with
// the persistent overrides applied.
func loadConfig() (config.Config, error) {
	conf := config.Default()
	if configPath != "" {
		var err error
		if conf, err = config.Load(configPath); err != nil {
			return conf, err
		}
	}
	if rootCmd.PersistentFlags().Changed("workers") {
		conf.Workers = workers
	}
	return conf, nil
}

func newLogger() *slog.Logger {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
