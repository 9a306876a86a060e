package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/untoldecay/kuzugo"
	"github.com/untoldecay/kuzugo/internal/config"
)

// initConfig is the config.yaml written by kz init.
type initConfig struct {
	BufferPoolSize string `yaml:"buffer-pool-size,omitempty"`
	MaxThreads     int    `yaml:"max-threads,omitempty"`
	LogFile        string `yaml:"log-file,omitempty"`
}

var initCmd = &cobra.Command{
	Use:   "init [PATH]",
	Short: "Create a new database directory",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := config.DBPath()
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			fatal(fmt.Errorf("no database path given and KUZU_DB_PATH is not set"))
		}
		poolSize, _ := cmd.Flags().GetString("buffer-pool-size")

		db, err := kuzugo.OpenDatabase(path)
		if err != nil {
			fatal(err)
		}
		defer db.Close()

		cfg := initConfig{BufferPoolSize: poolSize}
		raw, err := yaml.Marshal(cfg)
		if err != nil {
			fatal(err)
		}
		configPath := filepath.Join(path, "config.yaml")
		if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
			if err := os.WriteFile(configPath, raw, 0o644); err != nil {
				fatal(err)
			}
		}
		if !config.Quiet() {
			fmt.Printf("Initialized database at %s\n", path)
		}
	},
}

func init() {
	initCmd.Flags().String("buffer-pool-size", "", "buffer pool size, e.g. 256MB")
	rootCmd.AddCommand(initCmd)
}
