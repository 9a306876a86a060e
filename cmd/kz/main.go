package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/untoldecay/kuzugo"
	"github.com/untoldecay/kuzugo/internal/config"
	"github.com/untoldecay/kuzugo/internal/database"
	"github.com/untoldecay/kuzugo/internal/debug"
	"github.com/untoldecay/kuzugo/internal/ui"
)

var (
	flagDB    string
	flagJSON  bool
	flagQuiet bool
)

var rootCmd = &cobra.Command{
	Use:   "kz",
	Short: "Embeddable property graph database",
	Long: `kz is the shell of an embeddable property graph database.

The database lives in a single directory (see --db or KUZU_DB_PATH).
Statements are issued through subcommands; results print as tables, or as
JSON with --json.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(); err != nil {
			return err
		}
		if flagDB != "" {
			config.Set("db-path", flagDB)
		}
		if flagJSON {
			config.Set("json", true)
		}
		if flagQuiet {
			config.Set("quiet", true)
		}
		debug.SetLogFile(config.LogFile())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "database directory (defaults to KUZU_DB_PATH)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "machine-readable JSON output")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
}

// openDatabase opens the configured database for a command run.
func openDatabase() (*kuzugo.Database, *kuzugo.Connection, error) {
	db, err := kuzugo.OpenDatabase(config.DBPath())
	if err != nil {
		return nil, nil, err
	}
	return db, kuzugo.NewConnection(db), nil
}

// printResult renders a query result as a table or JSON.
func printResult(res *kuzugo.QueryResult) {
	if config.JSON() {
		rows := make([]map[string]string, 0, len(res.Rows))
		for _, row := range res.Rows {
			m := make(map[string]string, len(row))
			for i, v := range row {
				m[res.Columns[i]] = v.String()
			}
			rows = append(rows, m)
		}
		out, _ := json.MarshalIndent(rows, "", "  ")
		fmt.Println(string(out))
		return
	}
	fmt.Print(ui.RenderResult(res.Columns, res.Rows))
}

// fatal prints an error and exits with the right status: 2 for binder and
// catalog errors, 1 otherwise.
func fatal(err error) {
	if config.JSON() {
		out, _ := json.Marshal(map[string]string{"error": err.Error()})
		fmt.Fprintln(os.Stderr, string(out))
	} else {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	if database.IsBinderError(err) {
		os.Exit(2)
	}
	os.Exit(1)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatal(err)
	}
}
