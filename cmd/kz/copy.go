package main

import (
	"github.com/spf13/cobra"

	"github.com/untoldecay/kuzugo"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/types"
)

var copyCmd = &cobra.Command{
	Use:   "copy TABLE FILE...",
	Short: "Bulk-load a table from CSV files",
	Long: `Bulk-load a node or relationship table from one or more CSV files.

Relationship group targets need --from and --to to pick the child table.
The copy runs in its own transaction; the first bad row aborts the whole
load.`,
	Args: cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		header, _ := cmd.Flags().GetBool("header")
		delim, _ := cmd.Flags().GetString("delim")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		columns, _ := cmd.Flags().GetStringSlice("columns")

		options := map[string]types.Value{
			"HEADER": types.NewBoolValue(header),
		}
		if delim != "" {
			options["DELIM"] = types.NewStringValue(delim)
		}
		if from != "" {
			options["FROM"] = types.NewStringValue(from)
		}
		if to != "" {
			options["TO"] = types.NewStringValue(to)
		}
		runStatement(&kuzugo.CopyFrom{
			TableName: args[0],
			Source: &parser.ScanSource{
				Type:      parser.SourceCSV,
				FilePaths: args[1:],
			},
			ColumnNames: columns,
			Options:     options,
		})
	},
}

func init() {
	copyCmd.Flags().Bool("header", false, "first line of each file is a header")
	copyCmd.Flags().String("delim", "", "field delimiter (default comma)")
	copyCmd.Flags().String("from", "", "source table of a rel group child")
	copyCmd.Flags().String("to", "", "destination table of a rel group child")
	copyCmd.Flags().StringSlice("columns", nil, "explicit target column list")
	rootCmd.AddCommand(copyCmd)
}
