package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/kuzugo"
	"github.com/untoldecay/kuzugo/internal/parser"
	"github.com/untoldecay/kuzugo/internal/types"
)

func newLiteralExpr(v types.Value) *parser.ParsedExpression {
	return parser.NewLiteralExpr(v)
}

// parsePropFlags turns repeated --prop name:TYPE[=default] flags into
// parsed property definitions.
func parsePropFlags(props []string) ([]kuzugo.ParsedProperty, error) {
	out := make([]kuzugo.ParsedProperty, 0, len(props))
	for _, raw := range props {
		name, rest, ok := strings.Cut(raw, ":")
		if !ok {
			return nil, fmt.Errorf("invalid property %q, want name:TYPE", raw)
		}
		typeStr, defaultStr, hasDefault := strings.Cut(rest, "=")
		t, err := parseTypeString(typeStr)
		if err != nil {
			return nil, err
		}
		p := kuzugo.ParsedProperty{Name: name, Type: t}
		if hasDefault {
			v, ok := types.NewStringValue(defaultStr).CastTo(t)
			if !ok {
				return nil, fmt.Errorf("cannot parse default %q as %s", defaultStr, t)
			}
			p.Default = newLiteralExpr(v)
		}
		out = append(out, p)
	}
	return out, nil
}

func parseTypeString(s string) (*types.LogicalType, error) {
	s = strings.TrimSpace(s)
	// FIXED_LIST syntax: FLOAT[8]; VAR_LIST syntax: INT64[].
	if open := strings.Index(s, "["); open >= 0 && strings.HasSuffix(s, "]") {
		child, err := parseTypeString(s[:open])
		if err != nil {
			return nil, err
		}
		inner := s[open+1 : len(s)-1]
		if inner == "" {
			return types.NewVarListType(child), nil
		}
		var n uint32
		if _, err := fmt.Sscanf(inner, "%d", &n); err != nil {
			return nil, fmt.Errorf("invalid list size in %q", s)
		}
		return types.NewFixedListType(child, n), nil
	}
	id, ok := types.ParseLogicalTypeID(s)
	if !ok {
		return nil, fmt.Errorf("unknown type %q", s)
	}
	return types.NewType(id), nil
}

func parseMultiplicity(s string) (src, dst types.RelMultiplicity, err error) {
	parts := strings.SplitN(strings.ToUpper(s), "_", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid multiplicity %q, want e.g. ONE_MANY", s)
	}
	parse := func(p string) (types.RelMultiplicity, error) {
		switch p {
		case "ONE":
			return types.MultiplicityOne, nil
		case "MANY":
			return types.MultiplicityMany, nil
		}
		return 0, fmt.Errorf("invalid multiplicity %q", p)
	}
	if src, err = parse(parts[0]); err != nil {
		return
	}
	dst, err = parse(parts[1])
	return
}

var createNodeTableCmd = &cobra.Command{
	Use:   "create-node-table NAME",
	Short: "Create a node table",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		props, _ := cmd.Flags().GetStringArray("prop")
		pk, _ := cmd.Flags().GetString("pk")
		parsed, err := parsePropFlags(props)
		if err != nil {
			fatal(err)
		}
		runStatement(&kuzugo.CreateNodeTable{
			Name:       args[0],
			Properties: parsed,
			PrimaryKey: pk,
		})
	},
}

var createRelTableCmd = &cobra.Command{
	Use:   "create-rel-table NAME",
	Short: "Create a relationship table",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		props, _ := cmd.Flags().GetStringArray("prop")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		mult, _ := cmd.Flags().GetString("multiplicity")
		parsed, err := parsePropFlags(props)
		if err != nil {
			fatal(err)
		}
		srcMult, dstMult, err := parseMultiplicity(mult)
		if err != nil {
			fatal(err)
		}
		runStatement(&kuzugo.CreateRelTable{
			Name:            args[0],
			SrcName:         from,
			DstName:         to,
			SrcMultiplicity: srcMult,
			DstMultiplicity: dstMult,
			Properties:      parsed,
		})
	},
}

var dropTableCmd = &cobra.Command{
	Use:   "drop-table NAME",
	Short: "Drop a table or relationship group",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runStatement(&kuzugo.DropTable{Name: args[0]})
	},
}

func runStatement(stmt kuzugo.Statement) {
	db, conn, err := openDatabase()
	if err != nil {
		fatal(err)
	}
	defer db.Close()
	res, err := conn.Execute(stmt)
	if err != nil {
		fatal(err)
	}
	printResult(res)
}

func init() {
	createNodeTableCmd.Flags().StringArray("prop", nil, "property as name:TYPE[=default] (repeatable)")
	createNodeTableCmd.Flags().String("pk", "", "primary key property name")
	createRelTableCmd.Flags().StringArray("prop", nil, "property as name:TYPE[=default] (repeatable)")
	createRelTableCmd.Flags().String("from", "", "source node table")
	createRelTableCmd.Flags().String("to", "", "destination node table")
	createRelTableCmd.Flags().String("multiplicity", "MANY_MANY", "ONE_ONE, ONE_MANY, MANY_ONE or MANY_MANY")
	rootCmd.AddCommand(createNodeTableCmd, createRelTableCmd, dropTableCmd)
}
