package main

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/untoldecay/kuzugo"
	"github.com/untoldecay/kuzugo/internal/types"
)

// parseCallArg guesses the value type of a positional CALL argument:
// integers, floats, bools, and [..] float lists; everything else is a
// string.
func parseCallArg(raw string) types.Value {
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return types.NewInt64Value(i)
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return types.NewDoubleValue(f)
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return types.NewBoolValue(b)
	}
	if strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]") {
		parts := strings.Split(strings.Trim(raw, "[]"), ",")
		elems := make([]types.Value, 0, len(parts))
		for _, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
			if err != nil {
				return types.NewStringValue(raw)
			}
			elems = append(elems, types.NewDoubleValue(f))
		}
		return types.NewListValue(types.NewType(types.TypeDouble), elems)
	}
	return types.NewStringValue(raw)
}

var callCmd = &cobra.Command{
	Use:   "call FUNCTION [ARG...]",
	Short: "Invoke a table function",
	Long: `Invoke a table function such as CREATE_HNSW_INDEX, DROP_HNSW_INDEX,
QUERY_HNSW_INDEX or SHOW_CONNECTION.

Optional {key: value} parameters are passed with repeated --param key=value.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		params, _ := cmd.Flags().GetStringArray("param")
		optional := make(map[string]types.Value, len(params))
		for _, p := range params {
			key, value, ok := strings.Cut(p, "=")
			if !ok {
				fatal(types.NewBinderError("invalid --param %q, want key=value", p))
			}
			optional[key] = parseCallArg(value)
		}
		callArgs := make([]types.Value, 0, len(args)-1)
		for _, a := range args[1:] {
			callArgs = append(callArgs, parseCallArg(a))
		}
		runStatement(&kuzugo.StandaloneCall{
			FuncName:       strings.ToUpper(args[0]),
			Args:           callArgs,
			OptionalParams: optional,
		})
	},
}

var showConnectionCmd = &cobra.Command{
	Use:   "show-connection NAME",
	Short: "Show the endpoint tables of a relationship table or group",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runStatement(&kuzugo.StandaloneCall{
			FuncName: "SHOW_CONNECTION",
			Args:     []types.Value{types.NewStringValue(args[0])},
		})
	},
}

func init() {
	callCmd.Flags().StringArray("param", nil, "optional parameter as key=value (repeatable)")
	rootCmd.AddCommand(callCmd, showConnectionCmd)
}
