package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// printResult writes v to the command's stdout in the configured format.
// YAML output goes through JSON first so both formats share field names.
func printResult(cmd *cobra.Command, v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		exitErr("encode output", err)
	}
	if cfg.Output == "yaml" {
		var generic any
		if err := json.Unmarshal(b, &generic); err != nil {
			exitErr("encode output", err)
		}
		if b, err = yaml.Marshal(generic); err != nil {
			exitErr("encode output", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(b))
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
}
