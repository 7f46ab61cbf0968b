package cli

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"
)

// OutputFlag switches both CLIs from human-readable text to JSON.
const OutputFlag = "output"

// AddOutputFlag registers --output on cmd and all of its subcommands.
func AddOutputFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool(OutputFlag, false, "Output as JSON")
}

// JSONOutput reports whether --output was set for cmd.
func JSONOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool(OutputFlag)
	return v
}

// PrintJSON writes v as indented JSON followed by a newline.
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
