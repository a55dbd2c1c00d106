package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/trevnoctilla/toolprobe/config"
)

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "Validate the catalog and list its tools",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := config.LoadCatalog(v().GetString("catalog.path"), v().GetString("catalog.baseURL"))
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, tool := range catalog.Tools {
			combos := make([]string, 0, len(tool.Combos))
			for _, c := range tool.Combos {
				combos = append(combos, c.String())
			}
			gate := "off"
			if tool.Gate.Enabled {
				gate = "on"
			}
			fmt.Fprintf(out, "%s\t%s\n", tool.ID, tool.URL)
			fmt.Fprintf(out, "  combos: %s\n", strings.Join(combos, ", "))
			fmt.Fprintf(out, "  static checks: %d, gate: %s\n", len(tool.StaticChecks), gate)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(toolsCmd)
}
