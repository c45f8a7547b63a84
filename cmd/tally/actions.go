package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/aretw0/tally/pkg/schema"
	"github.com/spf13/cobra"
)

var actionsCmd = &cobra.Command{
	Use:   "actions",
	Short: "List the actions the assistant can run",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newContainer(cmd)
		if err != nil {
			return err
		}
		defer c.Close()

		out := cmd.OutOrStdout()
		defs := c.Assistant().Actions()
		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(defs)
		}

		reg := c.Assistant().Registry()
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ACTION\tFIELDS\tDESCRIPTION")
		for _, def := range defs {
			action, _ := reg.Action(def.Name)
			fmt.Fprintf(tw, "%s\t%s\t%s\n", def.Name, fieldList(action.Schema), def.Description)
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(actionsCmd)
	actionsCmd.Flags().Bool("json", false, "Print the JSON definitions sent to the planner")
}

// fieldList renders field names, marking required ones with '*'.
func fieldList(s schema.Schema) string {
	names := make([]string, 0, len(s))
	for name, f := range s {
		if f.Required {
			name += "*"
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}
