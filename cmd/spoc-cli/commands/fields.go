package commands

import (
	"sort"

	"spoccrawler/lib/crawlers/njuspoc"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(fieldsCmd)
}

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Prints the fields needed to log in.",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := njuspoc.New(njuspoc.Options{})
		if err != nil {
			return err
		}
		fields := c.RequiredFields()
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		t := newTable()
		t.AppendHeader(table.Row{"Key", "Name", "Detail"})
		for _, k := range keys {
			t.AppendRow(table.Row{k, fields[k].Name, fields[k].Detail})
		}
		t.Render()
		return nil
	},
}
