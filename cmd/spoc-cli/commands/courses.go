package commands

import (
	"spoccrawler/lib/textutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var coursesMatch *string

func init() {
	coursesMatch = coursesCmd.Flags().String("match", "", "Only print courses whose title resembles this.")
	rootCmd.AddCommand(coursesCmd)
}

var coursesCmd = &cobra.Command{
	Use:   "courses [--match <title>]",
	Short: "Prints the courses of the configured account.",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := loggedInCrawler(cmd.Context(), config)
		if err != nil {
			return err
		}
		courses, err := c.FetchCourses(cmd.Context())
		if err != nil {
			return explain(err)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Title", "Id"})
		for _, course := range courses {
			if !textutil.MatchName(*coursesMatch, course.Title) {
				continue
			}
			t.AppendRow(table.Row{course.Title, course.Id})
		}
		t.Render()
		return nil
	},
}
