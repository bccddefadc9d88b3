package commands

import (
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var upcomingDb *string

func init() {
	upcomingDb = upcomingCmd.Flags().String("db", "", "The sqlite database deadlines are stored in. Defaults to the config's db.")
	rootCmd.AddCommand(upcomingCmd)
}

var upcomingCmd = &cobra.Command{
	Use:   "upcoming [--db <path>]",
	Short: "Prints the stored deadlines that are not due yet, without logging in.",
	RunE: func(cmd *cobra.Command, args []string) error {
		config, err := loadConfig()
		if err != nil {
			return err
		}
		store, db, err := openStore(cmd.Context(), config, *upcomingDb)
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := store.Upcoming(cmd.Context(), time.Now())
		if err != nil {
			return err
		}

		t := newTable()
		t.AppendHeader(table.Row{"Due", "Title", "Course"})
		for _, e := range entries {
			course := e.CourseTitle
			if course == "" {
				course = courseTitle(e.Content)
			}
			t.AppendRow(table.Row{formatMillis(e.DdlTime), e.Title, course})
		}
		t.Render()
		return nil
	},
}
