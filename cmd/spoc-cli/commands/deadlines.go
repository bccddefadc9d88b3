package commands

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"

	"spoccrawler/lib/crawler"
	"spoccrawler/lib/ddlstore"
	"spoccrawler/lib/textutil"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	deadlinesJson   *bool
	deadlinesDb     *string
	deadlinesCourse *string
)

func init() {
	deadlinesJson = deadlinesCmd.Flags().Bool("json", false, "Print the deadline records as json.")
	deadlinesDb = deadlinesCmd.Flags().String("db", "", "Also store the deadlines in this sqlite database.")
	deadlinesCourse = deadlinesCmd.Flags().String("course", "", "Only print deadlines of courses whose title resembles this.")
	rootCmd.AddCommand(deadlinesCmd)
}

// openStore opens the deadline store, `file` overrides the configured one.
func openStore(ctx context.Context, config Config, file string) (ddlstore.Store, *sql.DB, error) {
	dbConfig := config.Db
	if file != "" {
		dbConfig = ddlstore.Config{File: file}
	}
	db, err := dbConfig.OpenDB()
	if err != nil {
		return ddlstore.Store{}, nil, err
	}
	store := ddlstore.NewStore(db)
	err = store.Migrate(ctx)
	if err != nil {
		db.Close()
		return ddlstore.Store{}, nil, err
	}
	return store, db, nil
}

// crawl fetches courses and deadlines and stores them, returning the
// deadlines that were not stored before.
func crawl(ctx context.Context, c crawler.Crawler, store ddlstore.Store) (all, fresh []crawler.Deadline, err error) {
	courses, err := c.FetchCourses(ctx)
	if err != nil {
		return nil, nil, err
	}
	all, err = c.FetchDeadlines(ctx)
	if err != nil {
		return nil, nil, err
	}
	err = store.SaveCourses(ctx, courses, time.Now())
	if err != nil {
		return nil, nil, err
	}
	fresh, err = store.Push(ctx, all)
	if err != nil {
		return nil, nil, err
	}
	return all, fresh, nil
}

var deadlinesCmd = &cobra.Command{
	Use:   "deadlines [--json] [--db <path>] [--course <title>]",
	Short: "Prints the assignment deadlines of every course.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		config, err := loadConfig()
		if err != nil {
			return err
		}
		c, err := loggedInCrawler(ctx, config)
		if err != nil {
			return err
		}

		var deadlines []crawler.Deadline
		fresh := map[string]bool{}
		if *deadlinesDb != "" {
			store, db, err := openStore(ctx, config, *deadlinesDb)
			if err != nil {
				return err
			}
			defer db.Close()

			var newDeadlines []crawler.Deadline
			deadlines, newDeadlines, err = crawl(ctx, c, store)
			if err != nil {
				return explain(err)
			}
			for _, d := range newDeadlines {
				fresh[d.CourseUuid+d.Title] = true
			}
		} else {
			deadlines, err = c.FetchDeadlines(ctx)
			if err != nil {
				return explain(err)
			}
		}

		var filtered []crawler.Deadline
		for _, d := range deadlines {
			if textutil.MatchName(*deadlinesCourse, courseTitle(d.Content)) {
				filtered = append(filtered, d)
			}
		}
		sort.SliceStable(filtered, func(i, j int) bool {
			return filtered[i].DdlTime < filtered[j].DdlTime
		})

		if *deadlinesJson {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(filtered)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Due", "Title", "Course", "New"})
		for _, d := range filtered {
			marker := ""
			if fresh[d.CourseUuid+d.Title] {
				marker = "*"
			}
			t.AppendRow(table.Row{formatMillis(d.DdlTime), d.Title, courseTitle(d.Content), marker})
		}
		t.Render()
		return nil
	},
}

// courseTitle recovers the course title from a deadline's content.
func courseTitle(content string) string {
	start := strings.Index(content, "`")
	end := strings.LastIndex(content, "`")
	if start < 0 || end <= start {
		return content
	}
	return content[start+1 : end]
}
