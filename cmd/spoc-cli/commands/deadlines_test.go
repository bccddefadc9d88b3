package commands

import (
	"context"
	"testing"
	"time"

	"spoccrawler/lib/crawler"
	"spoccrawler/lib/ddlstore"
	"spoccrawler/lib/testutil"

	"github.com/stretchr/testify/require"
)

type staticCrawler struct {
	courses   []crawler.Course
	deadlines []crawler.Deadline
}

func (staticCrawler) Login(context.Context, map[string]string) error { return nil }
func (staticCrawler) RequiredFields() map[string]crawler.Field      { return nil }
func (s staticCrawler) FetchCourses(context.Context) ([]crawler.Course, error) {
	return s.courses, nil
}
func (s staticCrawler) FetchDeadlines(context.Context) ([]crawler.Deadline, error) {
	return s.deadlines, nil
}

func TestCourseTitle(t *testing.T) {
	require.Equal(t, "Algorithms", courseTitle("来自 SPOC `Algorithms` 的 DDL"))
	require.Equal(t, "no ticks", courseTitle("no ticks"))
}

func TestCrawl(t *testing.T) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "spoc-cli",
		DbSchema: ddlstore.Schema,
	})
	defer cleanup()
	store := ddlstore.NewStore(res.DB)

	c := staticCrawler{
		courses: []crawler.Course{{Title: "Algorithms", Id: "c1"}},
		deadlines: []crawler.Deadline{
			{CourseUuid: "c1", Title: "hw1", DdlTime: 2000, Content: "来自 SPOC `Algorithms` 的 DDL"},
		},
	}

	all, fresh, err := crawl(context.Background(), c, store)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Len(t, fresh, 1)

	all, fresh, err = crawl(context.Background(), c, store)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Empty(t, fresh)

	entries, err := store.Upcoming(context.Background(), time.UnixMilli(0))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "Algorithms", entries[0].CourseTitle)
}
