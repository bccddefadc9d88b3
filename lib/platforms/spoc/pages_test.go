package spoc

import (
	"strings"
	"testing"
	"time"

	"spoccrawler/lib/chrono"
	"spoccrawler/lib/testutil/fakeportal"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func TestParseCourseIndex(t *testing.T) {
	body := `
<a href="/portal/session/index/12.mooc"><img/></a><a href="/portal/session/index/12.mooc">A</a>
<a href="/portal/session/index/5.mooc">B</a>
<a href="/portal/session/index/abc.mooc">not a course</a>
<a href="/portal/session/index/12.mooc">A again</a>`
	require.Equal(t, []string{"12", "5"}, parseCourseIndex(body))
	require.Empty(t, parseCourseIndex("<div>no courses</div>"))
}

func TestParseExamList(t *testing.T) {
	page := fakeportal.ExamPage(
		fakeportal.ExamRow{Title: "  实验报告  ", Due: "截止： 2024-05-01  08:30"},
	)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	require.NoError(t, err)

	rows, err := parseExamList(doc, dueRegex(DefaultDueLabel), chrono.Location())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "实验报告", rows[0].Title)
	require.True(t, rows[0].Due.Equal(time.Date(2024, 5, 1, 8, 30, 0, 0, chrono.Location())))
}

func TestParseExamListEmpty(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fakeportal.ExamPage()))
	require.NoError(t, err)
	rows, err := parseExamList(doc, dueRegex(DefaultDueLabel), chrono.Location())
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestDueRegexQuotesLabel(t *testing.T) {
	due := dueRegex("Due (UTC+8):")
	require.Equal(t, "2024-05-01 08:30", due.FindStringSubmatch("Due (UTC+8): 2024-05-01 08:30")[1])
	require.Nil(t, due.FindStringSubmatch("Due UTC+8: 2024-05-01 08:30"))
}
