package spoc

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"spoccrawler/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

// DefaultDueLabel is the text that precedes the due date of an assignment.
const DefaultDueLabel = "截止："

const dueLayout = "2006-01-02 15:04"

var courseLinkRegex = regexp.MustCompile(`href="/portal/session/index/(\d+)\.mooc"`)

// parseCourseIndex returns the course open ids linked from the course index
// in document order, each id once.
func parseCourseIndex(body string) []string {
	seen := map[string]bool{}
	var ids []string
	for _, match := range courseLinkRegex.FindAllStringSubmatch(body, -1) {
		id := match[1]
		if seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

type courseInfo struct {
	Title string `json:"title"`
}

type examRow struct {
	Title string
	Due   time.Time
}

func dueRegex(label string) *regexp.Regexp {
	return regexp.MustCompile(regexp.QuoteMeta(label) + `\s*(\d{4}-\d{2}-\d{2} \d{2}:\d{2})`)
}

// parseExamList extracts every assignment row of a course's exam list page.
func parseExamList(doc *goquery.Document, due *regexp.Regexp, loc *time.Location) ([]examRow, error) {
	table := doc.Find("table.homework-table")
	if table.Length() == 0 {
		return nil, fmt.Errorf("%w: homework table not found", ErrParse)
	}

	var rows []examRow
	var err error
	table.Find("tr.homework-toggle").EachWithBreak(func(i int, tr *goquery.Selection) bool {
		title := strings.TrimSpace(tr.Find("td.td1").AttrOr("title", ""))
		if title == "" {
			err = fmt.Errorf("%w: row %d has no title", ErrParse, i)
			return false
		}

		text := htmlutil.NormalizeText(htmlutil.GetText(tr.Get(0)))
		match := due.FindStringSubmatch(text)
		if match == nil {
			err = fmt.Errorf("%w: row %d (%s) has no due date: %q", ErrParse, i, title, text)
			return false
		}
		t, parseErr := time.ParseInLocation(dueLayout, match[1], loc)
		if parseErr != nil {
			err = fmt.Errorf("%w: row %d (%s): %w", ErrParse, i, title, parseErr)
			return false
		}

		rows = append(rows, examRow{Title: title, Due: t})
		return true
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}
