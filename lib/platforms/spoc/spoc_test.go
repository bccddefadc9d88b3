package spoc

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"spoccrawler/lib/chrono"
	"spoccrawler/lib/platforms/njuauth"
	"spoccrawler/lib/telemetry"
	"spoccrawler/lib/testutil/fakeportal"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestCourseIdDeterministic(t *testing.T) {
	require.Equal(t, CourseId("1001"), CourseId("1001"))
	require.Equal(t, uuid.Version(5), CourseId("1001").Version())
	// stored course ids depend on this value never changing
	require.Equal(t, "692dbdb4-330a-545e-906d-23d3731435b1", CourseId("1001").String())
	require.NotEqual(t, CourseId("1001"), CourseId("1002"))
}

func TestCourseIdCollisions(t *testing.T) {
	seen := make(map[uuid.UUID]string, 200000)
	for i := 0; i < 200000; i++ {
		openId := strconv.Itoa(i)
		id := CourseId(openId)
		if prev, ok := seen[id]; ok {
			t.Fatalf("%s and %s map to the same id %s", prev, openId, id)
		}
		seen[id] = openId
	}
}

type testEnv struct {
	portal  *fakeportal.Portal
	session *njuauth.Session
}

func setup(t *testing.T) testEnv {
	cleanup := telemetry.SetupForTesting(t, "test:spoc")
	t.Cleanup(cleanup)

	portal := fakeportal.New()
	t.Cleanup(portal.Close)

	negotiator, err := njuauth.NewNegotiator(njuauth.Options{
		AuthBaseUrl:     portal.URL(),
		PlatformBaseUrl: portal.URL(),
	})
	require.NoError(t, err)
	session, err := negotiator.Establish(testContext(t), njuauth.Credential{Account: "u1", Password: "p1"})
	require.NoError(t, err)

	return testEnv{portal: portal, session: session}
}

func mustParse(t *testing.T, raw string) *url.URL {
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)
	return ctx
}

var now = time.Date(2024, 2, 20, 9, 30, 0, 0, chrono.Location())

func newTestPipeline(workers int) *Pipeline {
	return NewPipeline(Options{
		Workers: workers,
		Clock:   chrono.FixedTime(now),
	})
}

func dueMillis(year int, month time.Month, day, hour, minute int) int64 {
	return time.Date(year, month, day, hour, minute, 0, 0, chrono.Location()).UnixMilli()
}

func TestListCourses(t *testing.T) {
	env := setup(t)
	env.portal.SetCourses(fakeportal.Course{OpenId: "1001", Title: "Algorithms"})

	courses, err := newTestPipeline(1).ListCourses(testContext(t), env.session)
	require.NoError(t, err)

	expected := []Course{{Title: "Algorithms", Id: CourseId("1001"), OpenId: "1001"}}
	if diff := cmp.Diff(expected, courses); diff != "" {
		t.Fatalf("courses mismatch (-want +got):\n%s", diff)
	}
}

func TestListCoursesOrder(t *testing.T) {
	env := setup(t)
	env.portal.SetCourses(
		fakeportal.Course{OpenId: "30", Title: "Compilers"},
		fakeportal.Course{OpenId: "7", Title: "Databases"},
		fakeportal.Course{OpenId: "1001", Title: "Algorithms"},
	)

	courses, err := newTestPipeline(1).ListCourses(testContext(t), env.session)
	require.NoError(t, err)
	require.Len(t, courses, 3)
	require.Equal(t, "Compilers", courses[0].Title)
	require.Equal(t, "Databases", courses[1].Title)
	require.Equal(t, "Algorithms", courses[2].Title)
}

func TestListCoursesEmpty(t *testing.T) {
	env := setup(t)
	courses, err := newTestPipeline(1).ListCourses(testContext(t), env.session)
	require.NoError(t, err)
	require.Empty(t, courses)
}

func TestListCoursesSessionError(t *testing.T) {
	env := setup(t)
	env.portal.Close()

	_, err := newTestPipeline(1).ListCourses(testContext(t), env.session)
	require.ErrorIs(t, err, ErrSession)
}

func TestListDeadlines(t *testing.T) {
	env := setup(t)
	env.portal.SetCourses(fakeportal.Course{
		OpenId: "1001",
		Title:  "Algorithms",
		ExamPage: fakeportal.ExamPage(
			fakeportal.ExamRow{Title: "作业一", Due: "截止：2024-03-01 23:59"},
			fakeportal.ExamRow{Title: "作业二", Due: "开始：2024-03-02 08:00 截止：2024-03-08 12:00"},
		),
	})

	deadlines, err := newTestPipeline(4).ListDeadlines(testContext(t), env.session)
	require.NoError(t, err)

	expected := []Deadline{
		{
			PlatformId: PlatformUuid,
			CourseId:   CourseId("1001"),
			CreateTime: now.UnixMilli(),
			DueTime:    dueMillis(2024, time.March, 1, 23, 59),
			Title:      "作业一",
			Content:    "来自 SPOC `Algorithms` 的 DDL",
		},
		{
			PlatformId: PlatformUuid,
			CourseId:   CourseId("1001"),
			CreateTime: now.UnixMilli(),
			DueTime:    dueMillis(2024, time.March, 8, 12, 0),
			Title:      "作业二",
			Content:    "来自 SPOC `Algorithms` 的 DDL",
		},
	}
	if diff := cmp.Diff(expected, deadlines); diff != "" {
		t.Fatalf("deadlines mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, deadlines[0].CreateTime, deadlines[1].CreateTime)
}

func TestListDeadlinesSharedCreateTime(t *testing.T) {
	env := setup(t)
	env.portal.SetCourses(
		fakeportal.Course{OpenId: "1", Title: "A", ExamPage: fakeportal.ExamPage(fakeportal.ExamRow{Title: "a", Due: "截止：2024-03-01 23:59"})},
		fakeportal.Course{OpenId: "2", Title: "B", ExamPage: fakeportal.ExamPage(fakeportal.ExamRow{Title: "b", Due: "截止：2024-03-02 23:59"})},
		fakeportal.Course{OpenId: "3", Title: "C", ExamPage: fakeportal.ExamPage()},
	)

	deadlines, err := NewPipeline(Options{Workers: 2}).ListDeadlines(testContext(t), env.session)
	require.NoError(t, err)
	require.Len(t, deadlines, 2)
	require.Equal(t, "a", deadlines[0].Title)
	require.Equal(t, "b", deadlines[1].Title)
	require.Equal(t, deadlines[0].CreateTime, deadlines[1].CreateTime)
	require.Equal(t, CourseId("2"), deadlines[1].CourseId)
}

func TestListDeadlinesMalformedRow(t *testing.T) {
	cases := []struct {
		name string
		row  fakeportal.ExamRow
	}{
		{name: "no date", row: fakeportal.ExamRow{Title: "作业二", Due: "截止：待定"}},
		{name: "no title", row: fakeportal.ExamRow{Title: "", Due: "截止：2024-03-08 12:00"}},
		{name: "impossible date", row: fakeportal.ExamRow{Title: "作业二", Due: "截止：2024-13-45 25:61"}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			env := setup(t)
			env.portal.SetCourses(fakeportal.Course{
				OpenId: "1001",
				Title:  "Algorithms",
				ExamPage: fakeportal.ExamPage(
					fakeportal.ExamRow{Title: "作业一", Due: "截止：2024-03-01 23:59"},
					c.row,
				),
			})

			deadlines, err := newTestPipeline(4).ListDeadlines(testContext(t), env.session)
			require.ErrorIs(t, err, ErrParse)
			require.Nil(t, deadlines)
		})
	}
}

func TestListDeadlinesAllOrNothing(t *testing.T) {
	env := setup(t)
	courses := []fakeportal.Course{{
		OpenId:   "1",
		Title:    "broken",
		ExamPage: fakeportal.ExamPage(fakeportal.ExamRow{Title: "x", Due: "no date"}),
	}}
	for i := 2; i <= 8; i++ {
		courses = append(courses, fakeportal.Course{
			OpenId:   strconv.Itoa(i),
			Title:    "fine",
			ExamPage: fakeportal.ExamPage(fakeportal.ExamRow{Title: "ok", Due: "截止：2024-03-01 23:59"}),
		})
	}
	env.portal.SetCourses(courses...)

	deadlines, err := newTestPipeline(1).ListDeadlines(testContext(t), env.session)
	require.ErrorIs(t, err, ErrParse)
	require.Nil(t, deadlines)
	// with a single worker, the failure stops the remaining courses from being fetched
	for i := 2; i <= 8; i++ {
		require.Zero(t, env.portal.ExamPageFetches(strconv.Itoa(i)))
	}
}

func TestListDeadlinesMissingTable(t *testing.T) {
	env := setup(t)
	env.portal.SetCourses(fakeportal.Course{
		OpenId:   "1001",
		Title:    "Algorithms",
		ExamPage: "<html><body><p>暂无作业</p></body></html>",
	})

	_, err := newTestPipeline(1).ListDeadlines(testContext(t), env.session)
	require.ErrorIs(t, err, ErrParse)
}

func TestListDeadlinesSessionError(t *testing.T) {
	env := setup(t)
	env.portal.SetCourses(fakeportal.Course{OpenId: "1001", Title: "Algorithms", ExamPage: fakeportal.ExamPage()})

	// the platform forgets the session once its cookie no longer matches
	env.session.Http().GetClient().Jar.SetCookies(
		mustParse(t, env.portal.URL()),
		[]*http.Cookie{{Name: njuauth.TokenCookie, Value: "expired"}},
	)

	_, err := newTestPipeline(1).ListDeadlines(testContext(t), env.session)
	require.ErrorIs(t, err, ErrSession)
}

func TestListDeadlinesDueLabel(t *testing.T) {
	env := setup(t)
	env.portal.SetCourses(fakeportal.Course{
		OpenId:   "1001",
		Title:    "Algorithms",
		ExamPage: fakeportal.ExamPage(fakeportal.ExamRow{Title: "hw1", Due: "Due: 2024-03-01 23:59"}),
	})

	pipeline := NewPipeline(Options{DueLabel: "Due:", Clock: chrono.FixedTime(now)})
	deadlines, err := pipeline.ListDeadlines(testContext(t), env.session)
	require.NoError(t, err)
	require.Len(t, deadlines, 1)
	require.Equal(t, dueMillis(2024, time.March, 1, 23, 59), deadlines[0].DueTime)
}

func TestListDeadlinesDoesNotMutateSession(t *testing.T) {
	env := setup(t)
	env.portal.SetCourses(fakeportal.Course{OpenId: "1001", Title: "Algorithms", ExamPage: fakeportal.ExamPage()})
	token := env.session.Token()

	_, err := newTestPipeline(4).ListDeadlines(testContext(t), env.session)
	require.NoError(t, err)
	require.Equal(t, token, env.session.Token())
	require.Equal(t, 1, env.portal.ExamPageFetches("1001"))
}
