package njuspoc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spoccrawler/lib/crawler"
	"spoccrawler/lib/platforms/njuauth"
	"spoccrawler/lib/platforms/spoc"
	"spoccrawler/lib/telemetry"
	"spoccrawler/lib/testutil/fakeportal"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*10)
	t.Cleanup(cancel)
	return ctx
}

// ocrServer answers like the deployed recognizer: the body is the base64
// image and the answer is json labeled as text/html.
func ocrServer(t *testing.T, text string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		_, err = base64.StdEncoding.DecodeString(string(raw))
		if err != nil {
			http.Error(w, "body is not base64", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html;charset=UTF-8")
		json.NewEncoder(w).Encode(map[string]string{"result": text})
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestCrawler(t *testing.T, portal *fakeportal.Portal, ocrUrl string) *Crawler {
	c, err := New(Options{Config: Config{
		AuthUrl:     portal.URL(),
		PlatformUrl: portal.URL(),
		OcrUrl:      ocrUrl,
	}})
	require.NoError(t, err)
	return c
}

var testFields = map[string]string{"account": "u1", "password": "p1"}

func TestCrawler(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:njuspoc")
	defer cleanup()

	portal := fakeportal.New()
	defer portal.Close()
	portal.SetCourses(fakeportal.Course{
		OpenId:   "1001",
		Title:    "Algorithms",
		ExamPage: fakeportal.ExamPage(fakeportal.ExamRow{Title: "作业一", Due: "截止：2024-03-01 23:59"}),
	})

	c := newTestCrawler(t, portal, "")
	require.NoError(t, c.Login(testContext(t), testFields))

	courses, err := c.FetchCourses(testContext(t))
	require.NoError(t, err)
	expected := []crawler.Course{{Title: "Algorithms", Id: spoc.CourseId("1001").String()}}
	if diff := cmp.Diff(expected, courses); diff != "" {
		t.Fatalf("courses mismatch (-want +got):\n%s", diff)
	}

	deadlines, err := c.FetchDeadlines(testContext(t))
	require.NoError(t, err)
	require.Len(t, deadlines, 1)
	require.Equal(t, "68dc1014-7bfe-4ea3-a000-5734303d9f59", deadlines[0].PlatformUuid)
	require.Equal(t, spoc.CourseId("1001").String(), deadlines[0].CourseUuid)
	require.Equal(t, "作业一", deadlines[0].Title)
	require.Equal(t, "来自 SPOC `Algorithms` 的 DDL", deadlines[0].Content)
	require.Equal(t, int64(1709308740000), deadlines[0].DdlTime)

	raw, err := json.Marshal(deadlines[0])
	require.NoError(t, err)
	require.Contains(t, string(raw), `"ddl_time":1709308740000`)
	require.Contains(t, string(raw), `"course_uuid":"`)
}

func TestCrawlerCaptcha(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()
	portal.NeedCaptcha = true

	c := newTestCrawler(t, portal, ocrServer(t, "AB12").URL)
	need, err := c.CaptchaRequired(testContext(t), "u1")
	require.NoError(t, err)
	require.True(t, need)

	require.NoError(t, c.Login(testContext(t), testFields))
	forms := portal.LoginForms()
	require.Len(t, forms, 1)
	require.Equal(t, "AB12", forms[0].Get("captchaResponse"))
}

func TestCrawlerCaptchaWithoutOcr(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()
	portal.NeedCaptcha = true

	c := newTestCrawler(t, portal, "")
	err := c.Login(testContext(t), testFields)
	require.ErrorIs(t, err, njuauth.ErrCaptchaResolution)
	require.True(t, crawler.Retryable(err))
}

func TestCrawlerNotLoggedIn(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	c := newTestCrawler(t, portal, "")
	_, err := c.FetchCourses(testContext(t))
	require.ErrorIs(t, err, ErrNotLoggedIn)
	_, err = c.FetchDeadlines(testContext(t))
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestCrawlerInvalidCredential(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	c := newTestCrawler(t, portal, "")
	require.NoError(t, c.Login(testContext(t), testFields))

	// a failed login drops the previous session
	portal.LoginStatus = http.StatusOK
	err := c.Login(testContext(t), testFields)
	require.ErrorIs(t, err, njuauth.ErrInvalidCredential)
	require.True(t, crawler.NeedsNewCredential(err))
	require.False(t, crawler.Retryable(err))

	_, err = c.FetchCourses(testContext(t))
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestCrawlerMissingField(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	c := newTestCrawler(t, portal, "")
	err := c.Login(testContext(t), map[string]string{"account": "u1"})
	require.ErrorIs(t, err, crawler.ErrMissingField)
	require.Empty(t, portal.LoginForms())

	// a rejected attempt also logs out the previous identity
	require.NoError(t, c.Login(testContext(t), testFields))
	err = c.Login(testContext(t), map[string]string{"account": "u2"})
	require.ErrorIs(t, err, crawler.ErrMissingField)
	require.Len(t, portal.LoginForms(), 1)

	_, err = c.FetchCourses(testContext(t))
	require.ErrorIs(t, err, ErrNotLoggedIn)
}

func TestCrawlerUnknownOcrFormat(t *testing.T) {
	_, err := New(Options{Config: Config{OcrUrl: "http://ocr.local", OcrFormat: "xml"}})
	require.ErrorContains(t, err, "unknown ocr body format")
}

func TestCrawlerErrorClassification(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()
	portal.SetCourses(fakeportal.Course{
		OpenId:   "1001",
		Title:    "Algorithms",
		ExamPage: fakeportal.ExamPage(fakeportal.ExamRow{Title: "作业一", Due: "没有日期"}),
	})

	c := newTestCrawler(t, portal, "")
	require.NoError(t, c.Login(testContext(t), testFields))

	_, err := c.FetchDeadlines(testContext(t))
	require.ErrorIs(t, err, spoc.ErrParse)
	require.False(t, crawler.Retryable(err))
	require.False(t, crawler.NeedsNewCredential(err))

	portal.Close()
	_, err = c.FetchCourses(testContext(t))
	require.ErrorIs(t, err, spoc.ErrSession)
	require.True(t, crawler.Retryable(err))
}

func TestRequiredFields(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	c := newTestCrawler(t, portal, "")
	fields := c.RequiredFields()
	require.Equal(t, "账号", fields["account"].Name)
	require.Equal(t, "密码", fields["password"].Name)

	// callers cannot change the fields of other crawlers
	delete(fields, "account")
	require.Contains(t, c.RequiredFields(), "account")
}

func TestRegister(t *testing.T) {
	portal := fakeportal.New()
	defer portal.Close()

	registry := crawler.NewRegistry()
	require.NoError(t, Register(registry, Options{Config: Config{AuthUrl: portal.URL(), PlatformUrl: portal.URL()}}))
	require.Equal(t, []string{Name}, registry.Names())

	cache := crawler.NewSessionCache(registry, 4, time.Minute)
	first, err := cache.Get(testContext(t), Name, testFields)
	require.NoError(t, err)
	second, err := cache.Get(testContext(t), Name, testFields)
	require.NoError(t, err)
	require.Same(t, first, second)
	require.Len(t, portal.LoginForms(), 1)
}

func TestConfigDefaults(t *testing.T) {
	config, err := Config{Workers: 2}.withDefaults()
	require.NoError(t, err)

	expected := DefaultConfig()
	expected.Workers = 2
	require.Equal(t, expected, config)
}
