package spoc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"spoccrawler/lib/chrono"
	"spoccrawler/lib/platforms/njuauth"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

type Options struct {
	// number of courses whose assignments are fetched at once, defaults to 4.
	// 1 visits courses strictly one after another.
	Workers int
	// defaults to DefaultDueLabel
	DueLabel string
	// timezone due dates are written in, defaults to chrono.Location()
	Location *time.Location
	// defaults to chrono.StandardTime
	Clock chrono.TimeAPI
}

// Pipeline turns an established session into courses and deadlines. It holds
// no state between calls, courses are listed again on every call.
type Pipeline struct {
	workers  int
	due      *regexp.Regexp
	location *time.Location
	clock    chrono.TimeAPI
}

func NewPipeline(opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.DueLabel == "" {
		opts.DueLabel = DefaultDueLabel
	}
	if opts.Location == nil {
		opts.Location = chrono.Location()
	}
	if opts.Clock == nil {
		opts.Clock = chrono.StandardTime{}
	}
	return &Pipeline{
		workers:  opts.Workers,
		due:      dueRegex(opts.DueLabel),
		location: opts.Location,
		clock:    opts.Clock,
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func sessionToken(session *njuauth.Session) (string, error) {
	token := session.Token()
	if token == "" {
		return "", fmt.Errorf("%w: session has no %s token", ErrSession, njuauth.TokenCookie)
	}
	return token, nil
}

// request fails with ErrSession on transport errors and non 2xx responses.
func request(ctx context.Context, session *njuauth.Session, method, path string, form map[string]string) (*resty.Response, error) {
	req := session.Http().R().
		SetContext(ctx).
		SetHeader("Referer", session.Referer())
	if form != nil {
		req.SetFormData(form)
	}
	res, err := req.Execute(method, session.Endpoint(path))
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrSession, method, path, err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("%w: %s %s: status %d", ErrSession, method, path, res.StatusCode())
	}
	return res, nil
}

// ListCourses lists the courses on the first page of the user's course index,
// in the order the index shows them.
func (p *Pipeline) ListCourses(ctx context.Context, session *njuauth.Session) ([]Course, error) {
	ctx, span := tracer.Start(ctx, "Pipeline:ListCourses")
	defer span.End()

	token, err := sessionToken(session)
	if err != nil {
		return nil, fail(span, err)
	}

	res, err := request(ctx, session, resty.MethodPost, "/portal/ajaxMyCourseIndex.mooc", map[string]string{
		"postoken":         token,
		"keyWord":          "",
		"tabIndex":         "1",
		"searchType":       "0",
		"schoolcourseType": "0",
		"pageIndex":        "1",
	})
	if err != nil {
		return nil, fail(span, err)
	}

	openIds := parseCourseIndex(res.String())
	span.SetAttributes(attribute.Int("courses", len(openIds)))

	courses := make([]Course, 0, len(openIds))
	for _, openId := range openIds {
		title, err := p.courseTitle(ctx, session, token, openId)
		if err != nil {
			return nil, fail(span, err)
		}
		courses = append(courses, Course{
			Title:  title,
			Id:     CourseId(openId),
			OpenId: openId,
		})
	}
	return courses, nil
}

func (p *Pipeline) courseTitle(ctx context.Context, session *njuauth.Session, token, openId string) (string, error) {
	res, err := request(ctx, session, resty.MethodPost, "/portal/share/course.mooc", map[string]string{
		"postoken":     token,
		"courseOpenId": openId,
	})
	if err != nil {
		return "", err
	}

	var info courseInfo
	err = json.Unmarshal(res.Body(), &info)
	if err != nil {
		return "", fmt.Errorf("%w: decode course %s: %w", ErrSession, openId, err)
	}
	return info.Title, nil
}

// ListDeadlines lists the assignments of every course. All records of one
// call share the same CreateTime. If any course fails to fetch or parse, no
// records are returned at all.
func (p *Pipeline) ListDeadlines(ctx context.Context, session *njuauth.Session) ([]Deadline, error) {
	ctx, span := tracer.Start(ctx, "Pipeline:ListDeadlines")
	defer span.End()

	createTime := p.clock.Now().UnixMilli()

	courses, err := p.ListCourses(ctx, session)
	if err != nil {
		return nil, fail(span, err)
	}

	results := make([][]Deadline, len(courses))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(p.workers)
	for i, course := range courses {
		group.Go(func() error {
			if groupCtx.Err() != nil {
				return groupCtx.Err()
			}
			fork, err := session.Fork()
			if err != nil {
				return fmt.Errorf("%w: fork session: %w", ErrSession, err)
			}
			deadlines, err := p.courseDeadlines(groupCtx, fork, course, createTime)
			if err != nil {
				return err
			}
			results[i] = deadlines
			return nil
		})
	}
	err = group.Wait()
	if err != nil {
		return nil, fail(span, err)
	}

	var out []Deadline
	for _, deadlines := range results {
		out = append(out, deadlines...)
	}
	span.SetAttributes(attribute.Int("deadlines", len(out)))
	return out, nil
}

func (p *Pipeline) courseDeadlines(ctx context.Context, session *njuauth.Session, course Course, createTime int64) ([]Deadline, error) {
	ctx, span := tracer.Start(ctx, "Pipeline:courseDeadlines", trace.WithAttributes(
		attribute.String("course.open_id", course.OpenId),
	))
	defer span.End()

	res, err := request(ctx, session, resty.MethodGet, fmt.Sprintf("/examTest/stuExamList/%s.mooc", course.OpenId), nil)
	if err != nil {
		return nil, fail(span, err)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, fail(span, fmt.Errorf("%w: %w", ErrParse, err))
	}

	rows, err := parseExamList(doc, p.due, p.location)
	if err != nil {
		return nil, fail(span, fmt.Errorf("course %s (%s): %w", course.Title, course.OpenId, err))
	}

	deadlines := make([]Deadline, len(rows))
	for i, row := range rows {
		deadlines[i] = Deadline{
			PlatformId: PlatformUuid,
			CourseId:   course.Id,
			CreateTime: createTime,
			DueTime:    row.Due.UnixMilli(),
			Title:      row.Title,
			Content:    deadlineContent(course.Title),
		}
	}
	slog.DebugContext(ctx, "parsed assignment listing", "course", course.Title, "deadlines", len(deadlines))
	return deadlines, nil
}
