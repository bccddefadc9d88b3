// Package njuspoc implements crawler.Crawler for the NJU SPOC platform.
package njuspoc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"spoccrawler/lib/crawler"
	"spoccrawler/lib/ocr"
	"spoccrawler/lib/platforms/njuauth"
	"spoccrawler/lib/platforms/spoc"
	"spoccrawler/lib/restyutil"
	"spoccrawler/lib/telemetry"

	"go.opentelemetry.io/otel/codes"
)

// Name is the name the crawler is registered under.
const Name = "nju_spoc"

var tracer = telemetry.Tracer("spoccrawler/lib/crawlers/njuspoc")

var ErrNotLoggedIn = errors.New("not logged in, call Login first")

var requiredFields = map[string]crawler.Field{
	"account": {
		Name:   "账号",
		Detail: "南大统一认证登录账号",
	},
	"password": {
		Name:   "密码",
		Detail: "南大统一认证登录密码",
	},
}

type Options struct {
	Config Config
	// if set, every http exchange is written to it
	Output restyutil.InstrumentOutput
	// overrides the ocr client built from Config.OcrUrl
	Solver njuauth.CaptchaSolver
}

// Crawler holds at most one logged in session. Login and the fetches are
// serialized, a Login replaces the session of any previous one.
type Crawler struct {
	negotiator *njuauth.Negotiator
	pipeline   *spoc.Pipeline

	mutex   sync.Mutex
	session *njuauth.Session
}

func New(opts Options) (*Crawler, error) {
	config, err := opts.Config.withDefaults()
	if err != nil {
		return nil, err
	}

	solver := opts.Solver
	if solver == nil && config.OcrUrl != "" {
		format, err := ocr.ParseBodyFormat(config.OcrFormat)
		if err != nil {
			return nil, err
		}
		solver = ocr.NewClient(config.OcrUrl, format, opts.Output)
	}

	negotiator, err := njuauth.NewNegotiator(njuauth.Options{
		AuthBaseUrl:       config.AuthUrl,
		PlatformBaseUrl:   config.PlatformUrl,
		Solver:            solver,
		RequestsPerSecond: config.RequestsPerSecond,
		BypassCloudflare:  config.BypassCloudflare,
		Output:            opts.Output,
	})
	if err != nil {
		return nil, err
	}

	return &Crawler{
		negotiator: negotiator,
		pipeline: spoc.NewPipeline(spoc.Options{
			Workers:  config.Workers,
			DueLabel: config.DueLabel,
		}),
	}, nil
}

// Register adds the crawler to `registry` under Name.
func Register(registry *crawler.Registry, opts Options) error {
	return registry.Register(Name, func() (crawler.Crawler, error) {
		return New(opts)
	})
}

// classify marks errors with what the caller should do about them.
func classify(err error) error {
	switch {
	case njuauth.IsCredentialError(err):
		return fmt.Errorf("%w: %w", crawler.ErrCredential, err)
	case errors.Is(err, njuauth.ErrAuthUnavailable),
		errors.Is(err, njuauth.ErrCaptchaResolution),
		errors.Is(err, njuauth.ErrPlatformActivation),
		errors.Is(err, njuauth.ErrUnknownAuth),
		errors.Is(err, spoc.ErrSession):
		return fmt.Errorf("%w: %w", crawler.ErrTransient, err)
	}
	return err
}

func (c *Crawler) RequiredFields() map[string]crawler.Field {
	out := make(map[string]crawler.Field, len(requiredFields))
	for k, v := range requiredFields {
		out[k] = v
	}
	return out
}

func (c *Crawler) Login(ctx context.Context, fields map[string]string) error {
	ctx, span := tracer.Start(ctx, "Crawler:Login")
	defer span.End()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.session = nil
	err := crawler.ValidateFields(requiredFields, fields)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	session, err := c.negotiator.Establish(ctx, njuauth.Credential{
		Account:  fields["account"],
		Password: fields["password"],
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return classify(err)
	}
	c.session = session
	return nil
}

// CaptchaRequired reports whether logging in as `account` currently needs a captcha.
func (c *Crawler) CaptchaRequired(ctx context.Context, account string) (bool, error) {
	need, err := c.negotiator.CaptchaRequired(ctx, account)
	if err != nil {
		return false, classify(err)
	}
	return need, nil
}

func (c *Crawler) FetchCourses(ctx context.Context) ([]crawler.Course, error) {
	ctx, span := tracer.Start(ctx, "Crawler:FetchCourses")
	defer span.End()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session == nil {
		span.SetStatus(codes.Error, ErrNotLoggedIn.Error())
		return nil, ErrNotLoggedIn
	}

	courses, err := c.pipeline.ListCourses(ctx, c.session)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, classify(err)
	}

	out := make([]crawler.Course, len(courses))
	for i, course := range courses {
		out[i] = crawler.Course{
			Title: course.Title,
			Id:    course.Id.String(),
		}
	}
	return out, nil
}

func (c *Crawler) FetchDeadlines(ctx context.Context) ([]crawler.Deadline, error) {
	ctx, span := tracer.Start(ctx, "Crawler:FetchDeadlines")
	defer span.End()

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if c.session == nil {
		span.SetStatus(codes.Error, ErrNotLoggedIn.Error())
		return nil, ErrNotLoggedIn
	}

	deadlines, err := c.pipeline.ListDeadlines(ctx, c.session)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, classify(err)
	}

	out := make([]crawler.Deadline, len(deadlines))
	for i, d := range deadlines {
		out[i] = crawler.Deadline{
			PlatformUuid: d.PlatformId.String(),
			CourseUuid:   d.CourseId.String(),
			CreateTime:   d.CreateTime,
			DdlTime:      d.DueTime,
			Title:        d.Title,
			Content:      d.Content,
		}
	}
	return out, nil
}
