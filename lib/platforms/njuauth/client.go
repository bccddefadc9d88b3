package njuauth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"spoccrawler/lib/restyutil"
	"spoccrawler/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

var tracer = telemetry.Tracer("spoccrawler/lib/platforms/njuauth")

const (
	DefaultAuthBaseUrl     = "https://authserver.nju.edu.cn"
	DefaultPlatformBaseUrl = "https://study.nju.edu.cn"

	// the authserver serves a different (script only) login flow to clients
	// that do not look like a browser.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/100.0.4896.88 Safari/537.36"
)

// CaptchaSolver turns a captcha image into the text it shows.
type CaptchaSolver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

type Options struct {
	// defaults to DefaultAuthBaseUrl
	AuthBaseUrl string
	// defaults to DefaultPlatformBaseUrl
	PlatformBaseUrl string
	// required only if the authserver asks for a captcha
	Solver CaptchaSolver
	// defaults to CryptoRandom
	Random RandomSource
	// 0 means unlimited
	RequestsPerSecond float64
	BypassCloudflare  bool
	// if set, every http exchange is written to it
	Output restyutil.InstrumentOutput
}

// Negotiator performs the authserver login handshake and hands out sessions
// that are logged into the course platform.
type Negotiator struct {
	authUrl          *url.URL
	platformUrl      *url.URL
	solver           CaptchaSolver
	random           RandomSource
	limiter          *rate.Limiter
	bypassCloudflare bool
	instrumentation  *restyutil.Instrumentation
}

func NewNegotiator(opts Options) (*Negotiator, error) {
	if opts.AuthBaseUrl == "" {
		opts.AuthBaseUrl = DefaultAuthBaseUrl
	}
	if opts.PlatformBaseUrl == "" {
		opts.PlatformBaseUrl = DefaultPlatformBaseUrl
	}
	if opts.Random == nil {
		opts.Random = CryptoRandom{}
	}

	authUrl, err := url.Parse(opts.AuthBaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse auth url: %w", err)
	}
	platformUrl, err := url.Parse(opts.PlatformBaseUrl)
	if err != nil {
		return nil, fmt.Errorf("parse platform url: %w", err)
	}

	n := &Negotiator{
		authUrl:          authUrl,
		platformUrl:      platformUrl,
		solver:           opts.Solver,
		random:           opts.Random,
		bypassCloudflare: opts.BypassCloudflare,
		instrumentation:  restyutil.NewInstrumentation(tracer, opts.Output),
	}
	if opts.RequestsPerSecond > 0 {
		// burst >= 1 just means that no requests will be dropped
		n.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}
	return n, nil
}

func (n *Negotiator) authEndpoint(path string) string {
	return n.authUrl.JoinPath(path).String()
}

func (n *Negotiator) platformEndpoint(path string) string {
	return n.platformUrl.JoinPath(path).String()
}

func (n *Negotiator) redirectPolicy() resty.RedirectPolicy {
	return resty.DomainCheckRedirectPolicy(n.authUrl.Hostname(), n.platformUrl.Hostname())
}

var noRedirects = resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
})

// newHttpClient creates a client with an empty cookie jar, every session
// (and every fork of a session) gets its own.
func (n *Negotiator) newHttpClient() (*resty.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	if n.bypassCloudflare {
		client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	}
	client.SetHeader("User-Agent", UserAgent)
	client.SetRedirectPolicy(n.redirectPolicy())

	// attached first so a failed limiter wait is recorded on the request span
	n.instrumentation.Attach(client)
	if n.limiter != nil {
		limiter := n.limiter
		client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
			return limiter.Wait(req.Context())
		})
	}
	return client, nil
}
