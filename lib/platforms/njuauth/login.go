package njuauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Credential struct {
	Account  string
	Password string
}

// loginForm is what POST /authserver/login expects.
type loginForm struct {
	handshake
	Account           string
	EncryptedPassword string
	Captcha           string
}

func (f loginForm) values() map[string]string {
	return map[string]string{
		"username":        f.Account,
		"password":        f.EncryptedPassword,
		"lt":              f.Lt,
		"dllt":            "userNamePasswordLogin",
		"execution":       f.Execution,
		"_eventId":        f.EventId,
		"rmShown":         f.RmShown,
		"captchaResponse": f.Captcha,
	}
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Establish logs `cred` into the authserver and activates the course platform.
// Every call starts from a fresh client, nothing from a previous attempt is reused.
func (n *Negotiator) Establish(ctx context.Context, cred Credential) (*Session, error) {
	ctx, span := tracer.Start(ctx, "Negotiator:Establish", trace.WithAttributes(
		attribute.String("account", cred.Account),
	))
	defer span.End()

	client, err := n.newHttpClient()
	if err != nil {
		return nil, fail(span, err)
	}

	hs, err := n.fetchHandshake(ctx, client)
	if err != nil {
		return nil, fail(span, err)
	}

	needCaptcha, err := n.captchaRequired(ctx, client, cred.Account)
	if err != nil {
		return nil, fail(span, err)
	}
	captcha := ""
	if needCaptcha {
		captcha, err = n.solveCaptcha(ctx, client)
		if err != nil {
			return nil, fail(span, err)
		}
	}

	encrypted, err := EncryptPassword(cred.Password, hs.PwdSalt, n.random)
	if err != nil {
		return nil, fail(span, err)
	}

	status, err := n.submitLogin(ctx, client, loginForm{
		handshake:         hs,
		Account:           cred.Account,
		EncryptedPassword: encrypted,
		Captcha:           captcha,
	})
	if err != nil {
		return nil, fail(span, err)
	}
	span.SetAttributes(attribute.Int("login.status", status))

	switch status {
	case http.StatusOK:
		return nil, fail(span, ErrInvalidCredential)
	case http.StatusFound:
	default:
		return nil, fail(span, &UnknownAuthError{Status: status})
	}

	err = n.activate(ctx, client)
	if err != nil {
		return nil, fail(span, err)
	}

	slog.InfoContext(ctx, "established platform session", "account", cred.Account, "captcha", needCaptcha)
	return &Session{
		http:        client,
		platformUrl: n.platformUrl,
		newClient:   n.newHttpClient,
	}, nil
}

// CaptchaRequired asks the authserver whether logging in as `account` needs a
// captcha. It uses a throwaway client so no session state is touched.
func (n *Negotiator) CaptchaRequired(ctx context.Context, account string) (bool, error) {
	ctx, span := tracer.Start(ctx, "Negotiator:CaptchaRequired")
	defer span.End()

	client, err := n.newHttpClient()
	if err != nil {
		return false, fail(span, err)
	}
	need, err := n.captchaRequired(ctx, client, account)
	if err != nil {
		return false, fail(span, err)
	}
	return need, nil
}

func (n *Negotiator) fetchHandshake(ctx context.Context, client *resty.Client) (handshake, error) {
	res, err := client.R().
		SetContext(ctx).
		Get(n.authEndpoint("/authserver/login"))
	if err != nil {
		return handshake{}, fmt.Errorf("%w: fetch login page: %w", ErrAuthUnavailable, err)
	}
	if res.IsError() {
		return handshake{}, fmt.Errorf("%w: fetch login page: status %d", ErrAuthUnavailable, res.StatusCode())
	}
	return parseLoginPage(res.String())
}

func (n *Negotiator) captchaRequired(ctx context.Context, client *resty.Client, account string) (bool, error) {
	res, err := client.R().
		SetContext(ctx).
		SetQueryParam("username", account).
		Get(n.authEndpoint("/authserver/needCaptcha.html"))
	if err != nil {
		return false, fmt.Errorf("%w: check captcha: %w", ErrAuthUnavailable, err)
	}
	if res.IsError() {
		return false, fmt.Errorf("%w: check captcha: status %d", ErrAuthUnavailable, res.StatusCode())
	}
	return parseNeedCaptcha(res.String()), nil
}

func (n *Negotiator) solveCaptcha(ctx context.Context, client *resty.Client) (string, error) {
	if n.solver == nil {
		return "", fmt.Errorf("%w: captcha required but no solver is configured", ErrCaptchaResolution)
	}

	res, err := client.R().
		SetContext(ctx).
		Get(n.authEndpoint("/authserver/captcha.html"))
	if err != nil {
		return "", fmt.Errorf("%w: fetch image: %w", ErrCaptchaResolution, err)
	}
	if res.IsError() || len(res.Body()) == 0 {
		return "", fmt.Errorf("%w: fetch image: status %d", ErrCaptchaResolution, res.StatusCode())
	}

	text, err := n.solver.Solve(ctx, res.Body())
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrCaptchaResolution, err)
	}
	if text == "" {
		return "", fmt.Errorf("%w: solver returned no text", ErrCaptchaResolution)
	}
	slog.DebugContext(ctx, "solved captcha", "text", text)
	return text, nil
}

// submitLogin posts the login form and returns the status of that exact
// response, redirects are not followed.
func (n *Negotiator) submitLogin(ctx context.Context, client *resty.Client, form loginForm) (int, error) {
	client.SetRedirectPolicy(noRedirects)
	defer client.SetRedirectPolicy(n.redirectPolicy())

	res, err := client.R().
		SetContext(ctx).
		SetFormData(form.values()).
		Post(n.authEndpoint("/authserver/login"))
	if err != nil {
		return 0, fmt.Errorf("%w: submit login: %w", ErrAuthUnavailable, err)
	}
	return res.StatusCode(), nil
}

// activate transfers the sso login into the platform's own session cookie.
func (n *Negotiator) activate(ctx context.Context, client *resty.Client) error {
	_, err := client.R().
		SetContext(ctx).
		Get(n.platformEndpoint("/oauth/toMoocAuth.mooc"))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlatformActivation, err)
	}

	token := tokenFromJar(client, n.platformUrl)
	if token == "" {
		return fmt.Errorf("%w: platform did not set the %s cookie", ErrPlatformActivation, TokenCookie)
	}

	_, err = client.R().
		SetContext(ctx).
		SetFormData(map[string]string{"postoken": token}).
		SetHeader("Referer", n.platformEndpoint("/portal/myCourseIndex/1.mooc")+"?checkEmail=false").
		Post(n.platformEndpoint("/portal/user/hasmessage.mooc"))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPlatformActivation, err)
	}
	return nil
}

// IsCredentialError reports whether err means the credential itself is wrong,
// as opposed to a transient platform problem.
func IsCredentialError(err error) bool {
	return errors.Is(err, ErrInvalidCredential)
}
