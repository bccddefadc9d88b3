package njuauth

import (
	"net/http"
	"net/url"

	"github.com/go-resty/resty/v2"
)

// TokenCookie is the platform cookie that has to be echoed back as the
// `postoken` form field on every platform request.
const TokenCookie = "cpstk"

// Session is an http client that is logged into the course platform.
//
// A Session must not be used concurrently with the Establish call that
// produced it; use Fork to give each concurrent worker its own copy.
type Session struct {
	http        *resty.Client
	platformUrl *url.URL
	newClient   func() (*resty.Client, error)
}

// Http returns the underlying client, requests through it carry the session cookies.
func (s *Session) Http() *resty.Client {
	return s.http
}

// Endpoint resolves a path against the platform base url.
func (s *Session) Endpoint(path string) string {
	return s.platformUrl.JoinPath(path).String()
}

// Referer is the page the platform expects its ajax endpoints to be called from.
func (s *Session) Referer() string {
	return s.Endpoint("/portal/myCourseIndex/1.mooc") + "?checkEmail=false"
}

// Token returns the activation token transferred into the platform, or an
// empty string if the platform never set it.
func (s *Session) Token() string {
	return tokenFromJar(s.http, s.platformUrl)
}

func tokenFromJar(client *resty.Client, platformUrl *url.URL) string {
	jar := client.GetClient().Jar
	if jar == nil {
		return ""
	}
	for _, cookie := range jar.Cookies(platformUrl) {
		if cookie.Name == TokenCookie {
			return cookie.Value
		}
	}
	return ""
}

// forkJar reads through to the parent session's jar, cookies set on the fork
// go into its own jar and shadow parent cookies of the same name.
type forkJar struct {
	parent http.CookieJar
	own    http.CookieJar
}

func (j forkJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.own.SetCookies(u, cookies)
}

func (j forkJar) Cookies(u *url.URL) []*http.Cookie {
	cookies := j.own.Cookies(u)
	shadowed := make(map[string]bool, len(cookies))
	for _, c := range cookies {
		shadowed[c.Name] = true
	}
	for _, c := range j.parent.Cookies(u) {
		if !shadowed[c.Name] {
			cookies = append(cookies, c)
		}
	}
	return cookies
}

// Fork returns a new Session with its own client that sees every cookie of
// this session, whatever its path or domain, and the same headers. Cookies
// set on the fork do not flow back.
func (s *Session) Fork() (*Session, error) {
	client, err := s.newClient()
	if err != nil {
		return nil, err
	}

	client.SetCookieJar(forkJar{
		parent: s.http.GetClient().Jar,
		own:    client.GetClient().Jar,
	})
	for key, values := range s.http.Header {
		client.Header[key] = append([]string(nil), values...)
	}

	return &Session{
		http:        client,
		platformUrl: s.platformUrl,
		newClient:   s.newClient,
	}, nil
}
