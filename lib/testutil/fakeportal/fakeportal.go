// Package fakeportal is an in-process stand-in for the authserver and the
// course platform, serving both from one httptest server.
package fakeportal

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
)

const (
	Salt  = "rjBFAaHsNHKcBuuX"
	Token = "cpstk-token-0001"

	ticketCookie = "CASTGC"
)

// LoginPage renders the authserver login page, fields named in `omit` are left out.
func LoginPage(omit ...string) string {
	skip := map[string]bool{}
	for _, o := range omit {
		skip[o] = true
	}

	var b strings.Builder
	b.WriteString("<html><body><form id=\"casLoginForm\" method=\"post\">\n")
	field := func(name, line string) {
		if !skip[name] {
			b.WriteString(line + "\n")
		}
	}
	field("lt", `<input type="hidden" name="lt" value="LT-1234-abcd-cas"/>`)
	b.WriteString(`<input type="hidden" name="dllt" value="userNamePasswordLogin"/>` + "\n")
	field("execution", `<input type="hidden" name="execution" value="e1s1"/>`)
	field("_eventId", `<input type="hidden" name="_eventId" value="submit"/>`)
	field("rmShown", `<input type="hidden" name="rmShown" value="1">`)
	field("pwdDefaultEncryptSalt", fmt.Sprintf(`<input type="hidden" id="pwdDefaultEncryptSalt" value="%s"/>`, Salt))
	b.WriteString("</form></body></html>")
	return b.String()
}

type ExamRow struct {
	Title string
	// the raw due text, e.g. "截止：2024-03-01 23:59"
	Due string
}

// ExamPage renders an assignment listing with one homework-toggle row per entry.
func ExamPage(rows ...ExamRow) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="exam-list"><table class="homework-table">`)
	b.WriteString(`<tr class="homework-head"><th>名称</th><th>时间</th></tr>`)
	for _, r := range rows {
		titleAttr := ""
		if r.Title != "" {
			titleAttr = fmt.Sprintf(` title="%s"`, r.Title)
		}
		fmt.Fprintf(
			&b,
			`<tr class="homework-toggle"><td class="td1"%s>%s</td><td class="td2"><span class="time">%s</span></td></tr>`,
			titleAttr, r.Title, r.Due,
		)
	}
	b.WriteString(`</table></div></body></html>`)
	return b.String()
}

type Course struct {
	OpenId   string
	Title    string
	ExamPage string
}

type Portal struct {
	Server *httptest.Server

	mutex sync.Mutex

	LoginPage    string
	NeedCaptcha  bool
	CaptchaImage []byte
	// status of POST /authserver/login, defaults to 302
	LoginStatus int
	// when set, the platform never hands out the token cookie
	WithholdToken bool
	Courses       []Course

	loginForms      []url.Values
	captchaChecks   []string
	activations     []string
	examPageFetches map[string]int
}

func New() *Portal {
	p := &Portal{
		LoginPage:       LoginPage(),
		CaptchaImage:    []byte("\x89PNG fake captcha"),
		LoginStatus:     http.StatusFound,
		examPageFetches: map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /authserver/login", p.getLogin)
	mux.HandleFunc("POST /authserver/login", p.postLogin)
	mux.HandleFunc("GET /authserver/needCaptcha.html", p.needCaptcha)
	mux.HandleFunc("GET /authserver/captcha.html", p.captcha)
	mux.HandleFunc("GET /oauth/toMoocAuth.mooc", p.toMoocAuth)
	mux.HandleFunc("POST /portal/user/hasmessage.mooc", p.hasMessage)
	mux.HandleFunc("POST /portal/ajaxMyCourseIndex.mooc", p.courseIndex)
	mux.HandleFunc("POST /portal/share/course.mooc", p.courseInfo)
	mux.HandleFunc("GET /examTest/stuExamList/{page}", p.examList)
	p.Server = httptest.NewServer(mux)
	return p
}

func (p *Portal) URL() string {
	return p.Server.URL
}

func (p *Portal) Close() {
	p.Server.Close()
}

// LoginForms returns every form posted to the login endpoint.
func (p *Portal) LoginForms() []url.Values {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]url.Values(nil), p.loginForms...)
}

// CaptchaChecks returns the usernames the captcha check was called with.
func (p *Portal) CaptchaChecks() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]string(nil), p.captchaChecks...)
}

// Activations returns the postoken values sent to hasmessage.mooc.
func (p *Portal) Activations() []string {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return append([]string(nil), p.activations...)
}

func (p *Portal) ExamPageFetches(openId string) int {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	return p.examPageFetches[openId]
}

func (p *Portal) SetCourses(courses ...Course) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	p.Courses = courses
}

func (p *Portal) findCourse(openId string) (Course, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	for _, c := range p.Courses {
		if c.OpenId == openId {
			return c, true
		}
	}
	return Course{}, false
}

func hasCookie(r *http.Request, name, value string) bool {
	c, err := r.Cookie(name)
	return err == nil && (value == "" || c.Value == value)
}

func (p *Portal) getLogin(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: "JSESSIONID_auth", Value: "auth-session", Path: "/"})
	w.Header().Set("Content-Type", "text/html;charset=UTF-8")
	w.Write([]byte(p.LoginPage))
}

func (p *Portal) postLogin(w http.ResponseWriter, r *http.Request) {
	err := r.ParseForm()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	p.mutex.Lock()
	p.loginForms = append(p.loginForms, r.PostForm)
	status := p.LoginStatus
	p.mutex.Unlock()

	if status == http.StatusFound {
		http.SetCookie(w, &http.Cookie{Name: ticketCookie, Value: "TGT-1", Path: "/"})
		w.Header().Set("Location", "/oauth/toMoocAuth.mooc")
	}
	w.WriteHeader(status)
	if status == http.StatusOK {
		w.Write([]byte(`<span id="msg" class="auth_error">您提供的用户名或者密码有误</span>`))
	}
}

func (p *Portal) needCaptcha(w http.ResponseWriter, r *http.Request) {
	p.mutex.Lock()
	p.captchaChecks = append(p.captchaChecks, r.URL.Query().Get("username"))
	need := p.NeedCaptcha
	p.mutex.Unlock()

	if need {
		w.Write([]byte("true\n"))
		return
	}
	w.Write([]byte("false\n"))
}

func (p *Portal) captcha(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "image/jpeg")
	w.Write(p.CaptchaImage)
}

func (p *Portal) toMoocAuth(w http.ResponseWriter, r *http.Request) {
	if !hasCookie(r, ticketCookie, "") {
		http.Error(w, "not logged in", http.StatusUnauthorized)
		return
	}
	if !p.WithholdToken {
		http.SetCookie(w, &http.Cookie{Name: "cpstk", Value: Token, Path: "/"})
	}
	w.Write([]byte("<html>redirecting</html>"))
}

func (p *Portal) hasMessage(w http.ResponseWriter, r *http.Request) {
	p.mutex.Lock()
	p.activations = append(p.activations, r.PostFormValue("postoken"))
	p.mutex.Unlock()
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"hasMessage":false}`))
}

func (p *Portal) authorized(r *http.Request) bool {
	return r.FormValue("postoken") == Token && hasCookie(r, "cpstk", Token)
}

func (p *Portal) courseIndex(w http.ResponseWriter, r *http.Request) {
	if !p.authorized(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	p.mutex.Lock()
	courses := append([]Course(nil), p.Courses...)
	p.mutex.Unlock()

	var b strings.Builder
	b.WriteString(`<div class="course-list">`)
	for _, c := range courses {
		// every course is linked twice, once from the cover and once from the title
		fmt.Fprintf(&b, `<a class="cover" href="/portal/session/index/%s.mooc"><img/></a>`, c.OpenId)
		fmt.Fprintf(&b, `<a class="title" href="/portal/session/index/%s.mooc">%s</a>`, c.OpenId, c.Title)
	}
	b.WriteString(`</div>`)
	w.Write([]byte(b.String()))
}

func (p *Portal) courseInfo(w http.ResponseWriter, r *http.Request) {
	if !p.authorized(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	course, ok := p.findCourse(r.FormValue("courseOpenId"))
	if !ok {
		http.Error(w, "no such course", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"courseOpenId": course.OpenId,
		"title":        course.Title,
	})
}

func (p *Portal) examList(w http.ResponseWriter, r *http.Request) {
	if !hasCookie(r, "cpstk", Token) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	openId := strings.TrimSuffix(r.PathValue("page"), ".mooc")
	course, ok := p.findCourse(openId)
	if !ok {
		http.Error(w, "no such course", http.StatusNotFound)
		return
	}

	p.mutex.Lock()
	p.examPageFetches[openId]++
	p.mutex.Unlock()

	w.Header().Set("Content-Type", "text/html;charset=UTF-8")
	w.Write([]byte(course.ExamPage))
}
