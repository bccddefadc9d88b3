package njuauth

import (
	"fmt"
	"regexp"
	"strings"
)

// handshake holds the single-use scalars scraped from one login page, it is
// passed explicitly through the login steps and dropped afterwards.
type handshake struct {
	Lt        string
	Execution string
	EventId   string
	RmShown   string
	PwdSalt   string
}

type hiddenField struct {
	name string
	re   *regexp.Regexp
	set  func(h *handshake, value string)
}

var loginPageFields = []hiddenField{
	{
		name: "lt",
		re:   regexp.MustCompile(`<input type="hidden" name="lt" value="(.*?)"/>`),
		set:  func(h *handshake, v string) { h.Lt = v },
	},
	{
		name: "execution",
		re:   regexp.MustCompile(`<input type="hidden" name="execution" value="(.*?)"/>`),
		set:  func(h *handshake, v string) { h.Execution = v },
	},
	{
		name: "_eventId",
		re:   regexp.MustCompile(`<input type="hidden" name="_eventId" value="(.*?)"/>`),
		set:  func(h *handshake, v string) { h.EventId = v },
	},
	{
		name: "rmShown",
		re:   regexp.MustCompile(`<input type="hidden" name="rmShown" value="(.*?)"`),
		set:  func(h *handshake, v string) { h.RmShown = v },
	},
	{
		name: "pwdDefaultEncryptSalt",
		re:   regexp.MustCompile(`<input type="hidden" id="pwdDefaultEncryptSalt" value="(.*?)"`),
		set:  func(h *handshake, v string) { h.PwdSalt = v },
	},
}

// parseLoginPage extracts the handshake from the body of GET /authserver/login.
func parseLoginPage(body string) (handshake, error) {
	var h handshake
	var missing []string
	for _, field := range loginPageFields {
		groups := field.re.FindStringSubmatch(body)
		if len(groups) < 2 {
			missing = append(missing, field.name)
			continue
		}
		field.set(&h, groups[1])
	}
	if len(missing) > 0 {
		return handshake{}, fmt.Errorf(
			"%w: missing hidden field(s) %s",
			ErrProtocolShape, strings.Join(missing, ", "),
		)
	}
	return h, nil
}

// parseNeedCaptcha reads the body of GET /authserver/needCaptcha.html.
func parseNeedCaptcha(body string) bool {
	return strings.Contains(body, "true")
}
