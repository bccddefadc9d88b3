package htmlutil

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/net/html"
)

// GetText concatenates every text node under `node`.
func GetText(node *html.Node) string {
	var out strings.Builder
	getTextRecursive(node, &out)
	return out.String()
}

func getTextRecursive(node *html.Node, out *strings.Builder) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		out.WriteString(node.Data)
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		getTextRecursive(child, out)
	}
}

var innerWhitespace = regexp.MustCompile(`[\s\p{Zs}]+`)

// NormalizeText drops non-printable runes, trims the ends and collapses inner
// whitespace (including &nbsp;) into single spaces.
func NormalizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if r == ' ' {
			return ' '
		}
		if unicode.IsSpace(r) || unicode.IsPrint(r) {
			return r
		}
		return -1
	}, s)
	s = innerWhitespace.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
