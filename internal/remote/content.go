package remote

import (
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// ScanContent reduces a comment body to plain text and collects the
// outbound links it contains, both from anchors and from bare URLs.
func ScanContent(body string) (text string, links []string) {
	var sb strings.Builder
	seen := map[string]bool{}
	add := func(raw string) {
		raw = strings.TrimRight(raw, ".,;:!?)")
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return
		}
		if !seen[raw] {
			seen[raw] = true
			links = append(links, raw)
		}
	}

	z := html.NewTokenizer(strings.NewReader(body))
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(sb.String()), " "), links
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			switch tok.Data {
			case "script", "style":
				if tok.Type == html.StartTagToken {
					skip++
				}
			case "a":
				for _, attr := range tok.Attr {
					if attr.Key == "href" {
						add(attr.Val)
					}
				}
			case "br", "p", "div", "li":
				sb.WriteByte(' ')
			}
		case html.EndTagToken:
			tok := z.Token()
			if (tok.Data == "script" || tok.Data == "style") && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip > 0 {
				continue
			}
			chunk := string(z.Text())
			for _, word := range strings.Fields(chunk) {
				if strings.HasPrefix(word, "http://") || strings.HasPrefix(word, "https://") {
					add(word)
				}
			}
			sb.WriteString(chunk)
			sb.WriteByte(' ')
		}
	}
}
