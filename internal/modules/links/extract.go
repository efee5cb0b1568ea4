package links

import (
	"net"
	"net/url"
	"regexp"
	"strings"

	"chatguard/internal/platform"

	"golang.org/x/net/idna"
)

// Link is one detected link candidate in a message.
type Link struct {
	Raw    string
	Domain string
	Path   string
	Source string // text, attachment, message_url
}

const (
	SourceText       = "text"
	SourceAttachment = "attachment"
	SourceMessageURL = "message_url"
)

var (
	schemeURLRe = regexp.MustCompile(`(?i)\bhttps?://[^\s<>"']+`)
	// Bare domains with a recognizable TLD or punycode label, optionally
	// followed by a path; also bare IPv4 hosts with a path.
	bareDomainRe = regexp.MustCompile(`(?i)\b(?:[\p{L}\d][\p{L}\d-]*\.)+(?:xn--[a-z\d-]+|[\p{L}]{2,})(?::\d+)?(?:/[^\s<>"']*)?`)
	ipv4Re       = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d+)?/[^\s<>"']*`)
	hrefRe       = regexp.MustCompile(`(?i)href\s*=\s*["']([^"']+)["']`)
)

// Free-text fields scanned on every attachment type: text a user typed or
// chose travels in these.
var freeTextFields = map[string]struct{}{
	"caption":     {},
	"description": {},
	"title":       {},
	"text":        {},
	"name":        {},
}

// Technical URL fields skipped on media attachments: they carry hosting
// URLs of content the user uploaded, not links the user sent.
var mediaTechnicalFields = map[string]struct{}{
	"url":         {},
	"preview_url": {},
	"photo_url":   {},
	"thumbnail":   {},
	"token":       {},
	"file_id":     {},
}

var mediaTypes = map[string]struct{}{
	"image":   {},
	"video":   {},
	"audio":   {},
	"file":    {},
	"sticker": {},
}

// Extract finds every link candidate in the message: direct and forwarded
// text, plus the attachment payload walk. Candidates are normalized and
// deduplicated by their domain+path key.
func Extract(msg *platform.Message) []Link {
	var out []Link
	seen := make(map[string]struct{})

	collect := func(raw, source string) {
		link, ok := normalize(raw, source)
		if !ok {
			return
		}
		key := link.Domain + link.Path
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		out = append(out, link)
	}

	scanText(msg.Text, collect)
	if msg.Forwarded != nil {
		scanText(msg.Forwarded.Text, collect)
		for _, att := range msg.Forwarded.Attachments {
			walkAttachment(att.Type, att.Payload, collect)
		}
	}
	for _, att := range msg.Attachments {
		walkAttachment(att.Type, att.Payload, collect)
	}
	return out
}

func scanText(text string, collect func(raw, source string)) {
	if text == "" {
		return
	}
	for _, raw := range schemeURLRe.FindAllString(text, -1) {
		collect(raw, SourceText)
	}
	// Mask scheme URLs so the bare-domain pass does not re-find their hosts.
	masked := schemeURLRe.ReplaceAllString(text, " ")
	for _, raw := range bareDomainRe.FindAllString(masked, -1) {
		collect(raw, SourceText)
	}
	for _, raw := range ipv4Re.FindAllString(masked, -1) {
		collect(raw, SourceText)
	}
	for _, match := range hrefRe.FindAllStringSubmatch(text, -1) {
		collect(match[1], SourceText)
	}
}

func walkAttachment(attType string, payload map[string]any, collect func(raw, source string)) {
	_, isMedia := mediaTypes[attType]
	walkValue(attType, "", payload, isMedia, collect)
}

func walkValue(attType, field string, value any, isMedia bool, collect func(raw, source string)) {
	switch v := value.(type) {
	case string:
		if isMedia {
			if _, technical := mediaTechnicalFields[field]; technical {
				return
			}
		}
		if _, free := freeTextFields[field]; free {
			scanText(v, func(raw, _ string) { collect(raw, SourceAttachment) })
			return
		}
		if field == "url" && !isMedia {
			// Explicit link payloads (share buttons, link previews the user
			// sent) count as links even without surrounding text.
			collect(v, SourceMessageURL)
			return
		}
		scanText(v, func(raw, _ string) { collect(raw, SourceAttachment) })
	case map[string]any:
		for key, nested := range v {
			walkValue(attType, key, nested, isMedia, collect)
		}
	case []any:
		for _, nested := range v {
			walkValue(attType, field, nested, isMedia, collect)
		}
	}
}

func normalize(raw, source string) (Link, bool) {
	cleaned := cleanCandidate(raw)
	if cleaned == "" {
		return Link{}, false
	}

	withScheme := cleaned
	if !strings.HasPrefix(strings.ToLower(withScheme), "http://") &&
		!strings.HasPrefix(strings.ToLower(withScheme), "https://") {
		withScheme = "https://" + withScheme
	}

	parsed, err := url.Parse(withScheme)
	if err != nil {
		return Link{}, false
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return Link{}, false
	}
	if asciiHost, err := idna.ToASCII(host); err == nil {
		host = asciiHost
	}
	if !plausibleHost(host) {
		return Link{}, false
	}

	return Link{
		Raw:    cleaned,
		Domain: host,
		Path:   strings.TrimSuffix(parsed.EscapedPath(), "/"),
		Source: source,
	}, true
}

// cleanCandidate strips the punctuation that regularly wraps links in prose
// and drops unbalanced trailing parens.
func cleanCandidate(raw string) string {
	cleaned := strings.Trim(raw, `.,!?;:"'<>[]{}`)
	for strings.HasSuffix(cleaned, ")") &&
		strings.Count(cleaned, ")") > strings.Count(cleaned, "(") {
		cleaned = strings.TrimSuffix(cleaned, ")")
	}
	for strings.HasPrefix(cleaned, "(") &&
		strings.Count(cleaned, "(") > strings.Count(cleaned, ")") {
		cleaned = strings.TrimPrefix(cleaned, "(")
	}
	return strings.TrimSpace(cleaned)
}

func plausibleHost(host string) bool {
	if net.ParseIP(host) != nil {
		return true
	}
	idx := strings.LastIndex(host, ".")
	if idx < 1 || idx == len(host)-1 {
		return false
	}
	tld := host[idx+1:]
	if strings.HasPrefix(host, "xn--") || strings.Contains(host, ".xn--") {
		return true
	}
	if len(tld) < 2 {
		return false
	}
	for _, r := range tld {
		if r >= '0' && r <= '9' {
			return false
		}
	}
	return true
}
