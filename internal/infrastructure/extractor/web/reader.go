package web

import (
	"bytes"
	"context"
	"fmt"
	nurl "net/url"
	"regexp"
	"strings"

	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/kirillkom/brand-soul/internal/core/domain"
)

const maxTextLength = 60000

var fallbackURL = &nurl.URL{Scheme: "https", Host: "brand.invalid", Path: "/"}

// Reader turns a saved HTML page into prompt-ready text: page metadata that
// carries brand signals first, then the readable main content.
type Reader struct{}

func NewReader() *Reader {
	return &Reader{}
}

type pageMeta struct {
	Title       string
	Description string
	ThemeColor  string
	SiteName    string
	OGTitle     string
	OGImageAlt  string
	Keywords    string
}

func (r *Reader) Read(_ context.Context, artifact *domain.Artifact, raw []byte) (string, error) {
	doc, err := html.Parse(bytes.NewReader(raw))
	if err != nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "parse html", err)
	}
	meta := collectMeta(doc)

	pageURL := fallbackURL
	if artifact.SourceURL != "" {
		if parsed, err := nurl.Parse(artifact.SourceURL); err == nil && parsed.Host != "" {
			pageURL = parsed
		}
	}

	body := ""
	article, err := readability.FromReader(bytes.NewReader(raw), pageURL)
	if err == nil {
		body = normalizeText(article.TextContent)
		if meta.Title == "" {
			meta.Title = strings.TrimSpace(article.Title)
		}
	}
	if body == "" {
		body = normalizeText(visibleText(doc))
	}
	if body == "" && meta == (pageMeta{}) {
		return "", domain.WrapError(domain.ErrInvalidInput, "read html", fmt.Errorf("page has no readable text"))
	}

	if runes := []rune(body); len(runes) > maxTextLength {
		body = string(runes[:maxTextLength])
	}
	return renderPage(meta, body), nil
}

func renderPage(meta pageMeta, body string) string {
	var b strings.Builder
	line := func(label, value string) {
		if value != "" {
			b.WriteString(label)
			b.WriteString(": ")
			b.WriteString(value)
			b.WriteString("\n")
		}
	}
	line("Title", meta.Title)
	line("Site", meta.SiteName)
	if meta.OGTitle != meta.Title {
		line("Share title", meta.OGTitle)
	}
	line("Description", meta.Description)
	line("Keywords", meta.Keywords)
	line("Theme color", meta.ThemeColor)
	line("Share image", meta.OGImageAlt)
	if b.Len() > 0 && body != "" {
		b.WriteString("\n")
	}
	b.WriteString(body)
	return strings.TrimSpace(b.String())
}

func collectMeta(doc *html.Node) pageMeta {
	var meta pageMeta
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if meta.Title == "" && n.FirstChild != nil {
					meta.Title = strings.TrimSpace(n.FirstChild.Data)
				}
			case atom.Meta:
				key := strings.ToLower(attr(n, "name"))
				if key == "" {
					key = strings.ToLower(attr(n, "property"))
				}
				content := strings.TrimSpace(attr(n, "content"))
				switch key {
				case "description":
					meta.Description = content
				case "og:description":
					if meta.Description == "" {
						meta.Description = content
					}
				case "theme-color":
					meta.ThemeColor = content
				case "og:site_name":
					meta.SiteName = content
				case "og:title":
					meta.OGTitle = content
				case "og:image:alt":
					meta.OGImageAlt = content
				case "keywords":
					meta.Keywords = content
				}
			case atom.Script, atom.Style, atom.Noscript:
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return meta
}

func visibleText(doc *html.Node) string {
	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Template:
				return
			case atom.P, atom.Div, atom.Br, atom.Li, atom.H1, atom.H2, atom.H3, atom.H4, atom.Section, atom.Article:
				b.WriteString("\n")
			}
		case html.TextNode:
			b.WriteString(n.Data)
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

var (
	multiSpace   = regexp.MustCompile(`[ \t]+`)
	spaceNewline = regexp.MustCompile(` ?\n ?`)
	multiNewline = regexp.MustCompile(`\n{3,}`)
)

func normalizeText(s string) string {
	s = strings.TrimSpace(s)
	s = multiSpace.ReplaceAllString(s, " ")
	s = spaceNewline.ReplaceAllString(s, "\n")
	s = multiNewline.ReplaceAllString(s, "\n\n")
	return s
}
