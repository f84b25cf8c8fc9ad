package packs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go-autoagent/internal/pack"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/go-shiori/go-readability"
	"golang.org/x/net/html"
)

const (
	WebsiteTextPack = "get_website_text_content"
	HTMLContentPack = "get_html_content"

	maxBodyBytes = 4 << 20
)

var (
	errBadURL        = errors.New("url must be absolute http or https")
	excessiveLinesRe = regexp.MustCompile(`\n{3,}`)
	noiseTags        = map[string]bool{
		"script": true, "style": true, "noscript": true, "iframe": true,
		"object": true, "embed": true, "svg": true, "template": true,
	}
)

var urlSchema = pack.Object([]string{"url"}, map[string]pack.Property{
	"url": pack.StringProp("The absolute URL of the page"),
})

type fetcher struct {
	client    *http.Client
	converter *md.Converter
	limit     int
}

func newFetcher(client *http.Client, limit int) *fetcher {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &fetcher{client: client, converter: converter, limit: limit}
}

func (f *fetcher) get(ctx context.Context, raw string) (*url.URL, []byte, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, nil, fmt.Errorf("%w: %q", errBadURL, raw)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("User-Agent", "go-autoagent/1.0")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("get: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, nil, fmt.Errorf("get: status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, nil, fmt.Errorf("read body: %w", err)
	}
	return u, body, nil
}

// text extracts the readable article, falling back to markdown of the cleaned body.
func (f *fetcher) text(u *url.URL, body []byte) (title, text string, err error) {
	article, rerr := readability.FromReader(bytes.NewReader(body), u)
	if rerr == nil && strings.TrimSpace(article.TextContent) != "" {
		return strings.TrimSpace(article.Title), cleanText(article.TextContent), nil
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	title = documentTitle(doc)
	stripNoise(doc)
	markdown, err := f.converter.ConvertString(render(doc))
	if err != nil {
		return "", "", fmt.Errorf("convert: %w", err)
	}
	return title, cleanText(markdown), nil
}

func websiteTextPack(f *fetcher) pack.Pack {
	return pack.Func{
		Desc: pack.Descriptor{
			Name:        WebsiteTextPack,
			Description: "Extracts the readable text content of a web page.",
			InputSchema: urlSchema,
			Categories:  []string{CategoryWeb, CategoryInformation},
			ReadOnly:    true,
		},
		Fn: func(ctx context.Context, in pack.Invocation) (pack.Output, error) {
			u, body, err := f.get(ctx, in.String("url"))
			if err != nil {
				return pack.Output{}, pack.Errorf(WebsiteTextPack, err, "cannot fetch page")
			}
			title, text, err := f.text(u, body)
			if err != nil {
				return pack.Output{}, pack.Errorf(WebsiteTextPack, err, "cannot extract text")
			}
			if text == "" {
				return pack.Output{}, pack.Errorf(WebsiteTextPack, nil, "page %s has no readable text", u)
			}
			return pack.Output{
				Text: truncate(text, f.limit),
				Data: map[string]any{"url": u.String(), "title": title},
			}, nil
		},
	}
}

func htmlContentPack(f *fetcher) pack.Pack {
	return pack.Func{
		Desc: pack.Descriptor{
			Name:        HTMLContentPack,
			Description: "Retrieves the HTML of a web page without scripts and styles. Useful when the page structure matters.",
			InputSchema: urlSchema,
			Categories:  []string{CategoryWeb},
			ReadOnly:    true,
		},
		Fn: func(ctx context.Context, in pack.Invocation) (pack.Output, error) {
			u, body, err := f.get(ctx, in.String("url"))
			if err != nil {
				return pack.Output{}, pack.Errorf(HTMLContentPack, err, "cannot fetch page")
			}
			doc, err := html.Parse(bytes.NewReader(body))
			if err != nil {
				return pack.Output{}, pack.Errorf(HTMLContentPack, err, "cannot parse page")
			}
			stripNoise(doc)
			return pack.Output{
				Text: truncate(render(doc), f.limit),
				Data: map[string]any{"url": u.String(), "title": documentTitle(doc)},
			}, nil
		},
	}
}

func documentTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if title := documentTitle(c); title != "" {
			return title
		}
	}
	return ""
}

func stripNoise(n *html.Node) {
	var remove []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.CommentNode || (c.Type == html.ElementNode && noiseTags[c.Data]) {
			remove = append(remove, c)
			continue
		}
		stripNoise(c)
	}
	for _, c := range remove {
		n.RemoveChild(c)
	}
}

func render(n *html.Node) string {
	var sb strings.Builder
	_ = html.Render(&sb, n)
	return sb.String()
}

func cleanText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(excessiveLinesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}
