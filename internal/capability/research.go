package capability

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/chromedp"
	readability "github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const researchUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Research looks up a topic on the open web: search, fetch the top
// results, extract readable text, and summarize it for the student.
type Research struct {
	Generator *Generator
	Client    *http.Client
	// UseBrowser enables a headless-browser fallback for pages that render
	// their content with JavaScript.
	UseBrowser bool
	SearchURL  string
	MaxResults int
}

func NewResearch(gen *Generator, useBrowser bool) *Research {
	return &Research{
		Generator:  gen,
		Client:     &http.Client{Timeout: 30 * time.Second},
		UseBrowser: useBrowser,
		SearchURL:  "https://html.duckduckgo.com/html/",
		MaxResults: 3,
	}
}

func (r *Research) Descriptor() Descriptor {
	return Descriptor{
		Name:        NameResearch,
		Description: "Research a topic on the web and summarize the findings with sources.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"topic": map[string]any{
					"type":        "string",
					"description": "The topic or question to research",
				},
				"url": map[string]any{
					"type":        "string",
					"description": "A specific page to read instead of searching",
				},
			},
			"required": []string{"topic"},
		},
	}
}

func (r *Research) Execute(ctx context.Context, inv Invocation) (string, error) {
	topic := strings.TrimSpace(inv.Param("topic"))
	if topic == "" {
		return "", Permanent(NameResearch, fmt.Errorf("topic is required"))
	}

	var links []string
	if direct := inv.Param("url"); direct != "" {
		links = []string{direct}
	} else {
		found, err := r.search(ctx, topic)
		if err != nil {
			return "", err
		}
		links = found
	}
	if len(links) == 0 {
		return "", Transient(NameResearch, fmt.Errorf("no search results for %q", topic))
	}

	var sb strings.Builder
	fetched := 0
	for _, link := range links {
		if fetched >= r.MaxResults {
			break
		}
		title, text, err := r.fetch(ctx, link)
		if err != nil {
			continue
		}
		fetched++
		fmt.Fprintf(&sb, "SOURCE: %s (%s)\n%s\n\n", title, link, truncate(text, 8000))
	}
	if fetched == 0 {
		return "", Transient(NameResearch, fmt.Errorf("could not read any result page for %q", topic))
	}

	if r.Generator == nil {
		return sb.String(), nil
	}

	prompt := "Summarize the research findings for a student. Lead with a short answer, " +
		"then the key points, and cite each source URL you drew from."
	summary, err := r.Generator.Generate(ctx, prompt,
		fmt.Sprintf("Topic: %s\n\n%s", topic, sb.String()))
	if err != nil {
		return "", err
	}
	return summary, nil
}

// search queries the HTML search endpoint and returns result links.
func (r *Research) search(ctx context.Context, topic string) ([]string, error) {
	form := url.Values{"q": {topic}}
	req, err := http.NewRequestWithContext(ctx, "POST", r.SearchURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, Permanent(NameResearch, err)
	}
	req.Header.Set("User-Agent", researchUserAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.Client.Do(req)
	if err != nil {
		return nil, Transient(NameResearch, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, Transient(NameResearch, fmt.Errorf("search returned status %d", resp.StatusCode))
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, Transient(NameResearch, err)
	}

	var links []string
	doc.Find("a.result__a").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		if link := resolveRedirect(href); link != "" {
			links = append(links, link)
		}
	})
	return links, nil
}

// resolveRedirect unwraps the search engine's /l/?uddg= redirect links.
func resolveRedirect(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}

// fetch retrieves a page and extracts its readable text. Pages that come
// back empty fall through to the headless browser when it is enabled.
func (r *Research) fetch(ctx context.Context, link string) (title, text string, err error) {
	req, err := http.NewRequestWithContext(ctx, "GET", link, nil)
	if err != nil {
		return "", "", err
	}
	req.Header.Set("User-Agent", researchUserAgent)

	resp, err := r.Client.Do(req)
	if err != nil {
		return r.fetchRendered(ctx, link)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("status %d", resp.StatusCode)
	}

	parsed, err := url.Parse(link)
	if err != nil {
		return "", "", err
	}
	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return r.fetchRendered(ctx, link)
	}

	sanitized := bluemonday.StrictPolicy().Sanitize(article.TextContent)
	if strings.TrimSpace(sanitized) == "" {
		return r.fetchRendered(ctx, link)
	}
	return article.Title, sanitized, nil
}

// fetchRendered drives a one-shot headless browser for JS-heavy pages.
func (r *Research) fetchRendered(ctx context.Context, link string) (string, string, error) {
	if !r.UseBrowser {
		return "", "", fmt.Errorf("no readable content at %s", link)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", true),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	var title, body string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(link),
		chromedp.Sleep(2*time.Second),
		chromedp.Title(&title),
		chromedp.Text("body", &body, chromedp.ByQuery),
	)
	if err != nil {
		return "", "", err
	}
	return title, bluemonday.StrictPolicy().Sanitize(body), nil
}
