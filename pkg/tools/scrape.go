package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// maxScrapeBody bounds how much of a page gets downloaded.
const maxScrapeBody = 4 << 20

// Scraper fetches a page and summarizes its title, meta description, body
// text and article structure.
type Scraper struct {
	client *http.Client
}

// NewScraper builds a Scraper with the given request timeout; zero selects
// 15 seconds.
func NewScraper(timeout time.Duration) *Scraper {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Scraper{client: &http.Client{Timeout: timeout}}
}

type scrapedArticle struct {
	Heading    string       `json:"heading"`
	Paragraphs []string     `json:"paragraphs"`
	Images     []scrapedImg `json:"images"`
}

type scrapedImg struct {
	Src string `json:"src"`
	Alt string `json:"alt"`
}

// Scrape downloads url and renders the extracted content as plain text.
func (s *Scraper) Scrape(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("scrape status %d", resp.StatusCode)
	}

	doc, err := html.Parse(io.LimitReader(resp.Body, maxScrapeBody))
	if err != nil {
		return "", err
	}

	title := textOf(findFirst(doc, "title"))
	description := metaDescription(doc)
	body := collapseSpace(textOf(findFirst(doc, "body")))
	articles := extractArticles(doc)

	articlesJSON, err := json.MarshalIndent(articles, "", "  ")
	if err != nil {
		articlesJSON = []byte("[]")
	}
	return fmt.Sprintf("Title: %s\nDescription: %s\nBody: %s\nArticles: %s",
		na(title), na(description), na(body), articlesJSON), nil
}

// findFirst returns the first element with the given tag in document
// order, or nil.
func findFirst(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findFirst(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func metaDescription(doc *html.Node) string {
	var desc string
	walk(doc, func(n *html.Node) {
		if desc != "" || n.Type != html.ElementNode || n.Data != "meta" {
			return
		}
		if attr(n, "name") == "description" {
			desc = attr(n, "content")
		}
	})
	return desc
}

func extractArticles(doc *html.Node) []scrapedArticle {
	articles := []scrapedArticle{}
	walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode || n.Data != "article" {
			return
		}
		a := scrapedArticle{Paragraphs: []string{}, Images: []scrapedImg{}}
		walk(n, func(c *html.Node) {
			if c.Type != html.ElementNode {
				return
			}
			switch c.Data {
			case "h1", "h2", "h3":
				if a.Heading == "" {
					a.Heading = collapseSpace(textOf(c))
				}
			case "p":
				if t := collapseSpace(textOf(c)); t != "" {
					a.Paragraphs = append(a.Paragraphs, t)
				}
			case "img":
				a.Images = append(a.Images, scrapedImg{Src: attr(c, "src"), Alt: attr(c, "alt")})
			}
		})
		articles = append(articles, a)
	})
	return articles
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

// textOf concatenates all text nodes under n, skipping script and style.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(c *html.Node) {
		if c.Type == html.ElementNode && (c.Data == "script" || c.Data == "style") {
			return
		}
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for gc := c.FirstChild; gc != nil; gc = gc.NextSibling {
			visit(gc)
		}
	}
	visit(n)
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
