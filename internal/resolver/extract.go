package resolver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// statusPayload covers both fxtwitter and vxtwitter response shapes.
type statusPayload struct {
	Text  string `json:"text"`
	Tweet *struct {
		Text string `json:"text"`
	} `json:"tweet"`
}

func parseFxTwitter(body []byte) (string, error) {
	var p statusPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("decode fxtwitter: %w", err)
	}
	if p.Tweet == nil {
		return "", nil
	}
	return p.Tweet.Text, nil
}

func parseVxTwitter(body []byte) (string, error) {
	var p statusPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("decode vxtwitter: %w", err)
	}
	if p.Tweet != nil && p.Tweet.Text != "" {
		return p.Tweet.Text, nil
	}
	return p.Text, nil
}

func parseOEmbed(body []byte) (string, error) {
	var p struct {
		HTML string `json:"html"`
	}
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("decode oembed: %w", err)
	}
	if strings.TrimSpace(p.HTML) == "" {
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return "", fmt.Errorf("parse oembed html: %w", err)
	}
	return visibleText(doc.Selection), nil
}

// parseNitter prefers og:description, then the tweet body, then the article.
func parseNitter(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse nitter html: %w", err)
	}
	if content, ok := doc.Find(`meta[property="og:description"]`).First().Attr("content"); ok {
		if t := strings.TrimSpace(content); t != "" {
			return t, nil
		}
	}
	main := doc.Find("div.tweet-content").First()
	if main.Length() == 0 {
		main = doc.Find("article").First()
	}
	if main.Length() == 0 {
		return "", nil
	}
	return visibleText(main), nil
}

// visibleText joins every non-blank text node with a single space.
func visibleText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			if t := strings.Join(strings.Fields(n.Data), " "); t != "" {
				parts = append(parts, t)
			}
			return
		case html.ElementNode:
			if n.Data == "script" || n.Data == "style" {
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return strings.Join(parts, " ")
}
