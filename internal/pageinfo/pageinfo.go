// Package pageinfo extracts the structural facts of an HTML page that
// test generation and execution decide on: interactive elements, form
// shape, viewport and accessibility markers.
package pageinfo

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

type Button struct {
	Text string `json:"text"`
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
}

type Input struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required"`
}

type Form struct {
	ID         string `json:"id,omitempty"`
	Method     string `json:"method"`
	Action     string `json:"action,omitempty"`
	FieldCount int    `json:"fieldCount"`
}

type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

type Select struct {
	Name        string `json:"name,omitempty"`
	ID          string `json:"id,omitempty"`
	OptionCount int    `json:"optionCount"`
}

type Facts struct {
	Title         string   `json:"title"`
	Heading       string   `json:"heading,omitempty"`
	Buttons       []Button `json:"buttons"`
	Inputs        []Input  `json:"inputs"`
	Forms         []Form   `json:"forms"`
	Links         []Link   `json:"links"`
	Selects       []Select `json:"selects"`
	TextareaCount int      `json:"textareaCount"`
	RequiredCount int      `json:"requiredCount"`
	HasViewport   bool     `json:"hasViewport"`
	AriaCount     int      `json:"ariaCount"`

	raw string
}

// Extract walks the parsed tree. html.Parse recovers from malformed
// markup, so the error path is effectively unreachable for string input,
// but the signature keeps callers honest about partial pages.
func Extract(htmlContent string) (Facts, error) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return Facts{}, fmt.Errorf("parse html: %w", err)
	}

	facts := Facts{
		Buttons: []Button{},
		Inputs:  []Input{},
		Forms:   []Form{},
		Links:   []Link{},
		Selects: []Select{},
		raw:     htmlContent,
	}
	walk(doc, &facts)
	return facts, nil
}

// Fetch retrieves a live page so callers can analyze a URL instead of
// pasted markup.
func Fetch(ctx context.Context, client *http.Client, url string) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func walk(n *html.Node, facts *Facts) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if facts.Title == "" {
				facts.Title = strings.TrimSpace(text(n))
			}
		case "h1", "h2":
			if facts.Heading == "" {
				facts.Heading = strings.TrimSpace(text(n))
			}
		case "button":
			facts.Buttons = append(facts.Buttons, Button{
				Text: strings.TrimSpace(text(n)),
				Type: strings.ToLower(attrDefault(n, "type", "submit")),
				ID:   attr(n, "id"),
			})
		case "input":
			inputType := strings.ToLower(attrDefault(n, "type", "text"))
			if inputType == "submit" || inputType == "button" {
				facts.Buttons = append(facts.Buttons, Button{
					Text: attr(n, "value"),
					Type: inputType,
					ID:   attr(n, "id"),
				})
				break
			}
			required := hasAttr(n, "required")
			facts.Inputs = append(facts.Inputs, Input{
				Type:        inputType,
				Name:        attr(n, "name"),
				ID:          attr(n, "id"),
				Placeholder: attr(n, "placeholder"),
				Required:    required,
			})
			if required {
				facts.RequiredCount++
			}
		case "form":
			facts.Forms = append(facts.Forms, Form{
				ID:         attr(n, "id"),
				Method:     strings.ToUpper(attrDefault(n, "method", "GET")),
				Action:     attr(n, "action"),
				FieldCount: countFields(n),
			})
		case "a":
			facts.Links = append(facts.Links, Link{
				Text: strings.TrimSpace(text(n)),
				Href: attr(n, "href"),
			})
		case "select":
			facts.Selects = append(facts.Selects, Select{
				Name:        attr(n, "name"),
				ID:          attr(n, "id"),
				OptionCount: countElements(n, "option"),
			})
			if hasAttr(n, "required") {
				facts.RequiredCount++
			}
		case "textarea":
			facts.TextareaCount++
			if hasAttr(n, "required") {
				facts.RequiredCount++
			}
		case "label":
			facts.AriaCount++
		case "img":
			if attr(n, "alt") != "" {
				facts.AriaCount++
			}
		case "meta":
			if strings.EqualFold(attr(n, "name"), "viewport") {
				facts.HasViewport = true
			}
		}
		if attr(n, "aria-label") != "" {
			facts.AriaCount++
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, facts)
	}
}

// HasSubmitControl reports whether any form could actually be submitted.
func (f Facts) HasSubmitControl() bool {
	for _, b := range f.Buttons {
		if b.Type == "submit" {
			return true
		}
	}
	return false
}

// HasRealLink reports whether at least one anchor points somewhere.
func (f Facts) HasRealLink() bool {
	for _, l := range f.Links {
		if l.Href != "" && l.Href != "#" {
			return true
		}
	}
	return false
}

func (f Facts) HasValidationMarkers() bool {
	if f.RequiredCount > 0 {
		return true
	}
	lower := strings.ToLower(f.raw)
	return strings.Contains(lower, "pattern=") || strings.Contains(lower, "minlength")
}

func (f Facts) HasSecurityMarkers() bool {
	lower := strings.ToLower(f.raw)
	for _, marker := range []string{"csrf", "_token", "secure", "https"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (f Facts) HasErrorMarkers() bool {
	lower := strings.ToLower(f.raw)
	if strings.Contains(lower, "onerror") || strings.Contains(lower, "try") && strings.Contains(lower, "catch") {
		return true
	}
	return f.RequiredCount > 0
}

// Summary renders a short element inventory for prompts and responses.
func (f Facts) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "buttons: %d, inputs: %d, forms: %d, links: %d, selects: %d, textareas: %d",
		len(f.Buttons), len(f.Inputs), len(f.Forms), len(f.Links), len(f.Selects), f.TextareaCount)
	if f.RequiredCount > 0 {
		fmt.Fprintf(&b, ", required fields: %d", f.RequiredCount)
	}
	if f.HasViewport {
		b.WriteString(", responsive viewport meta present")
	}
	return b.String()
}

func text(n *html.Node) string {
	var b strings.Builder
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
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

func attrDefault(n *html.Node, key, fallback string) string {
	if v := attr(n, key); v != "" {
		return v
	}
	return fallback
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func countFields(form *html.Node) int {
	count := 0
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.ElementNode {
			switch node.Data {
			case "input", "select", "textarea":
				count++
			}
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(form)
	return count
}

func countElements(n *html.Node, name string) int {
	count := 0
	var visit func(*html.Node)
	visit = func(node *html.Node) {
		if node.Type == html.ElementNode && node.Data == name {
			count++
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(n)
	return count
}
