// Package pagemd turns a live page's HTML into readable markdown: a
// sanitisation pass strips scripts and event handlers, then a structured
// converter produces commonmark with tables.
package pagemd

import (
	"fmt"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
)

// Converter renders page HTML as markdown. Safe for concurrent use.
type Converter struct {
	policy *bluemonday.Policy
	md     *converter.Converter
}

// New creates a Converter with the UGC sanitisation policy.
func New() *Converter {
	return &Converter{
		policy: bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

// Convert sanitises the HTML and renders it as markdown. pageURL resolves
// relative links. Empty input yields empty output, not an error.
func (c *Converter) Convert(html, pageURL string) (string, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil
	}

	clean := c.policy.Sanitize(html)

	out, err := c.md.ConvertString(clean, converter.WithDomain(pageURL))
	if err != nil {
		return "", fmt.Errorf("pagemd: convert: %w", err)
	}
	return strings.TrimSpace(out), nil
}
