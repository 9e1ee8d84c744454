// Package extract finds thumbnail references in a rendered results page.
package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"imgharvest/pkg/config"
	errs "imgharvest/pkg/errors"
)

// Candidate is an image reference not yet fetched
type Candidate struct {
	URL     string
	Caption string
}

// Extractor selects <img> elements whose src points at the thumbnail host
type Extractor struct {
	hostPattern     string
	minURLLength    int
	excludePatterns []string
}

// New creates an Extractor from the extract section of the config
func New(cfg config.ExtractConfig) *Extractor {
	return &Extractor{
		hostPattern:     cfg.HostPattern,
		minURLLength:    cfg.MinURLLength,
		excludePatterns: cfg.ExcludePatterns,
	}
}

// Extract returns candidates in document order. The caption is the alt text.
func (e *Extractor) Extract(markup string) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return nil, errs.Wrap(errs.TypeNoContent, "failed to parse page markup", err)
	}

	var out []Candidate
	doc.Find("img[src]").Each(func(_ int, sel *goquery.Selection) {
		src, _ := sel.Attr("src")
		if src == "" || !strings.Contains(src, e.hostPattern) {
			return
		}
		out = append(out, Candidate{
			URL:     src,
			Caption: strings.TrimSpace(sel.AttrOr("alt", "")),
		})
	})
	return out, nil
}

// Accept reports whether a candidate is worth fetching.
// Implausibly short URLs and URLs matching an exclude pattern are rejected.
func (e *Extractor) Accept(c Candidate) bool {
	if len(c.URL) < e.minURLLength {
		return false
	}
	for _, p := range e.excludePatterns {
		if p != "" && strings.Contains(c.URL, p) {
			return false
		}
	}
	return true
}
