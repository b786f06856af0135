// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ListLinks fetches the HTML page at index and returns the absolute
// URLs of every anchor whose path ends in suffix, compared
// case-insensitively. Relative links are resolved against index.
// Duplicates are dropped; page order is kept. An empty suffix matches
// every link.
func (d *Downloader) ListLinks(ctx context.Context, index *url.URL, suffix string) ([]*url.URL, error) {
	response, err := d.get(ctx, index)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	document, err := goquery.NewDocumentFromReader(io.LimitReader(response.Body, maxIndexBytes))
	if err != nil {
		return nil, fmt.Errorf("download: parsing index %s: %w", index, err)
	}

	suffix = strings.ToLower(suffix)
	seen := make(map[string]bool)
	var links []*url.URL
	document.Find("a[href]").Each(func(_ int, anchor *goquery.Selection) {
		href, _ := anchor.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		reference, err := url.Parse(href)
		if err != nil {
			d.logger.Debug("skipping unparseable link", "href", href, "error", err)
			return
		}
		resolved := index.ResolveReference(reference)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		if !strings.HasSuffix(strings.ToLower(resolved.Path), suffix) {
			return
		}
		resolved.Fragment = ""
		key := resolved.String()
		if seen[key] {
			return
		}
		seen[key] = true
		links = append(links, resolved)
	})

	d.logger.Debug("index scraped", "index", index.String(), "suffix", suffix, "links", len(links))
	return links, nil
}
