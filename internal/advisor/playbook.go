// Package advisor – playbook loading.
//
// The playbook is a Markdown file of "## Topic" sections; each section body
// becomes one Entry. Blank sections are dropped. When the file is missing or
// yields no entries, a small built-in playbook keeps the assistant useful.
package advisor

import (
	"bufio"
	"bytes"
	"os"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

// folder applies full Unicode case folding, so queries match playbook text
// regardless of case conventions ("SEO" vs "seo", "İ" vs "i").
var folder = cases.Fold()

// tokenize case-folds s and returns its word set minus stop-words.
func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(folder.String(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if stop != nil {
			if _, skip := stop[w]; skip {
				continue
			}
		}
		out[w] = struct{}{}
	}
	return out
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// LoadPlaybook reads the Markdown playbook at path and returns its entries.
// A read error is returned alongside the built-in fallback entries so the
// caller can log the problem and still serve answers.
func LoadPlaybook(path string) ([]Entry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return BuiltinPlaybook(), err
	}
	entries := ParsePlaybook(b)
	if len(entries) == 0 {
		return BuiltinPlaybook(), nil
	}
	return entries, nil
}

// ParsePlaybook splits Markdown into entries on "## " headings. Text before
// the first heading is ignored.
func ParsePlaybook(b []byte) []Entry {
	sc := bufio.NewScanner(bytes.NewReader(b))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var entries []Entry
	var topic string
	var body strings.Builder

	flush := func() {
		if topic == "" {
			return
		}
		advice := strings.TrimSpace(body.String())
		if advice != "" {
			entries = append(entries, Entry{Topic: topic, Advice: advice})
		}
		body.Reset()
	}

	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "## ") {
			flush()
			topic = strings.TrimSpace(strings.TrimPrefix(line, "## "))
			continue
		}
		if topic != "" {
			body.WriteString(line)
			body.WriteByte('\n')
		}
	}
	flush()
	return entries
}

// BuiltinPlaybook returns the embedded fallback entries covering the issues
// the analysis engine reports most often.
func BuiltinPlaybook() []Entry {
	return []Entry{
		{
			Topic: "Slow checkout",
			Advice: "Reduce checkout steps to three or fewer, enable a guest " +
				"checkout path, and defer account creation until after purchase. " +
				"Most abandoned carts trace back to forced registration and slow " +
				"payment pages.",
		},
		{
			Topic: "Page speed",
			Advice: "Compress hero images, lazy-load below-the-fold assets, and " +
				"serve static content from a CDN. Aim for a Largest Contentful " +
				"Paint under 2.5 seconds on mobile.",
		},
		{
			Topic: "Wasted ad spend",
			Advice: "Add negative keywords for irrelevant queries, pause ad " +
				"groups with no conversions in the last 30 days, and align each " +
				"ad's landing page with its search intent before raising budgets.",
		},
		{
			Topic: "Missing meta descriptions",
			Advice: "Write unique meta descriptions of 140-160 characters for " +
				"every indexed page, leading with the page's primary keyword and " +
				"a concrete reason to click.",
		},
		{
			Topic: "Mobile usability",
			Advice: "Make tap targets at least 44px, keep forms to a single " +
				"column, and test the purchase flow on a mid-range phone over 4G, " +
				"not on office Wi-Fi.",
		},
	}
}
