package export

import (
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/yonasatinafu/portfolio-bot/internal/textutil"
)

const (
	maxExportTextChars = 32000
	maxTitleChars      = 300
)

// routeFromFilename maps a rendered page filename to its site route:
// index.html serves the root, 404.html keeps its error route, anything
// else becomes /<stem>.
func routeFromFilename(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	switch stem {
	case "index":
		return "/"
	case "404":
		return "/404"
	default:
		return "/" + stem
	}
}

// extractVisibleText pulls the title and readable text out of a rendered
// HTML document. Content comes from <main> when present, else <body>;
// script, style, and noscript subtrees are dropped.
func extractVisibleText(doc *goquery.Document) (title, text string) {
	title = textutil.Normalize(doc.Find("title").First().Text(), maxTitleChars)
	if title == "" {
		title = "Untitled"
	}

	content := doc.Find("main").First()
	if content.Length() == 0 {
		content = doc.Find("body").First()
	}
	if content.Length() == 0 {
		content = doc.Selection
	}
	content.Find("script, style, noscript").Remove()

	text = textutil.Normalize(content.Text(), maxExportTextChars)
	return title, text
}
