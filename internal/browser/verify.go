package browser

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
)

// Verification is selector-driven: the tables below describe what a healthy
// destination page looks like and what a half-loaded or broken one exposes.
var (
	heroSelectors = []string{
		`[data-testid="hero-title"]`,
		`h1`,
		`h2.spectrum-Heading`,
	}

	brandSelectors = []string{
		`[class*="workfront"]`,
		`[data-app-id]`,
		`#shell-header`,
		`[class*="spectrum-Shell"]`,
	}

	loadingSelectors = []string{
		`.loading`,
		`[data-loading="true"]`,
		`.spinner`,
		`[class*="skeleton"]`,
	}

	errorSelectors = []string{
		`.error-page`,
		`[data-testid="error"]`,
		`[class*="error-boundary"]`,
	}

	titleKeywords = []string{"workfront", "adobe", "experience"}
)

// verification is the outcome of inspecting the settled destination page.
type verification struct {
	Verified bool
	Signals  []string
	Problems []string
}

// verifyDestinationContent decides whether the document looks like a fully
// rendered, authenticated destination page. It is advisory: the driver
// records the outcome but a failed verification does not abort persistence.
func verifyDestinationContent(html, title string, logger *zap.Logger) verification {
	var v verification

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		v.Problems = append(v.Problems, "document not parseable: "+err.Error())
		return v
	}

	heroOK := false
	for _, sel := range heroSelectors {
		text := strings.TrimSpace(doc.Find(sel).First().Text())
		if text != "" {
			heroOK = true
			v.Signals = append(v.Signals, "hero title present: "+text)
			break
		}
	}
	if !heroOK {
		v.Problems = append(v.Problems, "no hero title found")
	}

	brandOK := false
	for _, sel := range brandSelectors {
		if doc.Find(sel).Length() > 0 {
			brandOK = true
			v.Signals = append(v.Signals, "branding element present: "+sel)
			break
		}
	}
	if !brandOK {
		v.Problems = append(v.Problems, "no destination branding found")
	}

	loadingClean := true
	for _, sel := range loadingSelectors {
		if doc.Find(sel).Length() > 0 {
			loadingClean = false
			v.Problems = append(v.Problems, "loading indicator still present: "+sel)
			break
		}
	}

	errorClean := true
	for _, sel := range errorSelectors {
		if doc.Find(sel).Length() > 0 {
			errorClean = false
			v.Problems = append(v.Problems, "error marker present: "+sel)
			break
		}
	}

	titleOK := false
	lowerTitle := strings.ToLower(title)
	for _, kw := range titleKeywords {
		if strings.Contains(lowerTitle, kw) {
			titleOK = true
			v.Signals = append(v.Signals, "title keyword present: "+kw)
			break
		}
	}
	if !titleOK {
		v.Problems = append(v.Problems, "title lacks product keywords: "+title)
	}

	// A page passes when something authenticated rendered (hero or branding),
	// the title matches the product, and nothing says loading or error.
	v.Verified = (heroOK || brandOK) && titleOK && loadingClean && errorClean

	logger.Debug("Destination content verification",
		zap.Bool("verified", v.Verified),
		zap.Strings("signals", v.Signals),
		zap.Strings("problems", v.Problems))
	return v
}
