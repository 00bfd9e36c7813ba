package resolver

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

// Classify inspects a submission fragment and decides what it offers.
// Priority: HD video, standard video, slideshow, unresolved.
// Classify is pure; equal inputs give deeply equal results.
func Classify(p Patterns, html string) domain.ResolutionResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return domain.Unresolved(nil)
	}

	var candidates []domain.CandidateLink
	std, hasStd := MatchStandardAnchor(doc, p)

	if hd := MatchHDAnchor(doc, p); hd != nil {
		var fallback *domain.CandidateLink
		if hasStd {
			f := std
			fallback = &f
		}
		label := anchorLabel(hd)

		if target, ok := MatchHDTarget(hd, p); ok {
			if tok, ok := MatchSecondaryToken(doc, p); ok {
				candidates = append(candidates, domain.CandidateLink{Label: label, URL: target, Kind: domain.LinkVideoHD})
				if hasStd {
					candidates = append(candidates, std)
				}
				return domain.NewVideoResult(domain.VideoResult{
					Quality:    domain.QualityHDPending,
					Escalation: &domain.Escalation{Target: target, SecondaryToken: tok},
					Fallback:   fallback,
				}, candidates)
			}
		}

		if href, ok := hd.Attr("href"); ok && usableHref(href) {
			candidates = append(candidates, domain.CandidateLink{Label: label, URL: href, Kind: domain.LinkVideoHD})
			if hasStd {
				candidates = append(candidates, std)
			}
			return domain.NewVideoResult(domain.VideoResult{
				URL:      href,
				Quality:  domain.QualityHD,
				Fallback: fallback,
			}, candidates)
		}
	}

	if hasStd {
		candidates = append(candidates, std)
		return domain.NewVideoResult(domain.VideoResult{
			URL:     std.URL,
			Quality: domain.QualityStandard,
		}, candidates)
	}

	seen := make(map[string]bool)
	slides := MatchDownloadImages(doc, p, seen)
	if len(slides) == 0 {
		slides = MatchSlideImages(doc, p, seen)
	}
	if len(slides) > 0 {
		return domain.NewSlideshowResult(slides, slides)
	}

	return domain.Unresolved(nil)
}

// Classify applies the client's flavor patterns to a payload and attaches
// convert metadata when the flavor exposes it.
func (c *Client) Classify(p *Payload) domain.ResolutionResult {
	result := Classify(c.flavor.Patterns, p.HTML)
	if c.flavor.ExtractConvert {
		if meta := ExtractConvert(p.HTML); !meta.IsZero() {
			result.Convert = &meta
		}
	}
	c.logger.Debug("payload classified",
		"kind", result.Kind,
		"candidates", len(result.Candidates),
	)
	return result
}
