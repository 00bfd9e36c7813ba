package resolver

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

// Each matcher below recognises one markup pattern and is independent of the
// others, so a change in the resolver's markup shows up as one failing matcher.

// MatchHDAnchor returns the first HD download anchor, or nil.
func MatchHDAnchor(doc *goquery.Document, p Patterns) *goquery.Selection {
	if p.HDAnchor == "" {
		return nil
	}
	var found *goquery.Selection
	doc.Find(p.HDAnchor).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if isHDAnchor(s, p) {
			found = s
			return false
		}
		return true
	})
	return found
}

// MatchHDTarget returns the escalation target carried by an HD anchor.
func MatchHDTarget(hd *goquery.Selection, p Patterns) (string, bool) {
	if hd == nil || p.HDTargetAttr == "" {
		return "", false
	}
	target, ok := hd.Attr(p.HDTargetAttr)
	target = strings.TrimSpace(target)
	return target, ok && target != ""
}

// MatchSecondaryToken returns the value of the first secondary-token input.
func MatchSecondaryToken(doc *goquery.Document, p Patterns) (domain.Token, bool) {
	if p.SecondaryToken == "" {
		return domain.Token{}, false
	}
	value, ok := doc.Find(p.SecondaryToken).First().Attr("value")
	if !ok || value == "" {
		return domain.Token{}, false
	}
	return domain.Token{Kind: domain.TokenSecondary, Value: value}, true
}

// MatchStandardAnchor returns the first watermark-free standard video link.
// The href is returned exactly as it appears in the markup.
func MatchStandardAnchor(doc *goquery.Document, p Patterns) (domain.CandidateLink, bool) {
	if link, ok := firstAnchor(doc, p.StandardAnchor, p, func(s *goquery.Selection) bool {
		return p.StandardLabel == nil || p.StandardLabel.MatchString(anchorLabel(s))
	}); ok {
		return link, true
	}
	if p.StandardFallbackAnchor == "" || p.StandardFallbackText == "" {
		return domain.CandidateLink{}, false
	}
	return firstAnchor(doc, p.StandardFallbackAnchor, p, func(s *goquery.Selection) bool {
		return strings.Contains(s.Text(), p.StandardFallbackText)
	})
}

func firstAnchor(doc *goquery.Document, selector string, p Patterns, accept func(*goquery.Selection) bool) (domain.CandidateLink, bool) {
	if selector == "" {
		return domain.CandidateLink{}, false
	}
	var link domain.CandidateLink
	var found bool
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if isHDAnchor(s, p) || !accept(s) {
			return true
		}
		href, ok := s.Attr("href")
		if !ok || !usableHref(href) {
			return true
		}
		link = domain.CandidateLink{Label: anchorLabel(s), URL: href, Kind: domain.LinkVideoStandard}
		found = true
		return false
	})
	return link, found
}

// MatchDownloadImages returns generic download anchors that point at images,
// in document order, skipping URLs already in seen.
func MatchDownloadImages(doc *goquery.Document, p Patterns, seen map[string]bool) []domain.CandidateLink {
	var links []domain.CandidateLink
	if p.DownloadAnchor == "" {
		return links
	}
	doc.Find(p.DownloadAnchor).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || !usableHref(href) || seen[href] {
			return
		}
		label := anchorLabel(s)
		if isAudioAnchor(s, label, p) || !isImageLink(href, label, p) {
			return
		}
		seen[href] = true
		links = append(links, domain.CandidateLink{Label: label, URL: href, Kind: domain.LinkImage})
	})
	return links
}

// MatchSlideImages returns the images inside the slide-list container, in
// document order, excluding author avatars and URLs already in seen.
func MatchSlideImages(doc *goquery.Document, p Patterns, seen map[string]bool) []domain.CandidateLink {
	var links []domain.CandidateLink
	if p.SlideImages == "" {
		return links
	}
	doc.Find(p.SlideImages).Each(func(_ int, s *goquery.Selection) {
		if isAvatar(s, p) {
			return
		}
		src := imageSource(s, p)
		if src == "" || seen[src] {
			return
		}
		seen[src] = true
		label, _ := s.Attr("alt")
		links = append(links, domain.CandidateLink{Label: strings.TrimSpace(label), URL: src, Kind: domain.LinkImage})
	})
	return links
}

func isHDAnchor(s *goquery.Selection, p Patterns) bool {
	if p.HDAnchor == "" || !s.Is(p.HDAnchor) {
		return false
	}
	return p.HDLabel == nil || p.HDLabel.MatchString(anchorLabel(s))
}

func anchorLabel(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}

// usableHref rejects placeholders such as "#" and javascript: links.
func usableHref(href string) bool {
	h := strings.TrimSpace(href)
	if h == "" || strings.HasPrefix(h, "#") {
		return false
	}
	return !strings.HasPrefix(strings.ToLower(h), "javascript:")
}

var nonImageExtensions = map[string]bool{
	".mp4": true, ".mp3": true, ".m4a": true, ".webm": true, ".mov": true, ".aac": true,
}

func isImageLink(href, label string, p Patterns) bool {
	u, err := url.Parse(href)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if nonImageExtensions[ext] {
		return false
	}
	for _, e := range p.ImageExtensions {
		if ext == e {
			return true
		}
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range p.ImageHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return p.ImageLabel != nil && p.ImageLabel.MatchString(label)
}

func isAudioAnchor(s *goquery.Selection, label string, p Patterns) bool {
	class, _ := s.Attr("class")
	text := strings.ToLower(class + " " + label)
	for _, m := range p.AudioMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

func isAvatar(s *goquery.Selection, p Patterns) bool {
	if p.AvatarScope != "" && s.Closest(p.AvatarScope).Length() > 0 {
		return true
	}
	class, _ := s.Attr("class")
	alt, _ := s.Attr("alt")
	text := strings.ToLower(class + " " + alt)
	for _, m := range p.AvatarMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// imageSource prefers a real src and falls back to the lazy-load attributes.
func imageSource(s *goquery.Selection, p Patterns) string {
	if src, ok := s.Attr("src"); ok {
		src = strings.TrimSpace(src)
		if src != "" && !strings.HasPrefix(src, "data:") {
			return src
		}
	}
	for _, attr := range p.LazyAttrs {
		if v, ok := s.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
