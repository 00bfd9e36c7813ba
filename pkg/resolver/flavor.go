package resolver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

// PayloadFormat is the shape of the submission response.
type PayloadFormat string

const (
	// PayloadHTML means the response body is the HTML fragment itself.
	PayloadHTML PayloadFormat = "html"
	// PayloadJSONEnvelope means the fragment is wrapped in {"status": ..., "data": ...}.
	PayloadJSONEnvelope PayloadFormat = "json"
)

// Patterns holds the markup matchers the classifier applies, in priority order.
type Patterns struct {
	// HDAnchor selects the HD download anchor.
	HDAnchor string
	// HDLabel, when set, additionally requires the anchor text to match.
	HDLabel *regexp.Regexp
	// HDTargetAttr names the attribute holding the escalation target.
	HDTargetAttr string
	// SecondaryToken selects the input carrying the escalation token.
	SecondaryToken string

	// StandardAnchor selects the watermark-free standard anchor.
	StandardAnchor string
	// StandardFallbackAnchor plus StandardFallbackText are tried when StandardAnchor finds nothing.
	StandardFallbackAnchor string
	StandardFallbackText   string
	// StandardLabel, when set, requires the standard anchor text to match.
	StandardLabel *regexp.Regexp

	// DownloadAnchor selects generic download anchors considered for slideshows.
	DownloadAnchor string
	ImageExtensions []string
	ImageHosts      []string
	ImageLabel      *regexp.Regexp
	// AudioMarkers are substrings of an anchor's class or label that mark it as
	// the soundtrack download; such anchors are never slides.
	AudioMarkers []string

	// SlideImages selects image elements in the slide-list container.
	SlideImages string
	LazyAttrs   []string
	// AvatarMarkers are substrings of class or alt that identify an author avatar.
	AvatarMarkers []string
	AvatarScope   string
}

// EscalationRules describes how the resolver answers an HD request.
type EscalationRules struct {
	RedirectHeaders  []string
	BinaryTypes      []string
	RejectionPhrases []string
}

// Flavor bundles the request and response contract of one resolver.
// Headers may reference {origin} and {landing}; they expand at request time.
type Flavor struct {
	Name        string
	Origin      string
	LandingPath string
	SubmitPath  string
	Format      PayloadFormat

	ReferenceField string
	LocaleField    string
	TokenField     string
	Locale         string

	// TokenPattern extracts the primary token from the landing page.
	// A nil pattern means the resolver needs no primary token.
	TokenPattern *regexp.Regexp

	Headers    map[string]string
	Patterns   Patterns
	Escalation EscalationRules
	// ExtractConvert enables the k_exp/k_token/k_url_convert scan.
	ExtractConvert bool
}

var defaultImageExtensions = []string{".jpg", ".jpeg", ".png", ".webp", ".heic", ".avif"}

// SSSTik returns the HTMX-driven flavor that answers with an HTML fragment.
func SSSTik() Flavor {
	return Flavor{
		Name:           "ssstik",
		Origin:         "https://ssstik.io",
		LandingPath:    "/en",
		SubmitPath:     "/abc?url=dl",
		Format:         PayloadHTML,
		ReferenceField: "id",
		LocaleField:    "locale",
		TokenField:     "tt",
		Locale:         "en",
		TokenPattern:   regexp.MustCompile(`s_tt\s*=\s*'([^']+)'`),
		Headers: map[string]string{
			"hx-current-url": "{landing}",
			"hx-request":     "true",
			"hx-target":      "target",
			"hx-trigger":     "_gcaptcha_pt",
			"Origin":         "{origin}",
			"Referer":        "{landing}",
			"Content-Type":   "application/x-www-form-urlencoded; charset=UTF-8",
		},
		Patterns: Patterns{
			HDAnchor:               "a.without_watermark_hd",
			HDTargetAttr:           "data-directurl",
			SecondaryToken:         `input[name="tt"]`,
			StandardAnchor:         "a.without_watermark",
			StandardFallbackAnchor: "a.download_link",
			StandardFallbackText:   "Without watermark",
			DownloadAnchor:         "a.download_link",
			ImageExtensions:        defaultImageExtensions,
			ImageHosts:             []string{"tikcdn.io", "tiktokcdn.com"},
			ImageLabel:             regexp.MustCompile(`(?i)\b(photo|image)\b`),
			AudioMarkers:           []string{"music", "mp3", "audio"},
			SlideImages:            "ul.splide__list img, div.slides img",
			LazyAttrs:              []string{"data-splide-lazy", "data-src", "data-lazy"},
			AvatarMarkers:          []string{"avatar", "result_author"},
			AvatarScope:            ".result_author",
		},
		Escalation: EscalationRules{
			RedirectHeaders:  []string{"HX-Redirect", "HX-Location"},
			BinaryTypes:      []string{"video/", "application/octet-stream"},
			RejectionPhrases: []string{"too many requests", "verify you are human", "captcha", "access denied"},
		},
	}
}

// TikDownloader returns the ajaxSearch flavor that answers with a JSON envelope.
func TikDownloader() Flavor {
	return Flavor{
		Name:           "tikdownloader",
		Origin:         "https://tikdownloader.io",
		LandingPath:    "/",
		SubmitPath:     "/api/ajaxSearch",
		Format:         PayloadJSONEnvelope,
		ReferenceField: "q",
		LocaleField:    "lang",
		TokenField:     "tt",
		Locale:         "id",
		Headers: map[string]string{
			"Origin":           "{origin}",
			"Referer":          "{landing}",
			"X-Requested-With": "XMLHttpRequest",
			"Content-Type":     "application/x-www-form-urlencoded; charset=UTF-8",
		},
		Patterns: Patterns{
			HDAnchor:        "a.tik-button-dl",
			HDLabel:         regexp.MustCompile(`(?i)\bHD\b`),
			StandardAnchor:  "a.tik-button-dl",
			StandardLabel:   regexp.MustCompile(`(?i)\bmp4\b`),
			DownloadAnchor:  "a.tik-button-dl",
			ImageExtensions: defaultImageExtensions,
			ImageHosts:      []string{"tikcdn.io", "tiktokcdn.com"},
			ImageLabel:      regexp.MustCompile(`(?i)\b(photo|image|gambar|foto)\b`),
			AudioMarkers:    []string{"music", "mp3", "audio", "musik"},
			SlideImages:     "div.photo-list img, ul.download-box img",
			LazyAttrs:       []string{"data-src"},
			AvatarMarkers:   []string{"avatar", "thumbnail"},
			AvatarScope:     ".thumbnail",
		},
		Escalation: EscalationRules{
			RedirectHeaders:  []string{"Location"},
			BinaryTypes:      []string{"video/", "application/octet-stream"},
			RejectionPhrases: []string{"too many requests", "captcha"},
		},
		ExtractConvert: true,
	}
}

var builtins = map[string]func() Flavor{
	"ssstik":        SSSTik,
	"tikdownloader": TikDownloader,
}

// Lookup returns the built-in flavor registered under name.
func Lookup(name string) (Flavor, error) {
	fn, ok := builtins[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Flavor{}, fmt.Errorf("%w: %q", domain.ErrUnknownFlavor, name)
	}
	return fn(), nil
}

// Names lists the built-in flavor names in sorted order.
func Names() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Override applies operator-supplied changes to a flavor.
type Override struct {
	Origin       string
	Locale       string
	TokenPattern string
	Headers      map[string]string
}

// WithOverride returns a copy of f with o applied. Empty override fields keep f's values.
func (f Flavor) WithOverride(o Override) (Flavor, error) {
	if o.Origin != "" {
		f.Origin = strings.TrimRight(o.Origin, "/")
	}
	if o.Locale != "" {
		f.Locale = o.Locale
	}
	if o.TokenPattern != "" {
		re, err := regexp.Compile(o.TokenPattern)
		if err != nil {
			return Flavor{}, fmt.Errorf("compile token pattern: %w", err)
		}
		if re.NumSubexp() < 1 {
			return Flavor{}, fmt.Errorf("token pattern %q has no capture group", o.TokenPattern)
		}
		f.TokenPattern = re
	}
	if len(o.Headers) > 0 {
		merged := make(map[string]string, len(f.Headers)+len(o.Headers))
		for k, v := range f.Headers {
			merged[k] = v
		}
		for k, v := range o.Headers {
			merged[k] = v
		}
		f.Headers = merged
	}
	return f, nil
}

// RequiresToken reports whether submissions need a primary token.
func (f Flavor) RequiresToken() bool {
	return f.TokenPattern != nil
}

// LandingURL returns the absolute landing-page URL.
func (f Flavor) LandingURL() string {
	return f.Origin + f.LandingPath
}

// SubmitURL returns the absolute submission URL.
func (f Flavor) SubmitURL() string {
	return f.Origin + f.SubmitPath
}

// expandHeaders resolves the {origin} and {landing} placeholders.
func (f Flavor) expandHeaders() map[string]string {
	r := strings.NewReplacer("{origin}", f.Origin, "{landing}", f.LandingURL())
	out := make(map[string]string, len(f.Headers))
	for k, v := range f.Headers {
		out[k] = r.Replace(v)
	}
	return out
}
