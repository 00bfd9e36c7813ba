package domain

import (
	"net/url"
	"strings"
)

// MediaReference is the caller-supplied locator of the content to resolve.
type MediaReference string

// String returns the string representation of the MediaReference.
func (r MediaReference) String() string {
	return string(r)
}

// Validate checks that the reference is an absolute http(s) URL.
func (r MediaReference) Validate() error {
	s := strings.TrimSpace(string(r))
	if s == "" {
		return ErrInvalidReference
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return ErrInvalidReference
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ErrInvalidReference
	}
	return nil
}

// TokenKind distinguishes the landing-page token from the HD escalation token.
type TokenKind string

const (
	TokenPrimary   TokenKind = "primary"
	TokenSecondary TokenKind = "secondary"
)

// Token is an opaque anti-automation value, valid only inside the session that obtained it.
type Token struct {
	Kind  TokenKind
	Value string
}

// IsZero reports whether the token carries no value.
func (t Token) IsZero() bool {
	return t.Value == ""
}

// LinkKind classifies a candidate link.
type LinkKind string

const (
	LinkVideoStandard LinkKind = "video_standard"
	LinkVideoHD       LinkKind = "video_hd"
	LinkImage         LinkKind = "image"
)

// CandidateLink is one download target found in a resolver response.
type CandidateLink struct {
	Label string   `json:"label"`
	URL   string   `json:"url"`
	Kind  LinkKind `json:"kind"`
}

// Quality is the quality tier of a resolved video.
type Quality string

const (
	QualityStandard Quality = "standard"
	QualityHD       Quality = "hd"
	// QualityHDPending marks a video whose HD location still needs an escalation request.
	QualityHDPending Quality = "hd_pending"
)

// ResultKind tags the variant held by a ResolutionResult.
type ResultKind string

const (
	ResultVideo      ResultKind = "video"
	ResultSlideshow  ResultKind = "slideshow"
	ResultUnresolved ResultKind = "unresolved"
)

// Escalation holds what the HD negotiator needs for its second exchange.
type Escalation struct {
	Target         string `json:"target"`
	SecondaryToken Token  `json:"-"`
}

// VideoResult is the video variant of a ResolutionResult.
type VideoResult struct {
	URL        string         `json:"url,omitempty"`
	Quality    Quality        `json:"quality"`
	Escalation *Escalation    `json:"escalation,omitempty"`
	Fallback   *CandidateLink `json:"fallback,omitempty"`
}

// ConvertMetadata carries audio-conversion parameters some resolvers embed in their payload.
type ConvertMetadata struct {
	Expires string `json:"expires,omitempty"`
	Token   string `json:"token,omitempty"`
	URL     string `json:"url,omitempty"`
}

// IsZero reports whether no conversion parameter was found.
func (m ConvertMetadata) IsZero() bool {
	return m.Expires == "" && m.Token == "" && m.URL == ""
}

// ResolutionResult is the classified outcome of one resolver response.
// Exactly one of Video or Slides is set, according to Kind.
type ResolutionResult struct {
	Kind       ResultKind       `json:"kind"`
	Video      *VideoResult     `json:"video,omitempty"`
	Slides     []CandidateLink  `json:"slides,omitempty"`
	Candidates []CandidateLink  `json:"candidates,omitempty"`
	Convert    *ConvertMetadata `json:"convert,omitempty"`
}

// NewVideoResult builds a video result.
func NewVideoResult(v VideoResult, candidates []CandidateLink) ResolutionResult {
	return ResolutionResult{Kind: ResultVideo, Video: &v, Candidates: candidates}
}

// NewSlideshowResult builds a slideshow result.
func NewSlideshowResult(slides, candidates []CandidateLink) ResolutionResult {
	return ResolutionResult{Kind: ResultSlideshow, Slides: slides, Candidates: candidates}
}

// Unresolved builds the result for a payload with nothing actionable.
func Unresolved(candidates []CandidateLink) ResolutionResult {
	return ResolutionResult{Kind: ResultUnresolved, Candidates: candidates}
}

// DownloadOutcome describes one asset written to storage.
type DownloadOutcome struct {
	Index       int    `json:"index"`
	URL         string `json:"url"`
	Path        string `json:"path"`
	Bytes       int64  `json:"bytes"`
	ContentType string `json:"content_type,omitempty"`
	// Suspicious is set when the body is too small to be real media.
	Suspicious bool `json:"suspicious"`
}
