package resolver

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

// HDAsset is the answer to an escalation request. Either URL names the HD
// file, or Response holds a binary body that is the file itself. A non-nil
// Response must be consumed and closed by the caller.
type HDAsset struct {
	URL      string
	Response *http.Response
}

// Escalate performs the second exchange for an HD-pending video. It returns
// domain.ErrHDRejected for an anti-automation answer and
// domain.ErrHDNegotiationFailed for everything else it cannot interpret,
// including transport failures.
func (c *Client) Escalate(ctx context.Context, s *Session, esc domain.Escalation) (*HDAsset, error) {
	target, err := c.ResolveURL(esc.Target)
	if err != nil {
		return nil, fmt.Errorf("%w: target %q: %v", domain.ErrHDNegotiationFailed, esc.Target, err)
	}

	form := url.Values{}
	form.Set(c.flavor.TokenField, esc.SecondaryToken.Value)

	// The exchange is bounded by the resolver timeout, except that a binary
	// answer is handed over with its own cancel for the caller to stream.
	ctx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(c.timeout, cancel)
	handedOver := false
	defer func() {
		if !handedOver {
			timer.Stop()
			cancel()
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", domain.ErrHDNegotiationFailed, err)
	}
	c.applyFlavorHeaders(req)
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}

	resp, err := s.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrHDNegotiationFailed, domain.NewTransportError("request HD", target, err))
	}

	for _, h := range c.flavor.Escalation.RedirectHeaders {
		if loc := strings.TrimSpace(resp.Header.Get(h)); loc != "" {
			resp.Body.Close()
			abs, err := c.ResolveURL(loc)
			if err != nil {
				return nil, fmt.Errorf("%w: redirect %q: %v", domain.ErrHDNegotiationFailed, loc, err)
			}
			c.logger.Debug("HD resolved via header", "header", h)
			return &HDAsset{URL: abs}, nil
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %v", domain.ErrHDNegotiationFailed, domain.NewStatusError("request HD", target, resp.StatusCode))
	}

	if c.isBinary(resp.Header.Get("Content-Type")) {
		c.logger.Debug("HD answered with binary body", "content_type", resp.Header.Get("Content-Type"))
		timer.Stop()
		handedOver = true
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return &HDAsset{URL: target, Response: resp}, nil
	}

	body, err := readPayload(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", domain.ErrHDNegotiationFailed, err)
	}

	for _, phrase := range c.flavor.Escalation.RejectionPhrases {
		if containsPhrase(body, phrase) {
			return nil, fmt.Errorf("%w: %q", domain.ErrHDRejected, phrase)
		}
	}

	href, ok := singleAnchor(string(body))
	if !ok {
		return nil, domain.ErrHDNegotiationFailed
	}
	abs, err := c.ResolveURL(href)
	if err != nil {
		return nil, fmt.Errorf("%w: anchor %q: %v", domain.ErrHDNegotiationFailed, href, err)
	}
	return &HDAsset{URL: abs}, nil
}

// containsPhrase reports whether phrase occurs in body as whole words, ignoring
// case. Identifiers such as _gcaptcha_pt do not match "captcha".
func containsPhrase(body []byte, phrase string) bool {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(phrase) + `\b`)
	return re.Match(body)
}

// cancelOnClose releases the escalation context once the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnClose) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}

// ResolveURL resolves ref against the flavor origin.
func (c *Client) ResolveURL(ref string) (string, error) {
	base, err := url.Parse(c.flavor.Origin + "/")
	if err != nil {
		return "", err
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", err
	}
	return base.ResolveReference(u).String(), nil
}

func (c *Client) isBinary(contentType string) bool {
	ct := strings.ToLower(contentType)
	if ct == "" {
		return false
	}
	for _, prefix := range c.flavor.Escalation.BinaryTypes {
		if strings.HasPrefix(ct, prefix) {
			return true
		}
	}
	return false
}

// singleAnchor returns the href of the only usable anchor in body.
func singleAnchor(body string) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	var hrefs []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		if href, _ := s.Attr("href"); usableHref(href) {
			hrefs = append(hrefs, href)
		}
	})
	if len(hrefs) != 1 {
		return "", false
	}
	return hrefs[0], true
}
