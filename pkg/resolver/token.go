package resolver

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

// AcquireToken fetches the landing page and extracts the primary token.
// Flavors without a token pattern return a zero token without any request.
func (c *Client) AcquireToken(ctx context.Context, s *Session) (domain.Token, error) {
	if !c.flavor.RequiresToken() {
		return domain.Token{Kind: domain.TokenPrimary}, nil
	}

	landing := c.flavor.LandingURL()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, landing, nil)
	if err != nil {
		return domain.Token{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := s.Do(req)
	if err != nil {
		return domain.Token{}, domain.NewTransportError("fetch landing page", landing, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return domain.Token{}, domain.NewStatusError("fetch landing page", landing, resp.StatusCode)
	}

	body, err := readPayload(resp.Body)
	if err != nil {
		return domain.Token{}, domain.NewTransportError("read landing page", landing, err)
	}

	value, ok := ExtractToken(c.flavor.TokenPattern, string(body))
	if !ok {
		return domain.Token{}, domain.ErrTokenNotFound
	}

	c.logger.Debug("primary token acquired", "token_len", len(value))
	return domain.Token{Kind: domain.TokenPrimary, Value: value}, nil
}

// ExtractToken returns the first capture group of pattern in page.
// An absent match, a pattern without groups or an empty capture yield ok=false.
func ExtractToken(pattern *regexp.Regexp, page string) (string, bool) {
	if pattern == nil {
		return "", false
	}
	m := pattern.FindStringSubmatch(page)
	if len(m) < 2 {
		return "", false
	}
	if m[1] == "" {
		return "", false
	}
	return m[1], true
}
