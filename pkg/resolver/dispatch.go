package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/iconidentify/tikgrabba/internal/domain"
)

// Payload is the HTML fragment returned by a submission.
type Payload struct {
	HTML string
	// Status is the envelope status for JSON flavors; empty otherwise.
	Status string
}

// envelope is the JSON wrapper used by ajaxSearch-style resolvers.
type envelope struct {
	Status string `json:"status"`
	Data   string `json:"data"`
	Msg    string `json:"mess"`
}

// Dispatch submits ref and the primary token to the resolver and returns the
// response fragment. The session's cookie jar may be updated.
func (c *Client) Dispatch(ctx context.Context, s *Session, ref domain.MediaReference, tok domain.Token) (*Payload, error) {
	form := url.Values{}
	form.Set(c.flavor.ReferenceField, ref.String())
	if c.flavor.LocaleField != "" && c.flavor.Locale != "" {
		form.Set(c.flavor.LocaleField, c.flavor.Locale)
	}
	if c.flavor.RequiresToken() && c.flavor.TokenField != "" {
		form.Set(c.flavor.TokenField, tok.Value)
	}

	submit := c.flavor.SubmitURL()
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, submit, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.applyFlavorHeaders(req)
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	}

	resp, err := s.Do(req)
	if err != nil {
		return nil, domain.NewTransportError("submit reference", submit, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewStatusError("submit reference", submit, resp.StatusCode)
	}

	body, err := readPayload(resp.Body)
	if err != nil {
		return nil, domain.NewTransportError("read submission response", submit, err)
	}

	switch c.flavor.Format {
	case PayloadJSONEnvelope:
		return decodeEnvelope(body)
	default:
		return &Payload{HTML: string(body)}, nil
	}
}

func decodeEnvelope(body []byte) (*Payload, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %v", domain.ErrDispatchRejected, err)
	}
	if env.Status != "ok" {
		detail := env.Status
		if env.Msg != "" {
			detail += ": " + env.Msg
		}
		return nil, fmt.Errorf("%w: status %q", domain.ErrDispatchRejected, detail)
	}
	return &Payload{HTML: env.Data, Status: env.Status}, nil
}
