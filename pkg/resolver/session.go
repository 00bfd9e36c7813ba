package resolver

import (
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
)

// Session is the per-attempt context shared by every request made for one
// media reference: a private cookie jar and a set of default headers.
// A Session must not be reused across references.
type Session struct {
	client  *http.Client
	jar     *cookiejar.Jar
	headers http.Header

	// mu serialises requests so the jar is only touched by one in-flight call.
	mu sync.Mutex
}

func newSession(transport http.RoundTripper, headers http.Header) (*Session, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Session{
		client: &http.Client{
			Transport: transport,
			Jar:       jar,
			// Submission and escalation answers may live in a 3xx Location; keep them visible.
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if via[0].Method == http.MethodPost {
					return http.ErrUseLastResponse
				}
				if len(via) >= 10 {
					return errors.New("stopped after 10 redirects")
				}
				return nil
			},
		},
		jar:     jar,
		headers: headers.Clone(),
	}, nil
}

// Do sends req with the session's default headers applied beneath any the
// request already carries.
func (s *Session) Do(req *http.Request) (*http.Response, error) {
	for k, vals := range s.headers {
		if req.Header.Get(k) == "" {
			for _, v := range vals {
				req.Header.Add(k, v)
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Do(req)
}

// Headers returns an independent copy of the default headers, for fetches that
// run outside the session (slideshow images need no cookies).
func (s *Session) Headers() http.Header {
	return s.headers.Clone()
}

// Cookies returns the cookies the jar would send to u.
func (s *Session) Cookies(u *url.URL) []*http.Cookie {
	return s.jar.Cookies(u)
}
