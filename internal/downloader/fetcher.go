package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iconidentify/tikgrabba/internal/config"
	"github.com/iconidentify/tikgrabba/internal/domain"
)

var (
	errStalled  = errors.New("download stalled")
	errDeadline = errors.New("download exceeded timeout")
)

// HTTPFetcher implements Fetcher over plain HTTP GETs.
type HTTPFetcher struct {
	// client has a response-header timeout but no overall timeout;
	// the overall bound comes from the request context.
	client    *http.Client
	cfg       config.DownloadConfig
	overwrite bool
	logger    *slog.Logger

	// mu serialises final-name selection and rename.
	mu sync.Mutex
}

// NewHTTPFetcher creates a fetcher. When overwrite is false an existing file
// is never replaced; a numbered name is chosen instead.
func NewHTTPFetcher(cfg config.DownloadConfig, overwrite bool, logger *slog.Logger) *HTTPFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = cfg.HeaderTimeout
	transport.MaxIdleConnsPerHost = 10

	return &HTTPFetcher{
		client:    &http.Client{Transport: transport},
		cfg:       cfg,
		overwrite: overwrite,
		logger:    logger,
	}
}

// Fetch downloads req.URL into req.Dir.
func (f *HTTPFetcher) Fetch(ctx context.Context, req FetchRequest) (*domain.DownloadOutcome, error) {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vals := range req.Headers {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" && f.cfg.UserAgent != "" {
		httpReq.Header.Set("User-Agent", f.cfg.UserAgent)
	}
	httpReq.Header.Set("Accept", "video/mp4,video/*,image/*;q=0.9,*/*;q=0.8")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, domain.NewTransportError("fetch asset", req.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, domain.NewStatusError("fetch asset", req.URL, resp.StatusCode)
	}

	return f.Store(resp, req)
}

// Store streams resp.Body into a temporary file beside the destination and
// renames it into place once the body is complete. On any error the
// temporary file is removed and no existing file is touched. The read is
// bounded by download.timeout even when resp did not come from Fetch.
func (f *HTTPFetcher) Store(resp *http.Response, req FetchRequest) (*domain.DownloadOutcome, error) {
	defer resp.Body.Close()

	dir := req.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	name, ok := FilenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if !ok {
		name = req.DefaultName
	}

	tmp, err := os.CreateTemp(dir, ".tikgrabba-*.part")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	body := newProgressReader(resp.Body, resp.ContentLength, f.cfg.ReadTimeout, f.cfg.Timeout, f.logger, req.URL)
	n, copyErr := io.Copy(tmp, body)
	body.Close()
	closeErr := tmp.Close()

	if copyErr != nil {
		os.Remove(tmpPath)
		return nil, domain.NewTransportError("read asset", req.URL, copyErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("close temp file: %w", closeErr)
	}

	finalPath, err := f.commit(tmpPath, filepath.Join(dir, name))
	if err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	outcome := &domain.DownloadOutcome{
		Index:       req.Index,
		URL:         req.URL,
		Path:        finalPath,
		Bytes:       n,
		ContentType: resp.Header.Get("Content-Type"),
		Suspicious:  n < f.cfg.MinMediaBytes,
	}

	if outcome.Suspicious {
		f.logger.Warn("downloaded file is suspiciously small",
			"path", finalPath,
			"bytes", n,
			"threshold", f.cfg.MinMediaBytes,
		)
	} else {
		f.logger.Info("asset saved", "path", finalPath, "bytes", n)
	}

	return outcome, nil
}

func (f *HTTPFetcher) commit(tmpPath, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.overwrite {
		target = uniquePath(target)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		return "", fmt.Errorf("move into place: %w", err)
	}
	return target, nil
}

// FetchAll downloads every request with at most download.concurrency in
// flight. A failed item never cancels the others.
func (f *HTTPFetcher) FetchAll(ctx context.Context, reqs []FetchRequest) []FetchResult {
	results := make([]FetchResult, len(reqs))

	limit := f.cfg.Concurrency
	if limit <= 0 {
		limit = 1
	}
	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup
	for i, r := range reqs {
		results[i].Index = r.Index

		wg.Add(1)
		go func(i int, r FetchRequest) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return
			}
			defer func() { <-sem }()

			out, err := f.Fetch(ctx, r)
			results[i].Outcome = out
			results[i].Err = err
		}(i, r)
	}
	wg.Wait()

	return results
}

// progressReader logs download progress and closes the body when no data
// arrives for readTimeout or the whole read outlasts timeout.
type progressReader struct {
	reader      io.ReadCloser
	total       int64
	downloaded  int64
	readTimeout time.Duration
	watchdog    *time.Timer
	stalled     atomic.Bool
	timeout     time.Duration
	deadline    *time.Timer
	expired     atomic.Bool
	lastLog     time.Time
	logger      *slog.Logger
	url         string
	mu          sync.Mutex
	closed      bool
}

func newProgressReader(r io.ReadCloser, total int64, readTimeout, timeout time.Duration, logger *slog.Logger, url string) *progressReader {
	p := &progressReader{
		reader:      r,
		total:       total,
		readTimeout: readTimeout,
		timeout:     timeout,
		lastLog:     time.Now(),
		logger:      logger,
		url:         url,
	}
	if readTimeout > 0 {
		p.watchdog = time.AfterFunc(readTimeout, func() {
			p.stalled.Store(true)
			r.Close()
		})
	}
	if timeout > 0 {
		p.deadline = time.AfterFunc(timeout, func() {
			p.expired.Store(true)
			r.Close()
		})
	}
	return p
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.reader.Read(buf)
	if p.stalled.Load() {
		return n, fmt.Errorf("%w: no data received for %v", errStalled, p.readTimeout)
	}
	if p.expired.Load() {
		return n, fmt.Errorf("%w: %v", errDeadline, p.timeout)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if n > 0 {
		p.downloaded += int64(n)
		if p.watchdog != nil {
			p.watchdog.Reset(p.readTimeout)
		}
		if time.Since(p.lastLog) > 30*time.Second {
			p.logProgress()
			p.lastLog = time.Now()
		}
	}

	return n, err
}

func (p *progressReader) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.watchdog != nil {
		p.watchdog.Stop()
	}
	if p.deadline != nil {
		p.deadline.Stop()
	}
	p.mu.Unlock()

	return p.reader.Close()
}

func (p *progressReader) logProgress() {
	if p.total > 0 {
		pct := float64(p.downloaded) / float64(p.total) * 100
		p.logger.Info("download progress",
			"url", p.url,
			"downloaded_mb", p.downloaded/(1024*1024),
			"total_mb", p.total/(1024*1024),
			"percent", fmt.Sprintf("%.1f%%", pct),
		)
	} else {
		p.logger.Info("download progress",
			"url", p.url,
			"downloaded_mb", p.downloaded/(1024*1024),
		)
	}
}
