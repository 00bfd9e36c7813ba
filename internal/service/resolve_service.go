package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/iconidentify/tikgrabba/internal/config"
	"github.com/iconidentify/tikgrabba/internal/domain"
	"github.com/iconidentify/tikgrabba/internal/downloader"
	"github.com/iconidentify/tikgrabba/internal/repository"
	"github.com/iconidentify/tikgrabba/pkg/resolver"
)

// Config holds the settings the resolve service reads.
type Config struct {
	Resolver config.ResolverConfig
	Storage  config.StorageConfig
	Worker   config.WorkerConfig
}

// ResolveService runs the resolution pipeline for one reference at a time
// and serves the asynchronous job API.
type ResolveService struct {
	clients       map[string]*resolver.Client
	defaultFlavor string
	fetcher       downloader.Fetcher
	jobRepo       repository.JobRepository
	history       repository.HistoryRepository
	cfg           Config
	logger        *slog.Logger
}

// NewResolveService creates a resolve service with one resolver client per
// built-in flavor. Operator overrides apply to the configured default flavor.
// jobRepo and history may be nil when unused (the CLI has neither).
func NewResolveService(
	cfg Config,
	fetcher downloader.Fetcher,
	jobRepo repository.JobRepository,
	history repository.HistoryRepository,
	logger *slog.Logger,
) (*ResolveService, error) {
	if logger == nil {
		logger = slog.Default()
	}

	defaultFlavor, err := resolver.Lookup(cfg.Resolver.Flavor)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]*resolver.Client)
	for _, name := range resolver.Names() {
		f, _ := resolver.Lookup(name)
		if name == defaultFlavor.Name {
			f, err = f.WithOverride(resolver.Override{
				Origin:       cfg.Resolver.Origin,
				Locale:       cfg.Resolver.Locale,
				TokenPattern: cfg.Resolver.TokenPattern,
				Headers:      cfg.Resolver.Headers,
			})
			if err != nil {
				return nil, fmt.Errorf("flavor %s: %w", name, err)
			}
		}
		clients[name] = resolver.NewClient(resolver.Config{
			Flavor:    f,
			Timeout:   cfg.Resolver.Timeout,
			UserAgent: cfg.Resolver.UserAgent,
			Logger:    logger,
		})
	}

	return &ResolveService{
		clients:       clients,
		defaultFlavor: defaultFlavor.Name,
		fetcher:       fetcher,
		jobRepo:       jobRepo,
		history:       history,
		cfg:           cfg,
		logger:        logger,
	}, nil
}

// ResolveRequest selects what to resolve and where to write it.
type ResolveRequest struct {
	Reference domain.MediaReference
	// Flavor defaults to the configured resolver flavor.
	Flavor string
	// OutputDir defaults to storage.output_path.
	OutputDir string
}

// Resolve runs one full pipeline attempt. The report is always returned,
// also on failure. Errors are *domain.StageError naming the stage reached.
func (s *ResolveService) Resolve(ctx context.Context, req ResolveRequest) (*domain.Report, error) {
	flavorName := s.flavorName(req.Flavor)

	report := domain.NewReport(req.Reference, flavorName)
	run := &pipelineRun{
		svc:    s,
		report: report,
		logger: s.logger.With("reference", req.Reference.String(), "flavor", flavorName),
	}

	err := run.execute(ctx, req, flavorName)
	s.recordHistory(ctx, report)
	return report, err
}

// pipelineRun carries the state of one Resolve call.
type pipelineRun struct {
	svc     *ResolveService
	report  *domain.Report
	logger  *slog.Logger
	client  *resolver.Client
	session *resolver.Session
	dir     string
}

func (r *pipelineRun) enter(stage domain.Stage, detail string) {
	r.report.Enter(stage, detail)
	r.logger.Info("pipeline stage", "stage", stage, "detail", detail)
}

func (r *pipelineRun) fail(err error) error {
	se := r.report.Fail(err)
	r.logger.Error("resolution failed", "stage", se.Stage, "error", err)
	return se
}

func (r *pipelineRun) execute(ctx context.Context, req ResolveRequest, flavorName string) error {
	s := r.svc

	if err := req.Reference.Validate(); err != nil {
		return r.fail(err)
	}

	client, err := s.client(flavorName)
	if err != nil {
		return r.fail(err)
	}
	r.client = client

	r.dir = req.OutputDir
	if r.dir == "" {
		r.dir = s.cfg.Storage.OutputPath
	}
	if err := s.preflight(r.dir); err != nil {
		return r.fail(err)
	}

	session, err := client.NewSession()
	if err != nil {
		return r.fail(fmt.Errorf("create session: %w", err))
	}
	r.session = session

	tok, err := client.AcquireToken(ctx, session)
	if err != nil {
		return r.fail(err)
	}
	r.enter(domain.StageTokenAcquired, "")

	payload, err := client.Dispatch(ctx, session, req.Reference, tok)
	if err != nil {
		return r.fail(err)
	}
	r.enter(domain.StageDispatched, "")

	result := client.Classify(payload)
	r.report.Result = &result
	r.enter(domain.StageClassified, string(result.Kind))

	switch result.Kind {
	case domain.ResultVideo:
		return r.video(ctx, result.Video)
	case domain.ResultSlideshow:
		return r.slideshow(ctx, result.Slides)
	default:
		return r.fail(domain.ErrLinkNotFound)
	}
}

func (r *pipelineRun) video(ctx context.Context, v *domain.VideoResult) error {
	target := v.URL
	quality := v.Quality
	kind := downloader.AssetVideo
	if quality == domain.QualityHD {
		kind = downloader.AssetVideoHD
	}

	if v.Quality == domain.QualityHDPending {
		r.enter(domain.StageHDNegotiating, v.Escalation.Target)

		asset, err := r.client.Escalate(ctx, r.session, *v.Escalation)
		if err == nil {
			r.enter(domain.StageHDResolved, asset.URL)
			r.report.Quality = domain.QualityHD
			req := r.fetchRequest(0, asset.URL, downloader.AssetVideoHD)
			r.enter(domain.StageFetching, asset.URL)
			if asset.Response != nil {
				return r.finishVideo(r.svc.fetcher.Store(asset.Response, req))
			}
			return r.finishVideo(r.svc.fetcher.Fetch(ctx, req))
		}

		if ctx.Err() != nil {
			return r.fail(ctx.Err())
		}

		r.report.HDFallbackReason = err.Error()
		r.enter(domain.StageHDFallback, err.Error())
		r.logger.Warn("HD escalation failed, using standard link", "error", err)

		if v.Fallback == nil {
			return r.fail(fmt.Errorf("%w: HD unavailable (%v) and no standard link", domain.ErrLinkNotFound, err))
		}
		target = v.Fallback.URL
		quality = domain.QualityStandard
		kind = downloader.AssetVideo
	}

	abs, err := r.client.ResolveURL(target)
	if err != nil {
		return r.fail(fmt.Errorf("%w: bad link %q", domain.ErrLinkNotFound, target))
	}

	r.report.Quality = quality
	r.enter(domain.StageFetching, abs)
	return r.finishVideo(r.svc.fetcher.Fetch(ctx, r.fetchRequest(0, abs, kind)))
}

func (r *pipelineRun) finishVideo(out *domain.DownloadOutcome, err error) error {
	if err != nil {
		return r.fail(err)
	}
	r.report.Outcomes = append(r.report.Outcomes, *out)
	r.enter(domain.StageDone, out.Path)
	return nil
}

func (r *pipelineRun) slideshow(ctx context.Context, slides []domain.CandidateLink) error {
	reqs := make([]downloader.FetchRequest, 0, len(slides))
	for i, slide := range slides {
		abs, err := r.client.ResolveURL(slide.URL)
		if err != nil {
			abs = slide.URL
		}
		reqs = append(reqs, r.fetchRequest(i, abs, downloader.AssetSlide))
	}

	r.enter(domain.StageFetching, fmt.Sprintf("%d slides", len(reqs)))
	results := r.svc.fetcher.FetchAll(ctx, reqs)

	var failures []domain.FetchFailure
	for i, res := range results {
		if res.Err != nil {
			failures = append(failures, domain.FetchFailure{Index: res.Index, URL: reqs[i].URL, Error: res.Err.Error()})
			continue
		}
		r.report.Outcomes = append(r.report.Outcomes, *res.Outcome)
	}

	if len(failures) == 0 {
		r.enter(domain.StageDone, fmt.Sprintf("%d files", len(r.report.Outcomes)))
		return nil
	}

	r.report.Failures = failures
	partial := &domain.PartialFetchError{Failures: failures}
	if len(r.report.Outcomes) == 0 {
		return r.fail(partial)
	}

	r.report.Error = partial.Error()
	r.enter(domain.StagePartialDone, partial.Error())
	r.logger.Warn("slideshow partially downloaded",
		"saved", len(r.report.Outcomes),
		"failed", len(failures),
	)
	return domain.NewStageError(domain.StagePartialDone, r.report.Reference, partial)
}

func (r *pipelineRun) fetchRequest(index int, url string, kind downloader.AssetKind) downloader.FetchRequest {
	return downloader.FetchRequest{
		Index:       index,
		URL:         url,
		Dir:         r.dir,
		DefaultName: downloader.DefaultName(r.svc.cfg.Storage.FilenamePrefix, kind, index, url),
		Headers:     r.session.Headers(),
	}
}

// flavorName normalises a requested flavor the way resolver.Lookup does.
// Empty selects the default.
func (s *ResolveService) flavorName(flavor string) string {
	flavor = strings.ToLower(strings.TrimSpace(flavor))
	if flavor == "" {
		return s.defaultFlavor
	}
	return flavor
}

func (s *ResolveService) client(flavor string) (*resolver.Client, error) {
	flavor = s.flavorName(flavor)
	c, ok := s.clients[flavor]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFlavor, flavor)
	}
	return c, nil
}

// preflight creates the output directory and checks the free-space floor.
// An unreadable free-space figure does not block the run.
func (s *ResolveService) preflight(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	if s.cfg.Storage.MinFreeBytes <= 0 {
		return nil
	}
	_, free, err := DiskUsage(dir)
	if err != nil {
		s.logger.Debug("free space unknown", "dir", dir, "error", err)
		return nil
	}
	if free < s.cfg.Storage.MinFreeBytes {
		return fmt.Errorf("%w: %d bytes free in %s, need %d", domain.ErrStorageFull, free, dir, s.cfg.Storage.MinFreeBytes)
	}
	return nil
}

func (s *ResolveService) recordHistory(ctx context.Context, report *domain.Report) {
	if s.history == nil {
		return
	}
	entry := domain.HistoryFromReport(uuid.New().String(), report)
	if err := s.history.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("failed to record history", "reference", report.Reference, "error", err)
	}
}

// SubmitRequest asks for an asynchronous resolution.
type SubmitRequest struct {
	Reference domain.MediaReference
	Flavor    string
}

// SubmitResponse is returned after queueing a job.
type SubmitResponse struct {
	JobID  domain.JobID     `json:"job_id"`
	Status domain.JobStatus `json:"status"`
}

// Submit validates the request and queues a job for the worker pool.
func (s *ResolveService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResponse, error) {
	if err := req.Reference.Validate(); err != nil {
		return nil, err
	}
	c, err := s.client(req.Flavor)
	if err != nil {
		return nil, err
	}
	if s.jobRepo == nil {
		return nil, errors.New("job queue not configured")
	}

	jobID := domain.JobID("job_" + uuid.New().String()[:8])
	job := domain.NewJob(jobID, req.Reference, c.Flavor().Name, s.cfg.Worker.MaxRetries)
	if err := s.jobRepo.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.Info("resolve job submitted",
		"job_id", jobID,
		"reference", req.Reference.String(),
		"flavor", job.Flavor,
	)

	return &SubmitResponse{JobID: jobID, Status: job.Status}, nil
}

// GetJob returns a job by ID.
func (s *ResolveService) GetJob(ctx context.Context, id domain.JobID) (*domain.Job, error) {
	if s.jobRepo == nil {
		return nil, domain.ErrJobNotFound
	}
	return s.jobRepo.Get(ctx, id)
}

// Process runs the pipeline for a dequeued job and attaches the report.
func (s *ResolveService) Process(ctx context.Context, job *domain.Job) error {
	report, err := s.Resolve(ctx, ResolveRequest{Reference: job.Reference, Flavor: job.Flavor})
	job.Report = report
	return err
}

// QueueStats returns job queue statistics.
func (s *ResolveService) QueueStats(ctx context.Context) (*repository.QueueStats, error) {
	if s.jobRepo == nil {
		return &repository.QueueStats{}, nil
	}
	return s.jobRepo.Stats(ctx)
}

// History returns recent history entries, newest first.
func (s *ResolveService) History(ctx context.Context, limit int) ([]domain.HistoryEntry, error) {
	if s.history == nil {
		return []domain.HistoryEntry{}, nil
	}
	return s.history.List(ctx, limit)
}

// Flavors lists the resolver flavors the service accepts.
func (s *ResolveService) Flavors() []string {
	return resolver.Names()
}

// DefaultFlavor returns the flavor used when a request names none.
func (s *ResolveService) DefaultFlavor() string {
	return s.defaultFlavor
}

// OutputPath returns the default output directory.
func (s *ResolveService) OutputPath() string {
	return s.cfg.Storage.OutputPath
}
