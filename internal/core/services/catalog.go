package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/tamgam-edu/diya-core/internal/catalog"
	"github.com/tamgam-edu/diya-core/internal/core/domain"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driven"
	"github.com/tamgam-edu/diya-core/internal/core/ports/driving"
	"github.com/tamgam-edu/diya-core/internal/extractors"
	"github.com/tamgam-edu/diya-core/internal/postprocessors"
	"github.com/tamgam-edu/diya-core/internal/runtime"
)

// Ensure CatalogIngestor implements driving.CatalogService
var _ driving.CatalogService = (*CatalogIngestor)(nil)

// Catalog run defaults
const (
	DefaultEmbedInterval  = 15 * time.Second
	CatalogLockName       = "ingest:catalog"
	DefaultCatalogLockTTL = 30 * time.Minute
)

// CatalogOptions control one catalog run.
type CatalogOptions struct {
	Force  bool
	DryRun bool

	// Chapters are doublestar patterns over "grade/NN" paths. When set,
	// the skip/force check applies per selected chapter instead of per grade.
	Chapters []string

	// SkipIndex disables the ANN index build after a non-dry run
	SkipIndex bool

	// Progress is called after each chapter (optional)
	Progress func(ChapterProgress)
}

// ChapterProgress reports one finished chapter.
type ChapterProgress struct {
	Grade    int
	Chapter  domain.Chapter
	Position int // 1-based within the grade
	Total    int
	Chunks   int
	Skipped  bool
	Err      error
}

// CatalogIngestor runs bulk reference-textbook ingestion: download with a
// cache, extract, strip noise, chunk with a context prefix, then embed and
// insert in small batches.
type CatalogIngestor struct {
	catalog    *domain.Catalog
	vectors    driven.VectorStore
	fetcher    driven.Fetcher
	cache      driven.DownloadCache
	extractors driven.ExtractorRegistry
	services   *runtime.Services
	jobs       driven.IngestionJobStore
	queue      driven.TaskQueue
	lock       driven.DistributedLock
	logger     *slog.Logger

	chunkSize     int
	overlap       int
	batchSize     int
	embedInterval time.Duration
	lockTTL       time.Duration
}

// CatalogIngestorConfig holds dependencies for CatalogIngestor.
type CatalogIngestorConfig struct {
	Catalog    *domain.Catalog
	Vectors    driven.VectorStore
	Fetcher    driven.Fetcher
	Cache      driven.DownloadCache // Optional: skip re-downloads across runs
	Extractors driven.ExtractorRegistry
	Services   *runtime.Services
	Jobs       driven.IngestionJobStore // Required for Submit/RunJob
	Queue      driven.TaskQueue         // Required for Submit
	Lock       driven.DistributedLock   // Optional: one catalog run at a time
	Logger     *slog.Logger

	ChunkSize int  // default: 400
	Overlap   *int // default: 40, 0 for disjoint windows
	BatchSize int  // default: 20

	// EmbedInterval is the minimum spacing between embedding calls.
	// Zero disables pacing.
	EmbedInterval time.Duration
	LockTTL       time.Duration
}

// NewCatalogIngestor creates a catalog ingestor.
func NewCatalogIngestor(cfg CatalogIngestorConfig) *CatalogIngestor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &CatalogIngestor{
		catalog:       cfg.Catalog,
		vectors:       cfg.Vectors,
		fetcher:       cfg.Fetcher,
		cache:         cfg.Cache,
		extractors:    cfg.Extractors,
		services:      cfg.Services,
		jobs:          cfg.Jobs,
		queue:         cfg.Queue,
		lock:          cfg.Lock,
		logger:        logger,
		chunkSize:     cfg.ChunkSize,
		overlap:       postprocessors.ReferenceOverlap,
		batchSize:     cfg.BatchSize,
		embedInterval: cfg.EmbedInterval,
		lockTTL:       cfg.LockTTL,
	}
	if c.catalog == nil {
		c.catalog = catalog.Default()
	}
	if c.chunkSize <= 0 {
		c.chunkSize = postprocessors.ReferenceChunkSize
	}
	if cfg.Overlap != nil {
		c.overlap = *cfg.Overlap
	}
	if c.overlap < 0 || c.overlap >= c.chunkSize {
		c.overlap = min(postprocessors.ReferenceOverlap, c.chunkSize/2)
	}
	if c.batchSize <= 0 {
		c.batchSize = DefaultBatchSize
	}
	if c.lockTTL <= 0 {
		c.lockTTL = DefaultCatalogLockTTL
	}
	return c
}

// Catalog returns the configured catalog.
func (c *CatalogIngestor) Catalog() *domain.Catalog {
	return c.catalog
}

// Submit records a catalog job and enqueues it.
func (c *CatalogIngestor) Submit(ctx context.Context, grades []int, force, dryRun bool) (*domain.IngestionJob, error) {
	if c.queue == nil || c.jobs == nil {
		return nil, fmt.Errorf("%w: task queue not configured", domain.ErrServiceUnavailable)
	}
	for _, g := range grades {
		if _, err := c.catalog.Book(g); err != nil {
			return nil, fmt.Errorf("%w: grade %d is not in the catalog", domain.ErrInvalidInput, g)
		}
	}

	job := domain.NewIngestionJob(domain.JobKindCatalog, "", force)
	if err := c.jobs.Save(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}
	task := domain.NewIngestCatalogTask(job, grades, dryRun)
	if err := c.queue.Enqueue(ctx, task); err != nil {
		job.MarkFailed(0, fmt.Errorf("enqueue: %w", err))
		_ = c.jobs.Save(ctx, job)
		return nil, fmt.Errorf("failed to enqueue catalog ingestion: %w", err)
	}
	c.logger.Info("catalog ingestion queued", "job_id", job.ID, "grades", grades, "force", force, "dry_run", dryRun)
	return job, nil
}

// RunJob executes a queued catalog job.
func (c *CatalogIngestor) RunJob(ctx context.Context, jobID string, grades []int, dryRun bool) (*domain.CatalogRunResult, error) {
	job, err := c.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	job.MarkProcessing()
	c.saveJob(ctx, job)

	res, err := c.IngestCatalog(ctx, grades, CatalogOptions{Force: job.Force, DryRun: dryRun})
	if err != nil {
		processed := 0
		if res != nil {
			processed = res.TotalChunks
		}
		job.MarkFailed(processed, err)
		c.saveJob(ctx, job)
		return res, err
	}

	failed := 0
	var gradeErrs []error
	for _, g := range res.Grades {
		failed += g.FailedEmbeddings
		if g.Status == domain.GradeStatusFailed {
			gradeErrs = append(gradeErrs, fmt.Errorf("grade %d: %s", g.Grade, g.Error))
		}
	}
	if len(gradeErrs) > 0 {
		job.MarkFailed(res.TotalChunks, errors.Join(gradeErrs...))
	} else {
		job.MarkCompleted(res.TotalChunks, failed)
	}
	c.saveJob(ctx, job)
	return res, nil
}

// IngestCatalog ingests grades in ascending order (all catalog grades when
// empty) and builds the ANN index afterwards unless this is a dry run.
// A failing grade is recorded in its result and does not stop the others.
func (c *CatalogIngestor) IngestCatalog(ctx context.Context, grades []int, opts CatalogOptions) (*domain.CatalogRunResult, error) {
	selected, err := catalog.Select(c.catalog, dedupGrades(grades), opts.Chapters)
	if err != nil {
		return nil, err
	}

	if c.lock != nil && !opts.DryRun {
		acquired, err := c.lock.Acquire(ctx, CatalogLockName, c.lockTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire catalog lock: %w", err)
		}
		if !acquired {
			return nil, domain.ErrIngestionInProgress
		}
		defer func() {
			if err := c.lock.Release(context.WithoutCancel(ctx), CatalogLockName); err != nil {
				c.logger.Warn("failed to release catalog lock", "error", err)
			}
		}()
	}

	res := &domain.CatalogRunResult{}
	for _, g := range selected.GradeNumbers() {
		gr := c.ingestGrade(ctx, selected, g, opts)
		res.Grades = append(res.Grades, gr)
		res.TotalChunks += gr.TotalChunks
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}

	if !opts.DryRun && !opts.SkipIndex {
		c.logger.Info("building ANN index")
		if err := c.vectors.BuildIndex(ctx, false); err != nil {
			c.logger.Warn("index build failed, search falls back to a sequential scan", "error", err)
		} else {
			res.IndexBuilt = true
		}
	}
	return res, nil
}

// IngestGrade ingests one grade of the configured catalog.
func (c *CatalogIngestor) IngestGrade(ctx context.Context, grade int, opts CatalogOptions) (domain.GradeResult, error) {
	selected, err := catalog.Select(c.catalog, []int{grade}, opts.Chapters)
	if err != nil {
		return domain.GradeResult{Grade: grade, Status: domain.GradeStatusFailed, Error: err.Error()}, err
	}
	gr := c.ingestGrade(ctx, selected, grade, opts)
	if gr.Status == domain.GradeStatusFailed {
		return gr, errors.New(gr.Error)
	}
	return gr, nil
}

func (c *CatalogIngestor) ingestGrade(ctx context.Context, cat *domain.Catalog, grade int, opts CatalogOptions) domain.GradeResult {
	logger := c.logger.With("grade", grade)
	res := domain.GradeResult{Grade: grade}
	book, err := cat.Book(grade)
	if err != nil {
		return failGrade(res, err)
	}

	chapterScoped := len(opts.Chapters) > 0
	if !opts.DryRun && !chapterScoped {
		filter := domain.ChunkFilter{ReferenceGrade: grade}
		existing, err := c.vectors.Count(ctx, filter)
		if err != nil {
			return failGrade(res, fmt.Errorf("failed to check existing chunks: %w", err))
		}
		if existing > 0 {
			if !opts.Force {
				logger.Info("grade already ingested, use force to re-embed", "chunks", existing)
				res.Skipped = true
				res.Status = domain.GradeStatusAlreadyIngested
				return res
			}
			n, err := c.vectors.Delete(ctx, filter)
			if err != nil {
				return failGrade(res, fmt.Errorf("failed to delete grade: %w", err))
			}
			logger.Info("deleted existing grade chunks", "count", n)
		}
	}

	var limiter *rate.Limiter
	if c.embedInterval > 0 && !opts.DryRun {
		limiter = rate.NewLimiter(rate.Every(c.embedInterval), 1)
	}

	for i, ch := range book.Chapters {
		if err := ctx.Err(); err != nil {
			return failGrade(res, err)
		}
		progress := ChapterProgress{Grade: grade, Chapter: ch, Position: i + 1, Total: len(book.Chapters)}

		n, skipped, err := c.ingestChapter(ctx, cat, book, grade, ch, opts, limiter, &res)
		progress.Chunks, progress.Skipped, progress.Err = n, skipped, err
		if opts.Progress != nil {
			opts.Progress(progress)
		}
		if err != nil {
			res.TotalChunks += n
			return failGrade(res, err)
		}
		if skipped {
			res.ChaptersSkipped++
			continue
		}
		res.ChaptersProcessed++
		res.TotalChunks += n
	}

	if opts.DryRun {
		res.Status = domain.GradeStatusDryRun
	} else {
		res.Status = domain.GradeStatusCompleted
	}
	logger.Info("grade finished",
		"status", res.Status,
		"chapters", res.ChaptersProcessed,
		"chapters_skipped", res.ChaptersSkipped,
		"chunks", res.TotalChunks,
		"without_vector", res.FailedEmbeddings,
	)
	return res
}

// ingestChapter returns the chunks committed, whether the chapter was skipped,
// and an error only when the whole grade must stop. The count is valid
// alongside an error.
func (c *CatalogIngestor) ingestChapter(
	ctx context.Context,
	cat *domain.Catalog,
	book *domain.GradeBook,
	grade int,
	ch domain.Chapter,
	opts CatalogOptions,
	limiter *rate.Limiter,
	res *domain.GradeResult,
) (int, bool, error) {
	logger := c.logger.With("grade", grade, "chapter", ch.Num, "title", ch.Title)

	if !opts.DryRun && len(opts.Chapters) > 0 {
		filter := domain.ChunkFilter{ReferenceGrade: grade, ReferenceChapterNum: ch.Num}
		existing, err := c.vectors.Count(ctx, filter)
		if err != nil {
			return 0, false, fmt.Errorf("failed to check existing chunks: %w", err)
		}
		if existing > 0 {
			if !opts.Force {
				logger.Info("chapter already ingested", "chunks", existing)
				return 0, true, nil
			}
			if _, err := c.vectors.Delete(ctx, filter); err != nil {
				return 0, false, fmt.Errorf("failed to delete chapter: %w", err)
			}
		}
	}

	url, err := cat.ChapterURL(grade, ch)
	if err != nil {
		return 0, false, err
	}
	data, err := c.download(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return 0, false, ctx.Err()
		}
		logger.Warn("skipping chapter, download failed", "url", url, "not_found", errors.Is(err, domain.ErrDownloadNotFound), "error", err)
		return 0, true, nil
	}

	extracted, err := c.extractors.Extract(ctx, data, book.ChapterFile(ch))
	if err != nil {
		logger.Warn("skipping chapter, no text extracted", "error", err)
		return 0, true, nil
	}
	clean := extractors.StripNoise(extracted.Text)
	if domain.WordCount(clean) == 0 {
		logger.Warn("skipping chapter, only boilerplate extracted")
		return 0, true, nil
	}
	logger.Info("chapter extracted", "pages", extracted.Units, "words", domain.WordCount(clean))

	pipeline := postprocessors.NewReferencePipeline(c.chunkSize, c.overlap, book.ContextPrefix(grade, ch))
	texts := postprocessors.Texts(pipeline.Process(clean))

	if opts.DryRun {
		logger.Info("dry run, would produce chunks", "chunks", len(texts))
		return len(texts), false, nil
	}

	var embedder driven.EmbeddingService
	if c.services != nil {
		embedder = c.services.EmbeddingService()
	}
	w := newChunkWriter(c.vectors, c.batchSize, logger)
	defer func() { res.FailedEmbeddings += w.missing }()
	if c.lock != nil {
		w.onFlush = func(ctx context.Context) {
			if err := c.lock.Extend(ctx, CatalogLockName, c.lockTTL); err != nil {
				logger.Warn("failed to extend catalog lock", "error", err)
			}
		}
	}

	ref := &domain.ReferenceMeta{Grade: grade, Chapter: ch.Title, ChapterNum: ch.Num}
	for i, text := range texts {
		var vec []float32
		if embedder != nil {
			if limiter != nil {
				if err := limiter.Wait(ctx); err != nil {
					return w.written, false, err
				}
			}
			vec = embedder.Embed(ctx, text)
		}
		chunk, err := domain.NewChunk(domain.ChunkParams{
			Provenance:  domain.Provenance{Reference: ref},
			Subject:     book.Subject,
			ContentType: domain.ContentTypeReferenceBook,
			Text:        text,
			Index:       i,
			Embedding:   vec,
		})
		if err != nil {
			return w.written, false, err
		}
		if err := w.add(ctx, chunk); err != nil {
			return w.written, false, err
		}
	}
	if err := w.flush(ctx); err != nil {
		return w.written, false, err
	}
	return w.written, false, nil
}

// download serves from the cache when possible and caches fresh bytes.
func (c *CatalogIngestor) download(ctx context.Context, url string) ([]byte, error) {
	if c.cache != nil {
		data, ok, err := c.cache.Get(url)
		if err != nil {
			c.logger.Warn("download cache read failed", "url", url, "error", err)
		} else if ok {
			c.logger.Debug("using cached artifact", "url", url)
			return data, nil
		}
	}

	data, err := c.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Put(url, data); err != nil {
			c.logger.Warn("failed to cache artifact", "url", url, "error", err)
		}
	}
	return data, nil
}

func (c *CatalogIngestor) saveJob(ctx context.Context, job *domain.IngestionJob) {
	if err := c.jobs.Save(context.WithoutCancel(ctx), job); err != nil {
		c.logger.Warn("failed to save job status", "job_id", job.ID, "error", err)
	}
}

func failGrade(res domain.GradeResult, err error) domain.GradeResult {
	res.Status = domain.GradeStatusFailed
	res.Error = err.Error()
	return res
}

func dedupGrades(grades []int) []int {
	if len(grades) == 0 {
		return nil
	}
	seen := make(map[int]bool, len(grades))
	out := make([]int, 0, len(grades))
	for _, g := range grades {
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	sort.Ints(out)
	return out
}
