// Package pipeline runs the page recognition pipeline: every page of a loaded
// document is rasterized and recognized as an independent unit on a bounded
// worker pool, and the results are reassembled in page order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/ocrflow/internal/loader"
	"github.com/Lllllllleong/ocrflow/internal/models"
	"github.com/Lllllllleong/ocrflow/internal/ocr"
	"github.com/Lllllllleong/ocrflow/internal/raster"
	"github.com/Lllllllleong/ocrflow/internal/scratch"
	"github.com/Lllllllleong/ocrflow/internal/textlayer"
)

// textLayerEngine names results taken from a PDF's embedded text.
const textLayerEngine = "textlayer"

const instrumentationName = "github.com/Lllllllleong/ocrflow/internal/pipeline"

// Input is a raw document submitted for recognition. Options override the
// pipeline defaults field by field.
type Input struct {
	DocumentID  string
	Name        string
	Content     []byte
	ContentType string
	Options     *models.RecognizeOptions
}

// Pipeline loads documents and recognizes their pages. It holds no per-document
// state, so one Pipeline serves concurrent requests.
type Pipeline struct {
	loader     *loader.Loader
	rasterizer raster.Engine
	recognizer ocr.Engine
	scratch    scratch.Provider
	defaults   Options
}

// New creates a Pipeline. defaults apply to every run unless a request
// overrides them.
func New(l *loader.Loader, rasterizer raster.Engine, recognizer ocr.Engine, provider scratch.Provider, defaults Options) *Pipeline {
	return &Pipeline{
		loader:     l,
		rasterizer: rasterizer,
		recognizer: recognizer,
		scratch:    provider,
		defaults:   defaults,
	}
}

// Defaults returns the options applied when a request overrides nothing.
func (p *Pipeline) Defaults() Options { return p.defaults }

// Recognize loads in and runs it. Load failures are returned as
// models.ErrUnsupportedFormat or models.ErrCorruptDocument.
func (p *Pipeline) Recognize(ctx context.Context, in Input) (*models.Transcript, error) {
	doc, opts, err := p.Prepare(in)
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, doc, opts)
}

// Prepare loads in and resolves its options without recognizing anything.
func (p *Pipeline) Prepare(in Input) (*models.Document, Options, error) {
	opts := p.defaults.Merge(in.Options)
	if err := opts.Validate(); err != nil {
		return nil, Options{}, err
	}
	doc, err := p.loader.Load(in.DocumentID, in.Name, in.Content, declaredType(in))
	if err != nil {
		return nil, Options{}, err
	}
	return doc, opts, nil
}

func declaredType(in Input) string {
	if in.ContentType != "" && in.ContentType != "application/octet-stream" {
		return in.ContentType
	}
	return in.Name
}

// Run recognizes every page of doc. It always returns one result per page in
// page order. The only error after a successful start is a cancellation or
// document timeout that left no page recognized; the all-failed transcript is
// returned alongside it.
func (p *Pipeline) Run(ctx context.Context, doc *models.Document, opts Options) (*models.Transcript, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "recognize document", trace.WithAttributes(
		attribute.String("document.id", doc.ID),
		attribute.Int("document.pages", doc.PageCount()),
		attribute.Int("pipeline.concurrency", opts.Concurrency),
		attribute.Int("pipeline.dpi", opts.DPI),
	))
	defer span.End()

	logCtx := slog.With("documentId", doc.ID, "pageCount", doc.PageCount())
	logCtx.Info("Starting document recognition.", "concurrency", opts.Concurrency, "dpi", opts.DPI, "engine", p.recognizer.Name())
	started := time.Now()

	if opts.DocumentTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.DocumentTimeout)
		defer cancel()
	}

	space, err := p.scratch.NewSpace(doc.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "scratch space unavailable")
		return nil, fmt.Errorf("failed to open scratch space: %w", err)
	}

	b := &batch{
		pipeline: p,
		doc:      doc,
		space:    space,
		opts:     opts,
		log:      logCtx,
		results:  make(chan models.RecognitionResult, doc.PageCount()),

		dispatched: make(chan struct{}),
	}
	results, interrupted := b.run(ctx)

	transcript := Assemble(doc.ID, doc.PageCount(), results)
	succeeded := transcript.SucceededPages()
	failed := transcript.FailedPages()

	span.SetAttributes(
		attribute.String("document.status", string(transcript.Status)),
		attribute.Int("document.failed_pages", len(failed)),
	)
	logCtx.Info("Document recognition finished.",
		"status", transcript.Status,
		"succeededPages", succeeded,
		"failedPages", failed,
		"interrupted", interrupted,
		"elapsed", time.Since(started).String(),
	)

	if ctx.Err() != nil && succeeded == 0 && hasCancelledPage(transcript) {
		err := fmt.Errorf("%w: document %s stopped before any page was recognized: %w", models.ErrCancelled, doc.ID, context.Cause(ctx))
		span.RecordError(err)
		span.SetStatus(codes.Error, "cancelled")
		return transcript, err
	}
	return transcript, nil
}

func hasCancelledPage(t *models.Transcript) bool {
	for _, p := range t.Pages {
		if p.Cause == models.CauseCancelled {
			return true
		}
	}
	return false
}

// batch is the state of one Run.
type batch struct {
	pipeline *Pipeline
	doc      *models.Document
	space    scratch.Space
	opts     Options
	log      *slog.Logger

	// results receives exactly one value per dispatched page. It is buffered to
	// the page count so a unit never blocks after collection has stopped.
	results chan models.RecognitionResult

	dispatched chan struct{} // closed once no more units will be started
	group      errgroup.Group
	background sync.WaitGroup // engine goroutines, which may outlive their unit
	abandoned  atomic.Int32   // units that returned before their engines did

	textOnce sync.Once
	textDoc  *textlayer.Document
	textErr  error
}

// run dispatches every page and collects results until all pages reported or
// ctx is done. It reports whether collection was cut short.
func (b *batch) run(ctx context.Context) (map[int]models.RecognitionResult, bool) {
	b.group.SetLimit(b.opts.Concurrency)

	go func() {
		defer close(b.dispatched)
		for _, ref := range b.doc.Pages {
			if ctx.Err() != nil {
				break
			}
			index := ref.Index
			b.group.Go(func() error {
				b.results <- b.unit(ctx, index)
				return nil
			})
		}
	}()

	n := b.doc.PageCount()
	collected := make(map[int]models.RecognitionResult, n)
	interrupted := false
collect:
	for len(collected) < n {
		select {
		case r := <-b.results:
			collected[r.PageIndex] = r
		case <-ctx.Done():
			interrupted = true
			break collect
		}
	}

	if !interrupted {
		<-b.dispatched
		_ = b.group.Wait()
		if n := b.abandoned.Load(); n > 0 {
			// Engines that ignored their deadline still own a payload; close
			// the space once they return instead of waiting for them here.
			b.log.Warn("Engines still running after their page timed out; releasing scratch space in the background.", "abandonedPages", n)
			go b.finish()
		} else {
			b.finish()
		}
		return collected, false
	}

	// Results already sitting in the channel belong to units that completed,
	// so they are kept. Units still running are abandoned and whatever they
	// send later is never read.
drain:
	for {
		select {
		case r := <-b.results:
			if _, ok := collected[r.PageIndex]; !ok {
				collected[r.PageIndex] = r
			}
		default:
			break drain
		}
	}
	b.log.Warn("Document processing interrupted; in-flight pages abandoned.", "collected", len(collected), "error", context.Cause(ctx))
	go b.cleanup()
	return collected, true
}

// cleanup waits for every unit, then finishes the batch.
func (b *batch) cleanup() {
	<-b.dispatched
	_ = b.group.Wait()
	b.finish()
}

// finish waits for every engine goroutine, then releases per-document engine
// state and closes the scratch space.
func (b *batch) finish() {
	b.background.Wait()
	if r, ok := b.pipeline.rasterizer.(raster.Releaser); ok {
		r.Release(b.doc)
	}
	if err := b.space.Close(); err != nil {
		b.log.Error("Failed to close scratch space.", "error", err)
	}
}

// unit rasterizes and recognizes one page and always returns its result. The
// page timeout covers the whole unit. Engines run on a separate goroutine so a
// unit returns at its deadline even if an engine ignores its context.
func (b *batch) unit(ctx context.Context, index int) models.RecognitionResult {
	started := time.Now()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "recognize page", trace.WithAttributes(
		attribute.String("document.id", b.doc.ID),
		attribute.Int("page.index", index),
	))
	defer span.End()

	if ctx.Err() != nil {
		err := fmt.Errorf("%w: page %d was not started: %w", models.ErrCancelled, index, context.Cause(ctx))
		span.SetStatus(codes.Error, string(models.CauseCancelled))
		return models.FailedResult(index, err)
	}

	var (
		pageCtx context.Context
		cancel  context.CancelFunc
	)
	if b.opts.PageTimeout > 0 {
		pageCtx, cancel = context.WithTimeout(ctx, b.opts.PageTimeout)
	} else {
		pageCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	type outcome struct {
		res models.RecognitionResult
		err error
	}
	done := make(chan outcome, 1)
	b.background.Add(1)
	go func() {
		defer b.background.Done()
		res, err := b.process(pageCtx, index)
		done <- outcome{res, err}
	}()

	var res models.RecognitionResult
	var err error
	select {
	case o := <-done:
		res, err = o.res, o.err
	case <-pageCtx.Done():
		err = pageCtx.Err()
		b.abandoned.Add(1)
	}

	if err != nil {
		err = b.classify(ctx, pageCtx, index, err)
		res = models.FailedResult(index, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(res.Cause))
		b.log.Warn("Page failed.", "page", index, "cause", res.Cause, "error", err)
	}
	res.ElapsedMillis = time.Since(started).Milliseconds()
	span.SetAttributes(attribute.String("page.status", string(res.Status)))
	return res
}

// classify turns a context error caused by the page deadline or by the
// document being stopped into a timeout or cancellation.
func (b *batch) classify(parent, pageCtx context.Context, index int, err error) error {
	if pageCtx.Err() == nil || !(errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return err
	}
	if parent.Err() != nil {
		return fmt.Errorf("%w: page %d: %w", models.ErrCancelled, index, context.Cause(parent))
	}
	return fmt.Errorf("%w: page %d did not finish within %s", models.ErrTimeout, index, b.opts.PageTimeout)
}

// process runs the engines for one page. The raster payload is released as
// soon as recognition returns, whatever the outcome.
func (b *batch) process(ctx context.Context, index int) (models.RecognitionResult, error) {
	if res, ok := b.fromTextLayer(index); ok {
		return res, nil
	}

	p := b.pipeline
	page, err := p.rasterizer.Rasterize(ctx, raster.Request{
		Document:  b.doc,
		PageIndex: index,
		DPI:       b.opts.DPI,
		Space:     b.space,
	})
	if err != nil {
		return models.RecognitionResult{}, fmt.Errorf("%w: page %d: %w", models.ErrRasterizationFailed, index, err)
	}
	defer func() {
		if err := page.Payload.Release(); err != nil {
			b.log.Error("Failed to release page raster.", "page", index, "error", err)
		}
	}()

	img, err := page.Payload.Bytes()
	if err != nil {
		return models.RecognitionResult{}, fmt.Errorf("%w: page %d: %w", models.ErrRasterizationFailed, index, err)
	}

	out, err := p.recognizer.Recognize(ctx, ocr.Input{
		PageIndex:   index,
		Image:       img,
		Format:      page.Format,
		DPI:         page.DPI,
		Languages:   b.opts.Languages,
		PageSegMode: b.opts.PageSegMode,
	})
	if err != nil {
		return models.RecognitionResult{}, fmt.Errorf("%w: page %d: %w", models.ErrRecognitionFailed, index, err)
	}
	if out == nil {
		return models.RecognitionResult{}, fmt.Errorf("%w: page %d: engine returned no output", models.ErrRecognitionFailed, index)
	}

	status := models.PageStatusOK
	if out.Confidence != nil && *out.Confidence < b.opts.ConfidenceThreshold {
		status = models.PageStatusLowConfidence
	}
	return models.RecognitionResult{
		PageIndex:  index,
		Text:       out.Text,
		Confidence: out.Confidence,
		Status:     status,
		DPI:        page.DPI,
		Engine:     p.recognizer.Name(),
	}, nil
}

// fromTextLayer returns the page's embedded text when the run reads text
// layers and the page carries enough of it. Any problem reading the layer
// sends the page to OCR.
func (b *batch) fromTextLayer(index int) (models.RecognitionResult, bool) {
	if !b.opts.TextLayer || b.doc.Format != models.FormatPDF {
		return models.RecognitionResult{}, false
	}
	b.textOnce.Do(func() {
		b.textDoc, b.textErr = textlayer.Open(b.doc.Content())
		if b.textErr != nil {
			b.log.Warn("Text layer unavailable; every page will be recognized.", "error", b.textErr)
		}
	})
	if b.textErr != nil {
		return models.RecognitionResult{}, false
	}

	text, err := b.textDoc.PageText(index)
	if err != nil {
		b.log.Warn("Failed to read page text layer.", "page", index, "error", err)
		return models.RecognitionResult{}, false
	}
	if !textlayer.Usable(text, b.opts.TextLayerMinChars) {
		return models.RecognitionResult{}, false
	}
	return models.RecognitionResult{
		PageIndex: index,
		Text:      ocr.NormalizeText(text),
		Status:    models.PageStatusOK,
		Engine:    textLayerEngine,
	}, true
}
