// Package engine runs the validation chain over documents and turns the
// outcome into a Response.
//
// New performs the startup sequence: structural rules, then the terminology
// services, then the profile package, then the chain
// [profile, structural, terminology, common], wrapped in the result cache.
// A profile package that cannot be loaded leaves a no-op profile checker in
// place; every other checker keeps running.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gofhir/epadoc"
	"github.com/gofhir/epadoc/cache"
	"github.com/gofhir/epadoc/model"
	"github.com/gofhir/epadoc/pkg/loader"
	"github.com/gofhir/epadoc/pkg/structural"
	"github.com/gofhir/epadoc/profile"
	"github.com/gofhir/epadoc/service"
	"github.com/gofhir/epadoc/terminology"
	"github.com/gofhir/epadoc/worker"
)

// Engine is the validation orchestrator. It is safe for concurrent use.
type Engine struct {
	options *epadoc.Options
	logger  zerolog.Logger

	chain   *service.Chain
	cache   *service.ResultCache
	metrics *epadoc.Metrics

	memory   *terminology.Memory
	bindings *service.TerminologyChain
	registry *profile.Registry
	pkg      *loader.Package
}

// New creates an engine and loads its rules.
// It fails only when the embedded terminology cannot be read.
func New(ctx context.Context, opts ...epadoc.Option) (*Engine, error) {
	options := epadoc.DefaultOptions()
	for _, opt := range opts {
		opt(options)
	}

	e := &Engine{
		options:  options,
		logger:   options.Logger,
		metrics:  options.Metrics,
		memory:   terminology.NewMemory(),
		registry: profile.NewRegistry(),
	}
	if e.metrics == nil {
		e.metrics = epadoc.NewMetrics()
	}

	sc := structural.New()
	e.logger.Info().Int("kinds", sc.Rules()).Msg("loaded structural rules")

	stats, err := e.memory.LoadSeed()
	if err != nil {
		return nil, fmt.Errorf("load terminology seed: %w", err)
	}
	e.bindings = service.NewTerminologyChain(e.memory)
	common, err := terminology.NewCommon(e.bindings)
	if err != nil {
		return nil, fmt.Errorf("load common code systems: %w", err)
	}
	e.logger.Info().
		Int("codeSystems", stats.CodeSystemsLoaded).
		Int("valueSets", stats.ValueSetsLoaded).
		Msg("loaded terminology")

	pc := e.loadProfiles(ctx)

	var tc, cc service.Checker = terminology.NewChecker(e.memory), common
	if !options.ValidateTerminology {
		tc = service.Null{Label: terminology.CheckerName}
		cc = service.Null{Label: terminology.CommonName}
	}

	chain := service.NewChain(pc, sc, tc, cc)
	if options.EnableCache {
		e.cache = service.NewResultCache()
		chain = service.NewCachingChain(chain, e.cache)
	}
	e.chain = chain

	e.logger.Info().Strs("chain", chain.Names()).Bool("cache", options.EnableCache).Msg("validation engine ready")
	return e, nil
}

// loadProfiles loads the profile package and returns the profile checker,
// or a no-op stand-in when the package is unavailable.
func (e *Engine) loadProfiles(ctx context.Context) service.Checker {
	o := e.options
	degraded := service.Null{Label: profile.Name}

	if o.SkipPackage {
		e.logger.Info().Msg("profile package disabled")
		return degraded
	}

	l := loader.NewLoader(o.PackageCacheDir)
	pkg, err := l.Load(ctx, o.Package, loader.Source{
		Data: o.PackageData,
		File: o.PackageFile,
		URL:  o.PackageURL,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("package", o.Package.String()).
			Msg("profile package unavailable, profile checks disabled")
		return degraded
	}
	e.pkg = pkg

	loaded, failed := e.registry.LoadPackage(pkg)
	termStats := e.memory.LoadPackage(pkg)
	e.logger.Info().
		Str("package", pkg.Ref().String()).
		Int("profiles", loaded).
		Int("failed", failed).
		Int("codeSystems", termStats.CodeSystemsLoaded).
		Int("valueSets", termStats.ValueSetsLoaded).
		Msg("loaded profile package")

	var bindings service.CodeValidator = service.NullTerminologyService{}
	if o.ValidateTerminology {
		bindings = e.bindings
	}
	return profile.New(e.registry,
		profile.WithTerminology(bindings),
		profile.WithErrorForUnknownProfiles(o.ErrorForUnknownProfiles),
		profile.WithExtensibleWarnings(!o.NoExtensibleWarnings),
	)
}

// NewFromCheckers creates an engine over an explicit chain. No rules are
// loaded and nothing is cached.
func NewFromCheckers(logger zerolog.Logger, checkers ...service.Checker) *Engine {
	return &Engine{
		options:  epadoc.DefaultOptions(),
		logger:   logger,
		chain:    service.NewChain(checkers...),
		metrics:  epadoc.NewMetrics(),
		memory:   terminology.NewMemory(),
		registry: profile.NewRegistry(),
	}
}

// ValidateJSON parses data and validates it. A parse failure yields a
// single root ERROR.
func (e *Engine) ValidateJSON(ctx context.Context, data []byte) *epadoc.Response {
	start := time.Now()
	doc, err := model.Parse(data)
	if err != nil {
		return e.parseFailure(start, err)
	}
	return e.validate(ctx, start, doc)
}

// ValidateBundle validates a built bundle.
func (e *Engine) ValidateBundle(ctx context.Context, b *model.Bundle) *epadoc.Response {
	start := time.Now()
	doc, err := model.FromBundle(b)
	if err != nil {
		return e.parseFailure(start, err)
	}
	return e.validate(ctx, start, doc)
}

// ValidateDocument validates a parsed document.
func (e *Engine) ValidateDocument(ctx context.Context, doc *model.Document) *epadoc.Response {
	return e.validate(ctx, time.Now(), doc)
}

// ValidateBatch validates docs on the engine's worker count. Responses are
// in input order.
func (e *Engine) ValidateBatch(ctx context.Context, docs [][]byte) []*epadoc.Response {
	return worker.NewBatchValidator(e, e.options.WorkerCount).Responses(ctx, docs)
}

func (e *Engine) parseFailure(start time.Time, err error) *epadoc.Response {
	e.metrics.RecordParseFailure()
	e.logger.Debug().Err(err).Msg("document parse failed")
	resp := epadoc.ErrorResponse("Failed to parse JSON: " + err.Error())
	e.metrics.RecordValidation(time.Since(start), resp)
	return resp
}

// validate runs every checker in order. A checker fault becomes one ERROR
// and the remaining checkers still run.
func (e *Engine) validate(ctx context.Context, start time.Time, doc *model.Document) *epadoc.Response {
	var msgs epadoc.Messages

	for _, c := range e.chain.Checkers() {
		t0 := time.Now()
		found, err := e.run(ctx, c, doc)
		e.metrics.RecordChecker(c.Name(), time.Since(t0), len(found))
		if err != nil {
			e.fault(c.Name(), doc, err)
			msgs.Error("", "Validation error: %s: %v", c.Name(), err)
			continue
		}
		msgs.Append(found...)
	}

	resp := epadoc.NewResponse(msgs.List())
	elapsed := time.Since(start)
	e.metrics.RecordValidation(elapsed, resp)

	if ev := e.logger.Debug(); ev.Enabled() {
		ev.Str("fingerprint", doc.Fingerprint()).
			Str("kind", doc.Kind()).
			Bool("valid", resp.Valid()).
			Int("errors", resp.ErrorCount()).
			Int("warnings", resp.WarningCount()).
			Dur("duration", elapsed).
			Msg("validation finished")
	}
	return resp
}

func (e *Engine) run(ctx context.Context, c service.Checker, doc *model.Document) ([]epadoc.Message, error) {
	cc, ok := c.(*service.CachingChecker)
	if !ok {
		return service.SafeCheck(ctx, c, doc)
	}
	found, cached, err := cc.CheckCached(ctx, doc)
	if err == nil {
		if cached {
			e.metrics.RecordCacheHit()
		} else {
			e.metrics.RecordCacheMiss()
		}
	}
	return found, err
}

func (e *Engine) fault(checker string, doc *model.Document, err error) {
	e.metrics.RecordCheckerFault()
	ev := e.logger.Error().Err(err).Str("checker", checker).Str("fingerprint", doc.Fingerprint())
	var fe *service.FaultError
	if errors.As(err, &fe) {
		ev = ev.Interface("panic", fe.Value).Bytes("stack", fe.Stack)
	}
	ev.Msg("checker fault")
}

// Checkers returns the checker names in execution order.
func (e *Engine) Checkers() []string {
	return e.chain.Names()
}

// Metrics returns the engine's metrics.
func (e *Engine) Metrics() *epadoc.Metrics {
	return e.metrics
}

// CacheStats are the result cache statistics.
type CacheStats = cache.Stats

// CacheStats returns the result cache statistics. ok is false when
// caching is disabled.
func (e *Engine) CacheStats() (stats CacheStats, ok bool) {
	if e.cache == nil {
		return CacheStats{}, false
	}
	return e.cache.Stats(), true
}

// ProfilePackage returns the loaded profile package, or nil when the
// profile checker is disabled.
func (e *Engine) ProfilePackage() *loader.Package {
	return e.pkg
}

// Profiles returns the canonical URLs of the loaded profiles.
func (e *Engine) Profiles() []string {
	return e.registry.URLs()
}

// Terminology returns the in-memory terminology store.
func (e *Engine) Terminology() *terminology.Memory {
	return e.memory
}

// Options returns the engine's options.
func (e *Engine) Options() *epadoc.Options {
	return e.options
}
