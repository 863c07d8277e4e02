// Package secrets resolves secret:// references through Google Secret
// Manager, with an in-process cache and a local fallback file for
// development environments.
package secrets

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultEnvironment  = "local"
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/inkwell-books/api/internal/platform/secrets"
)

// Swapped out in tests that simulate missing credentials.
var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type versionAccessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references, caching values per canonical
// reference and version.
type Fetcher struct {
	client     versionAccessor
	ownsClient bool

	logger *zap.Logger

	env         string
	defaultProj string
	projectMap  map[string]string
	versionPins map[string]string

	fallbackPath string
	fallbackOnce sync.Once
	fallbackVals map[string]string
	fallbackErr  error

	mu       sync.RWMutex
	cache    map[string]cachedSecret
	watchers map[string][]chan struct{}

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type cachedSecret struct {
	value     string
	canonical string
	version   string
	fetchedAt time.Time
	source    string
}

type fetcherOptions struct {
	logger       *zap.Logger
	env          string
	defaultProj  string
	projectMap   map[string]string
	fallbackPath string
	client       versionAccessor
	clientOpts   []option.ClientOption
	versionPins  map[string]string
}

// Option customises Fetcher construction.
type Option func(*fetcherOptions)

// WithLogger sets the diagnostic logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *fetcherOptions) {
		o.logger = logger
	}
}

// WithEnvironment selects the environment key used when resolving
// per-environment project IDs and version pins.
func WithEnvironment(env string) Option {
	return func(o *fetcherOptions) {
		o.env = strings.ToLower(strings.TrimSpace(env))
	}
}

// WithDefaultProject sets the project used when no environment mapping matches.
func WithDefaultProject(projectID string) Option {
	return func(o *fetcherOptions) {
		o.defaultProj = strings.TrimSpace(projectID)
	}
}

// WithProjectMap supplies per-environment project IDs.
func WithProjectMap(m map[string]string) Option {
	return func(o *fetcherOptions) {
		o.projectMap = cloneMap(m)
	}
}

// WithFallbackFile overrides the local fallback secrets file path.
func WithFallbackFile(path string) Option {
	return func(o *fetcherOptions) {
		o.fallbackPath = strings.TrimSpace(path)
	}
}

// WithSecretManagerClient injects a preconfigured client, primarily for tests.
func WithSecretManagerClient(client versionAccessor) Option {
	return func(o *fetcherOptions) {
		o.client = client
	}
}

// WithClientOptions forwards Cloud client options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *fetcherOptions) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// WithVersionPins sets explicit version overrides keyed by canonical
// reference, optionally scoped by environment as "env:ref".
func WithVersionPins(pins map[string]string) Option {
	return func(o *fetcherOptions) {
		o.versionPins = cloneMap(pins)
	}
}

// NewFetcher builds a Fetcher. When the Secret Manager client cannot be
// constructed the fetcher still works in fallback-only mode.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	o := fetcherOptions{
		logger:       zap.NewNop(),
		env:          strings.ToLower(strings.TrimSpace(os.Getenv("API_SECURITY_ENVIRONMENT"))),
		fallbackPath: defaultFallbackPath,
		projectMap:   map[string]string{},
		versionPins:  map[string]string{},
	}
	if o.env == "" {
		o.env = defaultEnvironment
	}

	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	meter := otel.GetMeterProvider().Meter(meterName)

	f := &Fetcher{
		logger:       o.logger,
		env:          o.env,
		defaultProj:  o.defaultProj,
		projectMap:   cloneMap(o.projectMap),
		versionPins:  cloneMap(o.versionPins),
		fallbackPath: o.fallbackPath,
		cache:        make(map[string]cachedSecret),
		watchers:     make(map[string][]chan struct{}),
	}

	if latency, err := meter.Float64Histogram(
		"secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	); err != nil {
		o.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	} else {
		f.latency = latency
	}

	if hits, err := meter.Int64Counter(
		"secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	); err != nil {
		o.logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
	} else {
		f.cacheHits = hits
	}

	if o.client != nil {
		f.client = o.client
	} else {
		client, err := newSecretManagerClient(ctx, o.clientOpts...)
		if err != nil {
			o.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		} else {
			f.client = client
			f.ownsClient = true
		}
	}

	return f, nil
}

// Close releases watcher channels and the owned client.
func (f *Fetcher) Close() error {
	f.mu.Lock()
	for canonical, watchers := range f.watchers {
		delete(f.watchers, canonical)
		for _, ch := range watchers {
			closeQuietly(ch)
		}
	}
	f.mu.Unlock()

	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value behind a secret:// reference. Cached values are
// served directly; remote failures that look like missing credentials or
// infrastructure fall through to the local fallback file.
func (f *Fetcher) Resolve(ctx context.Context, reference string) (string, error) {
	start := time.Now()
	ref, err := parseRef(reference)
	if err != nil {
		return "", err
	}

	version := f.resolveVersion(ref)
	key := refKey(ref.Canonical, version)

	if value, ok := f.cached(key); ok {
		f.observeCacheHit(ctx, ref)
		f.observeLatency(ctx, time.Since(start), "cache", nil)
		return value, nil
	}

	projectID := f.resolveProject(ref)
	fallbackOnly := projectID == "" || f.client == nil

	if !fallbackOnly {
		value, fetchErr := f.accessRemote(ctx, projectID, ref.Name, version)
		if fetchErr == nil {
			f.store(key, value, ref.Canonical, version, "remote")
			f.observeLatency(ctx, time.Since(start), "remote", nil)
			return value, nil
		}

		if !shouldFallback(fetchErr) {
			f.observeLatency(ctx, time.Since(start), "error", fetchErr)
			return "", fmt.Errorf("secrets: fetch failed for %s: %w", ref.Canonical, fetchErr)
		}

		f.logger.Debug("secrets: falling back to local secrets", zap.String("ref", ref.Canonical), zap.Error(fetchErr))
	}

	value, ok := f.fallbackValue(ref, version)
	if !ok {
		err := fmt.Errorf("secrets: fallback value not found for %s", ref.Canonical)
		f.observeLatency(ctx, time.Since(start), "error", err)
		return "", err
	}

	f.store(key, value, ref.Canonical, version, "fallback")
	f.observeLatency(ctx, time.Since(start), "fallback", nil)
	return value, nil
}

// Invalidate drops cached values for the reference and signals subscribers,
// typically after a rotation event.
func (f *Fetcher) Invalidate(reference string) {
	ref, err := parseRef(reference)
	if err != nil {
		return
	}

	f.mu.Lock()
	for key, entry := range f.cache {
		if entry.canonical == ref.Canonical {
			delete(f.cache, key)
		}
	}
	watchers := f.watchers[ref.Canonical]
	f.mu.Unlock()

	signalWatchers(watchers)
}

// Subscribe returns a channel that receives a signal whenever the reference
// is invalidated, plus a cancel func that removes the subscription.
func (f *Fetcher) Subscribe(reference string) (<-chan struct{}, func()) {
	ref, err := parseRef(reference)
	if err != nil {
		ch := make(chan struct{})
		close(ch)
		return ch, func() {}
	}

	ch := make(chan struct{}, 1)

	f.mu.Lock()
	f.watchers[ref.Canonical] = append(f.watchers[ref.Canonical], ch)
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		watchers := f.watchers[ref.Canonical]
		for i, watcher := range watchers {
			if watcher == ch {
				watchers = append(watchers[:i], watchers[i+1:]...)
				break
			}
		}
		if len(watchers) == 0 {
			delete(f.watchers, ref.Canonical)
		} else {
			f.watchers[ref.Canonical] = watchers
		}
	}

	return ch, cancel
}

func (f *Fetcher) cached(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entry, ok := f.cache[key]
	if !ok {
		return "", false
	}
	return entry.value, true
}

func (f *Fetcher) store(key, value, canonical, version, source string) {
	f.mu.Lock()
	f.cache[key] = cachedSecret{
		value:     value,
		canonical: canonical,
		version:   version,
		fetchedAt: time.Now(),
		source:    source,
	}
	f.mu.Unlock()
}

func (f *Fetcher) accessRemote(ctx context.Context, projectID, name, version string) (string, error) {
	if f.client == nil {
		return "", errors.New("secrets: secret manager client not configured")
	}

	resource := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", projectID, name, version)
	resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource})
	if err != nil {
		return "", err
	}
	if resp == nil || resp.Payload == nil {
		return "", fmt.Errorf("secret manager returned empty payload for %s", resource)
	}
	return string(resp.Payload.GetData()), nil
}

func (f *Fetcher) resolveProject(ref secretRef) string {
	if ref.Project != "" {
		return ref.Project
	}
	if id, ok := f.projectMap[f.env]; ok && strings.TrimSpace(id) != "" {
		return strings.TrimSpace(id)
	}
	return strings.TrimSpace(f.defaultProj)
}

func (f *Fetcher) resolveVersion(ref secretRef) string {
	if ref.Version != "" {
		return ref.Version
	}

	if pin, ok := f.versionPins[envScopedKey(f.env, ref.Canonical)]; ok && strings.TrimSpace(pin) != "" {
		return strings.TrimSpace(pin)
	}
	if pin, ok := f.versionPins[ref.Canonical]; ok && strings.TrimSpace(pin) != "" {
		return strings.TrimSpace(pin)
	}

	return "latest"
}

func (f *Fetcher) fallbackValue(ref secretRef, version string) (string, bool) {
	f.loadFallbackFile()

	if f.fallbackErr != nil {
		f.logger.Debug("secrets: fallback load error", zap.Error(f.fallbackErr))
		return "", false
	}

	if val, ok := f.fallbackVals[refKey(ref.Canonical, version)]; ok {
		return val, true
	}
	if val, ok := f.fallbackVals[ref.Canonical]; ok {
		return val, true
	}
	return "", false
}

// loadFallbackFile parses the fallback file once. Lines are KEY=value, with
// blank lines and #-comments skipped; keys may be secret:// or sm://
// references or plain names.
func (f *Fetcher) loadFallbackFile() {
	f.fallbackOnce.Do(func() {
		path := strings.TrimSpace(f.fallbackPath)
		if path == "" {
			f.fallbackVals = map[string]string{}
			return
		}

		absPath, err := filepath.Abs(path)
		if err != nil {
			absPath = path
		}

		file, err := os.Open(absPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				f.fallbackVals = map[string]string{}
				return
			}
			f.fallbackErr = fmt.Errorf("secrets: unable to open fallback file %s: %w", absPath, err)
			f.fallbackVals = map[string]string{}
			return
		}
		defer file.Close()

		scanner := bufio.NewScanner(file)
		values := make(map[string]string)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			key, value, found := strings.Cut(line, "=")
			if !found {
				continue
			}
			key = normalizeFallbackKey(key)
			value = strings.TrimSpace(value)
			if key == "" {
				continue
			}
			if ref, err := parseRef(key); err == nil {
				version := ref.Version
				if version == "" {
					version = "latest"
				}
				values[ref.Canonical] = value
				values[refKey(ref.Canonical, version)] = value
			} else {
				values[key] = value
			}
		}
		if err := scanner.Err(); err != nil {
			f.fallbackErr = fmt.Errorf("secrets: failed reading %s: %w", absPath, err)
		}
		f.fallbackVals = values
	})
}

func (f *Fetcher) observeLatency(ctx context.Context, d time.Duration, source string, err error) {
	if f.latency == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.String("error", err.Error()))
	}
	f.latency.Record(ctx, float64(d)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func (f *Fetcher) observeCacheHit(ctx context.Context, ref secretRef) {
	if f.cacheHits == nil {
		return
	}
	f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", digestRef(ref.Canonical))))
}

func signalWatchers(watchers []chan struct{}) {
	for _, ch := range watchers {
		if ch == nil {
			continue
		}
		func() {
			defer func() {
				_ = recover()
			}()
			select {
			case ch <- struct{}{}:
			default:
			}
		}()
	}
}

func closeQuietly(ch chan struct{}) {
	defer func() {
		_ = recover()
	}()
	close(ch)
}

type secretRef struct {
	Raw       string
	Canonical string
	Name      string
	Version   string
	Project   string
}

// parseRef accepts secret://name[?version=N][&project=ID] references. The
// canonical form strips the query so pins and cache keys line up.
func parseRef(reference string) (secretRef, error) {
	if strings.TrimSpace(reference) == "" {
		return secretRef{}, errors.New("secrets: empty reference")
	}
	u, err := url.Parse(reference)
	if err != nil {
		return secretRef{}, fmt.Errorf("secrets: invalid reference %q: %w", reference, err)
	}
	if u.Scheme != "secret" {
		return secretRef{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name := strings.Trim(strings.TrimPrefix(u.Host+u.Path, "/"), "/")
	if name == "" {
		return secretRef{}, fmt.Errorf("secrets: missing secret name in %q", reference)
	}

	canonical := *u
	canonical.RawQuery = ""
	canonical.Fragment = ""

	query := u.Query()

	return secretRef{
		Raw:       reference,
		Canonical: canonical.String(),
		Name:      name,
		Version:   strings.TrimSpace(query.Get("version")),
		Project:   strings.TrimSpace(query.Get("project")),
	}, nil
}

func refKey(canonical, version string) string {
	return canonical + "#" + version
}

func envScopedKey(env, canonical string) string {
	if strings.TrimSpace(env) == "" {
		return canonical
	}
	return env + ":" + canonical
}

func cloneMap(src map[string]string) map[string]string {
	if src == nil {
		return map[string]string{}
	}
	return maps.Clone(src)
}

// digestRef keeps secret names out of metric labels.
func digestRef(canonical string) string {
	h := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(h[:8])
}

// shouldFallback reports whether the error looks like missing access or
// infrastructure rather than a missing secret.
func shouldFallback(err error) bool {
	if err == nil {
		return false
	}
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}

func normalizeFallbackKey(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}
