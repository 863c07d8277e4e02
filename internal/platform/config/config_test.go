package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "inkwell-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "inkwell-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Pricing.TaxRateBasisPoints != 1000 {
		t.Errorf("unexpected default tax rate: %d", cfg.Pricing.TaxRateBasisPoints)
	}
	if cfg.Pricing.ShippingFlatFee != 500 {
		t.Errorf("unexpected default shipping fee: %d", cfg.Pricing.ShippingFlatFee)
	}
	if cfg.Pricing.FreeShippingThreshold != 10000 {
		t.Errorf("unexpected default free shipping threshold: %d", cfg.Pricing.FreeShippingThreshold)
	}
	if cfg.Events.OrderTopic != "order-events" || cfg.Events.StockTopic != "stock-events" {
		t.Errorf("unexpected default event topics: %s / %s", cfg.Events.OrderTopic, cfg.Events.StockTopic)
	}
	if cfg.Events.Enabled {
		t.Error("expected event publishing disabled by default")
	}
	if cfg.RateLimits.PublicPerMinute != 120 {
		t.Errorf("unexpected default public rate limit: %d", cfg.RateLimits.PublicPerMinute)
	}
	if cfg.RateLimits.AuthenticatedPerMinute != 240 {
		t.Errorf("unexpected default authenticated rate limit: %d", cfg.RateLimits.AuthenticatedPerMinute)
	}
	if !cfg.Features.EnablePublicStock {
		t.Error("expected public stock flag enabled by default")
	}
	if !cfg.Features.EnableAuditTrail {
		t.Error("expected audit trail flag enabled by default")
	}
	if cfg.Security.Environment != "local" {
		t.Errorf("expected default security environment local, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.JWKSURL != defaultOIDCJWKSURL {
		t.Errorf("expected default jwks url %s, got %s", defaultOIDCJWKSURL, cfg.Security.OIDC.JWKSURL)
	}
	if len(cfg.Security.OIDC.Issuers) != 2 {
		t.Errorf("expected default issuers, got %v", cfg.Security.OIDC.Issuers)
	}
	if cfg.Security.HMAC.SignatureHeader != defaultHMACSignatureHeader {
		t.Errorf("expected default signature header, got %s", cfg.Security.HMAC.SignatureHeader)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader {
		t.Errorf("expected default idempotency header, got %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected default idempotency ttl: %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != defaultIdempotencyInterval {
		t.Errorf("unexpected default cleanup interval: %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != defaultIdempotencyBatchSize {
		t.Errorf("unexpected default cleanup batch size: %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                     "9090",
		"API_SERVER_READ_TIMEOUT":             "20s",
		"API_SERVER_WRITE_TIMEOUT":            "25s",
		"API_SERVER_IDLE_TIMEOUT":             "2m",
		"API_FIREBASE_PROJECT_ID":             "inkwell-prod",
		"API_FIRESTORE_PROJECT_ID":            "inkwell-fire",
		"API_PRICING_TAX_RATE_BP":             "825",
		"API_PRICING_SHIPPING_FLAT_FEE":       "750",
		"API_PRICING_FREE_SHIPPING_THRESHOLD": "20000",
		"API_EVENTS_ORDER_TOPIC":              "orders-prod",
		"API_EVENTS_STOCK_TOPIC":              "stock-prod",
		"API_EVENTS_ENABLED":                  "true",
		"API_RATELIMIT_PUBLIC_PER_MIN":        "150",
		"API_RATELIMIT_AUTH_PER_MIN":          "300",
		"API_FEATURE_PUBLIC_STOCK":            "false",
		"API_FEATURE_AUDIT_TRAIL":             "true",
		"API_SECURITY_ENVIRONMENT":            "prod",
		"API_SECURITY_OIDC_AUDIENCE":          "https://service.example.com",
		"API_SECURITY_OIDC_ISSUERS":           "https://accounts.google.com, https://cloud.google.com/iap",
		"API_SECURITY_OIDC_JWKS_URL":          "https://example.com/jwks.json",
		"API_SECURITY_HMAC_SECRETS":           "internal/jobs=secret://hmac/jobs,shipping=shipping-secret",
		"API_SECURITY_HMAC_HEADER_SIGNATURE":  "X-Custom-Signature",
		"API_SECURITY_HMAC_CLOCK_SKEW":        "3m",
		"API_SECURITY_HMAC_NONCE_TTL":         "10m",
		"API_IDEMPOTENCY_HEADER":              "X-Idem-Key",
		"API_IDEMPOTENCY_TTL":                 "48h",
		"API_IDEMPOTENCY_CLEANUP_INTERVAL":    "30m",
		"API_IDEMPOTENCY_CLEANUP_BATCH":       "500",
	}

	secrets := map[string]string{
		"secret://hmac/jobs": "jobs-hmac",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Firestore.ProjectID != "inkwell-fire" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Pricing.TaxRateBasisPoints != 825 {
		t.Errorf("unexpected tax rate: %d", cfg.Pricing.TaxRateBasisPoints)
	}
	if cfg.Pricing.ShippingFlatFee != 750 {
		t.Errorf("unexpected shipping fee: %d", cfg.Pricing.ShippingFlatFee)
	}
	if cfg.Pricing.FreeShippingThreshold != 20000 {
		t.Errorf("unexpected free shipping threshold: %d", cfg.Pricing.FreeShippingThreshold)
	}
	if !cfg.Events.Enabled {
		t.Error("expected event publishing enabled")
	}
	if cfg.Events.OrderTopic != "orders-prod" || cfg.Events.StockTopic != "stock-prod" {
		t.Errorf("unexpected event topics: %s / %s", cfg.Events.OrderTopic, cfg.Events.StockTopic)
	}
	if cfg.RateLimits.PublicPerMinute != 150 || cfg.RateLimits.AuthenticatedPerMinute != 300 {
		t.Errorf("unexpected rate limits: %+v", cfg.RateLimits)
	}
	if cfg.Features.EnablePublicStock {
		t.Error("expected public stock flag disabled")
	}
	if !cfg.Features.EnableAuditTrail {
		t.Error("expected audit trail flag enabled")
	}
	if cfg.Security.Environment != "prod" {
		t.Errorf("expected security environment prod, got %s", cfg.Security.Environment)
	}
	if cfg.Security.OIDC.Audience != "https://service.example.com" {
		t.Errorf("unexpected oidc audience %s", cfg.Security.OIDC.Audience)
	}
	if cfg.Security.OIDC.JWKSURL != "https://example.com/jwks.json" {
		t.Errorf("unexpected jwks url %s", cfg.Security.OIDC.JWKSURL)
	}
	if cfg.Security.HMAC.Secrets["internal/jobs"] != "jobs-hmac" {
		t.Errorf("expected resolved jobs hmac secret, got %s", cfg.Security.HMAC.Secrets["internal/jobs"])
	}
	if cfg.Security.HMAC.Secrets["shipping"] != "shipping-secret" {
		t.Errorf("expected shipping secret passthrough, got %s", cfg.Security.HMAC.Secrets["shipping"])
	}
	if cfg.Security.HMAC.SignatureHeader != "X-Custom-Signature" {
		t.Errorf("unexpected signature header %s", cfg.Security.HMAC.SignatureHeader)
	}
	if cfg.Security.HMAC.ClockSkew != 3*time.Minute {
		t.Errorf("unexpected clock skew %s", cfg.Security.HMAC.ClockSkew)
	}
	if cfg.Security.HMAC.NonceTTL != 10*time.Minute {
		t.Errorf("unexpected nonce ttl %s", cfg.Security.HMAC.NonceTTL)
	}
	if cfg.Idempotency.Header != "X-Idem-Key" {
		t.Errorf("unexpected idempotency header %s", cfg.Idempotency.Header)
	}
	if cfg.Idempotency.TTL != 48*time.Hour {
		t.Errorf("unexpected idempotency ttl %s", cfg.Idempotency.TTL)
	}
	if cfg.Idempotency.CleanupInterval != 30*time.Minute {
		t.Errorf("unexpected cleanup interval %s", cfg.Idempotency.CleanupInterval)
	}
	if cfg.Idempotency.CleanupBatchSize != 500 {
		t.Errorf("unexpected cleanup batch size %d", cfg.Idempotency.CleanupBatchSize)
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_SERVER_PORT=7070\nAPI_FIREBASE_PROJECT_ID=inkwell-dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "inkwell-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected ValidationError, got %T", err)
	}
}

func TestLoadRejectsOutOfRangeTaxRate(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "inkwell-dev",
		"API_PRICING_TAX_RATE_BP": "12000",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validationErr.Fields()
	if len(fields) != 1 || fields[0] != "Pricing.TaxRateBasisPoints" {
		t.Fatalf("unexpected invalid fields %v", fields)
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":   "inkwell-dev",
		"API_SECURITY_HMAC_SECRETS": "internal/jobs=secret://missing",
	}

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err == nil {
		t.Fatal("expected secret resolution error, got nil")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "API_FIREBASE_PROJECT_ID=dot-project\nAPI_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("API_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("API_SECRET_PROJECT_IDS", "prod=project-prod")

	overrides := map[string]string{
		"API_FIREBASE_PROJECT_ID": "override-project",
		"API_SECRET_VERSION_PINS": "secret://hmac/jobs=5",
	}

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(overrides))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}

	if got := values["API_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["API_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["API_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
	if got := values["API_SECRET_VERSION_PINS"]; got != "secret://hmac/jobs=5" {
		t.Fatalf("expected override version pin, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "inkwell-dev",
	}

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Security.HMAC.Secrets[internal/jobs]"),
	)
	if err == nil {
		t.Fatal("expected missing secrets error, got nil")
	}
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	expectedRedacted := redactSecretName("Security.HMAC.Secrets[internal/jobs]")
	if got := missing.RedactedNames(); len(got) != 1 || got[0] != expectedRedacted {
		t.Fatalf("unexpected redacted names %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID": "inkwell-dev",
	}

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected panic when required secrets missing")
		}
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if len(missing.Names()) != 1 || missing.Names()[0] != "Security.HMAC.Secrets[internal/jobs]" {
			t.Fatalf("unexpected missing secrets %v", missing.Names())
		}
	}()

	Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithRequiredSecrets("Security.HMAC.Secrets[internal/jobs]"),
		WithPanicOnMissingSecrets(),
	)
}

func TestLoadSupportsLegacySecretScheme(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":   "inkwell-dev",
		"API_SECURITY_HMAC_SECRETS": "internal/jobs=sm://hmac/jobs",
	}

	secrets := map[string]string{
		"secret://hmac/jobs": "legacy-secret",
	}

	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", &SecretError{Ref: ref, Err: errors.New("not found")}
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Security.HMAC.Secrets["internal/jobs"] != "legacy-secret" {
		t.Fatalf("expected legacy secret, got %s", cfg.Security.HMAC.Secrets["internal/jobs"])
	}
}
