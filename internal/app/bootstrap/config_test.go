package bootstrap_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/b2aeddine/collabmarket-56-sub000/internal/app/bootstrap"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/domain"
	"github.com/b2aeddine/collabmarket-56-sub000/internal/ports"
)

const localConfig = `
service:
  id: escrow-test
  http_port: 18080
storage:
  driver: memory
processor:
  driver: sandbox
  timeout_seconds: 3
auth:
  issuer: collabmarket-identity
  key_id: test-key
  allow_ephemeral: true
escrow:
  commission_rate: "0.12"
  max_order_amount: "5000"
  currency: EUR
  contest_window_hours: 72
worker:
  sweep_interval_seconds: 60
  sweeps: [reconcile, auto_confirm]
http:
  rate_limit_per_second: 5
fixtures:
  offers:
    - id: offer-1
      influencer_id: influencer-1
      title: Story
      price: "120.00"
      currency: eur
  influencers:
    - id: influencer-1
      connected_account_id: acct_sbx_1
  merchants:
    - id: merchant-1
      email: shop@example.com
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromFile(t *testing.T) {
	cfg, err := bootstrap.LoadConfig(writeConfig(t, localConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceID != "escrow-test" || cfg.HTTPPort != 18080 || cfg.GRPCPort != 9090 {
		t.Fatalf("unexpected service section %+v", cfg)
	}
	if cfg.StorageDriver != bootstrap.StorageMemory || cfg.ProcessorDriver != bootstrap.ProcessorSandbox {
		t.Fatalf("unexpected drivers %s/%s", cfg.StorageDriver, cfg.ProcessorDriver)
	}
	if !cfg.CommissionRate.Equal(decimal.RequireFromString("0.12")) || cfg.Currency != "eur" {
		t.Fatalf("unexpected escrow settings %s %s", cfg.CommissionRate, cfg.Currency)
	}
	if cfg.ContestWindowHours != 72 || cfg.CheckoutWindowHours != 24 {
		t.Fatalf("file values should override only what they set, got %d/%d", cfg.ContestWindowHours, cfg.CheckoutWindowHours)
	}
	if cfg.ProcessorTimeout != 3*time.Second || cfg.SweepInterval != time.Minute || len(cfg.SweepNames) != 2 {
		t.Fatalf("unexpected timings %+v", cfg)
	}
	if len(cfg.Fixtures.Offers) != 1 || cfg.Fixtures.Influencers[0].ConnectedAccountID != "acct_sbx_1" {
		t.Fatalf("fixtures not loaded: %+v", cfg.Fixtures)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("COMMISSION_RATE", "0.15")
	t.Setenv("SWEEPS", "expire_checkouts, ,auto_confirm")
	t.Setenv("HTTP_PORT", "not-a-port")
	t.Setenv("CURRENCY", "USD")

	cfg, err := bootstrap.LoadConfig(writeConfig(t, localConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !cfg.CommissionRate.Equal(decimal.RequireFromString("0.15")) {
		t.Fatalf("env commission should win, got %s", cfg.CommissionRate)
	}
	if strings.Join(cfg.SweepNames, ",") != "expire_checkouts,auto_confirm" {
		t.Fatalf("unexpected sweeps %v", cfg.SweepNames)
	}
	if cfg.HTTPPort != 18080 {
		t.Fatalf("invalid integers fall back to the file value, got %d", cfg.HTTPPort)
	}
	if cfg.Currency != "usd" {
		t.Fatalf("currency should be lower-cased, got %s", cfg.Currency)
	}
}

func TestLoadConfigRejections(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "postgres without url", env: map[string]string{"STORAGE_DRIVER": "postgres"}, want: "DB_URL"},
		{name: "stripe without key", env: map[string]string{"PROCESSOR_DRIVER": "stripe"}, want: "STRIPE_SECRET_KEY"},
		{name: "unknown storage", env: map[string]string{"STORAGE_DRIVER": "sqlite"}, want: "unsupported storage"},
		{name: "commission of one", env: map[string]string{"COMMISSION_RATE": "1"}, want: "commission rate"},
		{name: "unparsable commission", env: map[string]string{"COMMISSION_RATE": "ten percent"}, want: "COMMISSION_RATE"},
		{name: "non-positive max", env: map[string]string{"MAX_ORDER_AMOUNT": "0"}, want: "max order amount"},
		{name: "no jwt keys", env: map[string]string{"JWT_ALLOW_EPHEMERAL": "false"}, want: "JWT_PUBLIC_KEY_PEM"},
	}
	path := writeConfig(t, localConfig)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := bootstrap.LoadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestMissingConfigFileUsesDefaults(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("PROCESSOR_DRIVER", "sandbox")
	t.Setenv("JWT_ALLOW_EPHEMERAL", "yes")

	cfg, err := bootstrap.LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.AuthorizationWindowHours != 144 || !cfg.MaxOrderAmount.Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestBuildLocalRuntime(t *testing.T) {
	cfg, err := bootstrap.LoadConfig(writeConfig(t, localConfig))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	rt, err := bootstrap.Build(ctx, cfg, bootstrap.BuildOptions{})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(func() { rt.Close(ctx) })

	if err := rt.Migrate(ctx); err == nil {
		t.Fatalf("memory storage has no schema to migrate")
	}

	signer, err := rt.TokenSigner()
	if err != nil {
		t.Fatalf("token signer: %v", err)
	}
	token, err := signer.Sign(ports.AuthClaims{SubjectID: "merchant-1", Role: domain.RoleMerchant})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	router := rt.HTTPHandler()
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/checkout", strings.NewReader(`{"offer_id":"offer-1"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("checkout against fixtures: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"net_amount":"105.60"`) {
		t.Fatalf("expected a 12%% commission split, got %s", rec.Body.String())
	}
}
