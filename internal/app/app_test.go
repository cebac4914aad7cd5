package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nutriscan/internal/config"
	"nutriscan/internal/events"
	"nutriscan/internal/model"
	"nutriscan/internal/store"
)

func testConfig(t *testing.T, offURL string) *config.Config {
	t.Helper()
	return &config.Config{
		DataDir:          t.TempDir(),
		StoreBackend:     store.BackendBolt,
		OFFBaseURL:       offURL,
		OFFLanguage:      "fr",
		OFFTimeout:       2 * time.Second,
		OFFRatePerMinute: 60000,
		ScanDebounce:     20 * time.Millisecond,
		HistoryLimit:     50,
		ProductsLimit:    10,
		FlushInterval:    "@every 1h",
	}
}

func TestScanToHistoryEndToEnd(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":1,"product":{"code":"3017620422003","product_name":"Nutella",
			"nutriments":{"energy_100g":300,"fat_100g":10,"carbohydrates_100g":20,"sugars_100g":15,
			"fiber_100g":5,"proteins_100g":10,"salt_100g":0.5}}}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	cfg := testConfig(t, srv.URL)
	a, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := a.StartBackgroundJobs(); err != nil {
		t.Fatalf("StartBackgroundJobs: %v", err)
	}

	navigated := make(chan string, 1)
	if err := a.Bus().Subscribe(events.TopicNavigate, func(ev events.Navigate) {
		navigated <- ev.Code
	}); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := a.Scanner().OnScanEvent(model.ScanEvent{Data: "3017620422003", Type: "ean13"}); err != nil {
		t.Fatalf("OnScanEvent: %v", err)
	}

	select {
	case code := <-navigated:
		if code != "3017620422003" {
			t.Fatalf("navigated to %q", code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no navigation after scan")
	}

	a.Release(ctx)

	// a second process sees the persisted history and cached product
	b, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New after restart: %v", err)
	}
	defer b.Release(ctx)

	items := b.History().View().Items
	if len(items) != 1 || items[0].Barcode != "3017620422003" || items[0].Name != "Nutella" {
		t.Fatalf("history after restart = %+v", items)
	}
	if items[0].Grade == nil || *items[0].Grade != 4 {
		t.Errorf("grade = %v, want 4", items[0].Grade)
	}
	if _, ok := b.Products().Get("3017620422003"); !ok {
		t.Error("product cache not persisted")
	}
}

func TestStartBackgroundJobsRejectsBadSchedule(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	cfg.FlushInterval = "every now and then"

	ctx := context.Background()
	a, err := New(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Release(ctx)

	if err := a.StartBackgroundJobs(); err == nil {
		t.Fatal("expected error for invalid flush schedule")
	}
}

func TestNewFailsOnUnknownBackend(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:0")
	cfg.StoreBackend = "floppy"
	if _, err := New(context.Background(), cfg, nil); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
