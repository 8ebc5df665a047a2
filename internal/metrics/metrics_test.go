package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// freshRegistry resets the registration gate and registers collectors into a new registry.
func freshRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	regOK.Store(false)
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	return reg
}

func TestRegisterIdempotentAndCollectorsWork(t *testing.T) {
	reg := freshRegistry(t)
	// idempotent: calling again should be no-op
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	known := []string{"created", "running"}
	SetPhase("running", known)
	RecordTransition("created", "running")
	RecordTaskExit(3)
	RecordShutdown("signal")
	RecordStoreOp("write", nil, 0.001)
	RecordStoreOp("read", errors.New("boom"), 0.002)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"tbox_lifecycle_phase":                  false,
		"tbox_lifecycle_transitions_total":      false,
		"tbox_lifecycle_task_exits_total":       false,
		"tbox_lifecycle_shutdown_total":         false,
		"tbox_store_operations_total":           false,
		"tbox_store_operation_duration_seconds": false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
		if n == "tbox_lifecycle_phase" {
			for _, m := range mf.GetMetric() {
				phase := m.GetLabel()[0].GetValue()
				v := m.GetGauge().GetValue()
				if phase == "running" && v != 1 {
					t.Fatalf("running phase should be active")
				}
				if phase == "created" && v != 0 {
					t.Fatalf("created phase should be inactive")
				}
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestRegisterIgnoresLaterRegisterer(t *testing.T) {
	first := freshRegistry(t)
	second := prometheus.NewRegistry()
	if err := Register(second); err != nil {
		t.Fatalf("register second: %v", err)
	}
	RecordShutdown("signal")

	mfs, err := second.Gather()
	if err != nil {
		t.Fatalf("gather second: %v", err)
	}
	if len(mfs) != 0 {
		t.Fatalf("second registry should stay empty, got %d families", len(mfs))
	}
	mfs, err = first.Gather()
	if err != nil {
		t.Fatalf("gather first: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "tbox_lifecycle_shutdown_total" {
			found = true
		}
	}
	if !found {
		t.Fatal("first registry should keep the collectors")
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	RecordShutdown("signal")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "tbox_lifecycle_shutdown_total") {
		t.Fatalf("metrics output missing shutdown_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentRecording(t *testing.T) {
	reg := freshRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			RecordStoreOp("write", nil, 0.0001)
			RecordTransition("running", "shutting_down")
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// These should be no-ops and not panic when called before Register
	SetPhase("running", []string{"running"})
	RecordTransition("a", "b")
	RecordTaskExit(1)
	RecordShutdown("signal")
	RecordStoreOp("read", nil, 0)
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{shouldError: true})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
}

// Custom registerer for testing error handling
type errorRegisterer struct {
	shouldError bool
}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	if e.shouldError {
		return errors.New("test registration error")
	}
	return nil
}

func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
