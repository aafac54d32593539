package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/srrmlwn/dealflowanalyzer.ai/internal/collector"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/datasource"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/infra"
	"github.com/srrmlwn/dealflowanalyzer.ai/internal/storage"
	"github.com/srrmlwn/dealflowanalyzer.ai/pkg/models"
)

type fakeCollector struct {
	mu        sync.Mutex
	api       datasource.APIStats
	result    collector.Result
	err       error
	calls     int
	block     chan struct{}
	collected models.Buybox
}

func (f *fakeCollector) Collect(ctx context.Context, b models.Buybox) (collector.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.collected = b
	return f.result, f.err
}

func (f *fakeCollector) APIStats() datasource.APIStats { return f.api }

func (f *fakeCollector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeCleaner struct {
	days []int
}

func (f *fakeCleaner) Cleanup(ctx context.Context, days int) (storage.CleanupResult, error) {
	f.days = append(f.days, days)
	return storage.CleanupResult{Removed: []string{"a", "b"}}, nil
}

func configured() datasource.APIStats {
	return datasource.APIStats{Configured: true, RemainingRequests: 40, RateLimit: 100}
}

func testBuybox() models.Buybox {
	return models.Buybox{Name: "austin", ZipCodes: []string{"78701"}}
}

func newTest(t *testing.T, cfg Config, c Collector, cl Cleaner) *Scheduler {
	t.Helper()
	s, err := New(cfg, testBuybox(), c, cl, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestNewValidates(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"bad cron", Config{CronSchedule: "every day", Timezone: "UTC"}},
		{"bad timezone", Config{CronSchedule: "0 2 * * *", Timezone: "Mars/Olympus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, testBuybox(), &fakeCollector{}, nil, nil); !errors.Is(err, models.ErrValidation) {
				t.Errorf("err = %v, want ErrValidation", err)
			}
		})
	}

	s := newTest(t, Config{Timezone: "UTC"}, &fakeCollector{}, nil)
	cfg := s.Config()
	if cfg.CronSchedule != DefaultCronSchedule || cfg.RetentionDays != DefaultRetentionDays {
		t.Errorf("defaults = %+v", cfg)
	}
}

func TestStartStopStatus(t *testing.T) {
	s := newTest(t, Config{Enabled: false, CronSchedule: "0 2 * * *", Timezone: "UTC"}, &fakeCollector{}, nil)
	if err := s.Start(); !errors.Is(err, ErrDisabled) {
		t.Fatalf("Start disabled err = %v, want ErrDisabled", err)
	}
	if st := s.Status(); st.Running || st.NextRun != nil {
		t.Errorf("disabled status = %+v", st)
	}

	enabled := true
	if _, err := s.UpdateConfig(ConfigUpdate{Enabled: &enabled}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	s.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Errorf("second Start err = %v, want nil", err)
	}

	st := s.Status()
	if !st.Running || st.NextRun == nil {
		t.Fatalf("status = %+v", st)
	}
	if want := time.Date(2024, 5, 2, 2, 0, 0, 0, time.UTC); !st.NextRun.Equal(want) {
		t.Errorf("NextRun = %v, want %v", st.NextRun, want)
	}

	hourly := "30 * * * *"
	if _, err := s.UpdateConfig(ConfigUpdate{CronSchedule: &hourly}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}
	st = s.Status()
	if !st.Running || st.CronSchedule != hourly {
		t.Errorf("status after update = %+v", st)
	}
	if want := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC); !st.NextRun.Equal(want) {
		t.Errorf("NextRun = %v, want %v", st.NextRun, want)
	}

	bad := "61 * * * *"
	if _, err := s.UpdateConfig(ConfigUpdate{CronSchedule: &bad}); !errors.Is(err, models.ErrValidation) {
		t.Errorf("bad update err = %v", err)
	}
	if s.Config().CronSchedule != hourly {
		t.Errorf("config changed by invalid update: %+v", s.Config())
	}

	s.Stop()
	if st := s.Status(); st.Running || st.NextRun != nil {
		t.Errorf("stopped status = %+v", st)
	}
}

func TestRunOnceSkips(t *testing.T) {
	tests := []struct {
		name string
		api  datasource.APIStats
		want error
	}{
		{"no api key", datasource.APIStats{}, models.ErrConfiguration},
		{"quota exhausted", datasource.APIStats{Configured: true, RemainingRequests: 0, TimeUntilResetMs: 90000}, infra.ErrQuotaExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fc := &fakeCollector{api: tt.api}
			cl := &fakeCleaner{}
			s := newTest(t, Config{Timezone: "UTC"}, fc, cl)

			sum, err := s.RunOnce(context.Background())
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			if !sum.Skipped || sum.Success {
				t.Errorf("summary = %+v", sum)
			}
			if fc.callCount() != 0 || len(cl.days) != 0 {
				t.Errorf("collect calls = %d, cleanups = %v", fc.callCount(), cl.days)
			}
			if s.Status().LastRun == nil {
				t.Error("LastRun not recorded")
			}
		})
	}
}

func TestRunOnceCollectsThenCleans(t *testing.T) {
	fc := &fakeCollector{
		api: configured(),
		result: collector.Result{
			Success: true,
			Errors:  []models.ErrorRecord{},
			Stats:   collector.Stats{TotalProperties: 12, ZipCodesProcessed: 2},
		},
	}
	cl := &fakeCleaner{}
	s := newTest(t, Config{Timezone: "UTC", RetentionDays: 14}, fc, cl)

	sum, err := s.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !sum.Success || sum.Properties != 12 || sum.ZipCodes != 2 || sum.Removed != 2 {
		t.Errorf("summary = %+v", sum)
	}
	if fc.collected.Name != "austin" {
		t.Errorf("collected buybox = %+v", fc.collected)
	}
	if len(cl.days) != 1 || cl.days[0] != 14 {
		t.Errorf("cleanup days = %v, want [14]", cl.days)
	}
}

func TestRunOnceCleansAfterFailure(t *testing.T) {
	fc := &fakeCollector{
		api:    configured(),
		result: collector.Result{Errors: []models.ErrorRecord{{ErrorType: models.ErrorTypeAPI, ErrorMessage: "boom"}}},
		err:    errors.New("boom"),
	}
	cl := &fakeCleaner{}
	s := newTest(t, Config{Timezone: "UTC"}, fc, cl)

	sum, err := s.RunOnce(context.Background())
	if err == nil {
		t.Fatal("RunOnce succeeded, want error")
	}
	if sum.Success || sum.Errors != 1 || sum.Message != "boom" {
		t.Errorf("summary = %+v", sum)
	}
	if len(cl.days) != 1 || cl.days[0] != DefaultRetentionDays {
		t.Errorf("cleanup days = %v", cl.days)
	}
}

func TestRunNowInBackground(t *testing.T) {
	fc := &fakeCollector{api: configured(), block: make(chan struct{}), result: collector.Result{Success: true}}
	s := newTest(t, Config{Timezone: "UTC"}, fc, nil)

	if err := s.RunNow(); err != nil {
		t.Fatalf("RunNow: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for !s.Status().InProgress {
		if time.Now().After(deadline) {
			t.Fatal("run never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if _, err := s.RunOnce(context.Background()); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("concurrent RunOnce err = %v, want ErrRunInProgress", err)
	}
	if err := s.RunNow(); !errors.Is(err, ErrRunInProgress) {
		t.Errorf("concurrent RunNow err = %v, want ErrRunInProgress", err)
	}

	close(fc.block)
	for s.Status().LastRun == nil {
		if time.Now().After(deadline) {
			t.Fatal("run never finished")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := s.Status().LastRun; !got.Success {
		t.Errorf("LastRun = %+v", got)
	}
}
