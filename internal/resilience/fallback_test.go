package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/testcall/internal/observe"
	"github.com/MrWong99/testcall/pkg/audio"
	"github.com/MrWong99/testcall/pkg/provider/llm"
	llmmock "github.com/MrWong99/testcall/pkg/provider/llm/mock"
	"github.com/MrWong99/testcall/pkg/provider/stt"
	sttmock "github.com/MrWong99/testcall/pkg/provider/stt/mock"
	"github.com/MrWong99/testcall/pkg/provider/tts"
	ttsmock "github.com/MrWong99/testcall/pkg/provider/tts/mock"
	"github.com/MrWong99/testcall/pkg/types"
)

func TestFallbackGroup_Order(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("a", "first", FallbackConfig{Kind: "test"})
	fg.AddFallback("second", "b")
	fg.AddFallback("third", "c")

	var tried []string
	got, err := ExecuteWithResult(context.Background(), fg, func(v string) (string, error) {
		tried = append(tried, v)
		if v != "c" {
			return "", errTest
		}
		return "ok:" + v, nil
	})
	if err != nil || got != "ok:c" {
		t.Fatalf("want ok:c, got %q (%v)", got, err)
	}
	if len(tried) != 3 || tried[0] != "a" || tried[1] != "b" {
		t.Errorf("want a,b,c tried in order, got %v", tried)
	}
	if names := fg.Names(); len(names) != 3 || names[0] != "first" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestFallbackGroup_AllFailed(t *testing.T) {
	t.Parallel()
	errA, errB := errors.New("a down"), errors.New("b down")
	fg := NewFallbackGroup(errA, "a", FallbackConfig{})
	fg.AddFallback("b", errB)

	err := fg.Execute(context.Background(), func(e error) error { return e })
	if !errors.Is(err, ErrAllFailed) {
		t.Fatalf("want ErrAllFailed, got %v", err)
	}
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("want every provider error joined, got %v", err)
	}
}

func TestFallbackGroup_SingleEntryKeepsError(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup(1, "only", FallbackConfig{})
	err := fg.Execute(context.Background(), func(int) error { return errTest })
	if !errors.Is(err, errTest) || errors.Is(err, ErrAllFailed) {
		t.Errorf("want the provider error without ErrAllFailed, got %v", err)
	}
}

func TestFallbackGroup_SkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	clock := newFakeClock()
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, Now: clock.Now},
	})
	fg.AddFallback("backup", "backup")

	calls := map[string]int{}
	run := func() {
		_ = fg.Execute(context.Background(), func(v string) error {
			calls[v]++
			if v == "primary" {
				return errTest
			}
			return nil
		})
	}
	run()
	run()
	if calls["primary"] != 1 || calls["backup"] != 2 {
		t.Errorf("want primary skipped once open, got %v", calls)
	}
	if s := fg.States()["primary"]; s != StateOpen {
		t.Errorf("want primary open, got %s", s)
	}

	clock.Advance(time.Minute)
	run()
	if calls["primary"] != 2 {
		t.Errorf("want primary retried after timeout, got %v", calls)
	}
}

func TestFallbackGroup_StopsOnCancellation(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("a", "a", FallbackConfig{})
	fg.AddFallback("b", "b")

	ctx, cancel := context.WithCancel(context.Background())
	var tried []string
	err := fg.Execute(ctx, func(v string) error {
		tried = append(tried, v)
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, context.Canceled) || errors.Is(err, ErrAllFailed) {
		t.Errorf("want plain cancellation, got %v", err)
	}
	if len(tried) != 1 {
		t.Errorf("want no fallback after cancellation, got %v", tried)
	}
	if fg.States()["a"] != StateClosed {
		t.Error("cancellation must not count against the breaker")
	}
}

func TestFallbackGroup_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	fg := NewFallbackGroup("a", "a", FallbackConfig{Kind: "llm", Metrics: m})
	fg.AddFallback("b", "b")
	_ = fg.Execute(context.Background(), func(v string) error {
		if v == "a" {
			return errTest
		}
		return nil
	})

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var requests, errs int64
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				switch met.Name {
				case "testcall.provider.requests":
					requests += dp.Value
				case "testcall.provider.errors":
					errs += dp.Value
				}
			}
		}
	}
	if requests != 2 || errs != 1 {
		t.Errorf("want 2 requests and 1 error, got %d and %d", requests, errs)
	}
}

// ─── provider wrappers ───────────────────────────────────────────────────────

func TestLLMFallback(t *testing.T) {
	t.Parallel()
	primary := &llmmock.Provider{
		CompleteErr:       errors.New("primary down"),
		ModelCapabilities: types.ModelCapabilities{SupportsJSONMode: true},
	}
	backup := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: `{}`}}
	fb := NewLLMFallback(primary, "openai", FallbackConfig{})
	fb.AddFallback("anthropic", backup)

	resp, err := fb.Complete(context.Background(), llm.CompletionRequest{JSONResponse: true})
	if err != nil || resp.Content != "{}" {
		t.Fatalf("want backup response, got %+v (%v)", resp, err)
	}
	if calls := backup.Calls(); len(calls) != 1 || !calls[0].Req.JSONResponse {
		t.Error("want request forwarded unchanged to backup")
	}
	if !fb.Capabilities().SupportsJSONMode {
		t.Error("want primary capabilities")
	}
	if _, ok := fb.States()["anthropic"]; !ok {
		t.Error("want backup listed in states")
	}
}

func TestSTTFallback(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{Err: errors.New("whisper unreachable")}
	backup := &sttmock.Provider{Text: "my tap is leaking"}
	fb := NewSTTFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("deepgram", backup)

	req := stt.Request{Audio: []byte{1, 2}, Format: audio.SpeechFormat, Keywords: []string{"Flynn"}}
	tr, err := fb.Transcribe(context.Background(), req)
	if err != nil || tr.Text != "my tap is leaking" {
		t.Fatalf("want backup transcript, got %+v (%v)", tr, err)
	}
	if backup.Calls() != 1 || backup.Requests[0].Keywords[0] != "Flynn" {
		t.Error("want keywords forwarded to backup")
	}
}

func TestSTTFallback_EmptyTranscriptIsSuccess(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{}
	backup := &sttmock.Provider{Text: "should not be used"}
	fb := NewSTTFallback(primary, "whisper", FallbackConfig{})
	fb.AddFallback("deepgram", backup)

	tr, err := fb.Transcribe(context.Background(), stt.Request{})
	if err != nil || tr.Text != "" {
		t.Fatalf("want empty transcript from primary, got %+v (%v)", tr, err)
	}
	if backup.Calls() != 0 {
		t.Error("want no failover on silence")
	}
}

func TestTTSFallback(t *testing.T) {
	t.Parallel()
	primary := &ttsmock.Provider{SynthesizeErr: errors.New("quota exceeded"), ListVoicesErr: errors.New("quota exceeded")}
	backup := &ttsmock.Provider{
		Clip:             &tts.Clip{Audio: []byte("backup"), Ext: "mp3"},
		ListVoicesResult: []types.VoiceProfile{{ID: "alloy"}},
	}
	fb := NewTTSFallback(primary, "elevenlabs", FallbackConfig{})
	fb.AddFallback("openai", backup)

	voice := types.VoiceProfile{ID: "rachel"}
	clip, err := fb.Synthesize(context.Background(), "Hello.", voice)
	if err != nil || string(clip.Audio) != "backup" {
		t.Fatalf("want backup clip, got %+v (%v)", clip, err)
	}
	if got := backup.SynthesizeCalls[0].Voice; got.ID != voice.ID {
		t.Errorf("want voice forwarded, got %+v", got)
	}

	voices, err := fb.ListVoices(context.Background())
	if err != nil || len(voices) != 1 || voices[0].ID != "alloy" {
		t.Errorf("want backup voices, got %v (%v)", voices, err)
	}
}
