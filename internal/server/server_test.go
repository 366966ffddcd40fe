package server_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tidwall/gjson"
	orderedmap "github.com/wk8/go-ordered-map/v2"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/MrWong99/asreval/internal/align"
	"github.com/MrWong99/asreval/internal/health"
	"github.com/MrWong99/asreval/internal/metrics"
	"github.com/MrWong99/asreval/internal/observe"
	"github.com/MrWong99/asreval/internal/server"
	"github.com/MrWong99/asreval/internal/store"
	"github.com/MrWong99/asreval/pkg/types"
)

func words(ws ...string) []types.Token {
	out := make([]types.Token, len(ws))
	for i, w := range ws {
		out[i] = types.Token{Word: w}
	}
	return out
}

func file(t *testing.T, name, lang string, ref, hyp []types.Token) *metrics.FileMetrics {
	t.Helper()
	m, err := align.Align(align.DefaultConfig(), ref, hyp)
	if err != nil {
		t.Fatalf("Align: %v", err)
	}
	bt, err := align.Trace(m)
	if err != nil {
		t.Fatalf("Trace: %v", err)
	}
	utts := orderedmap.New[string, *metrics.UtteranceMetrics]()
	utts.Set("u1", metrics.NewUtteranceMetrics(&types.Utterance{ID: "u1", Language: lang, Note: "clean"}, bt))
	return metrics.NewFileMetrics(name, utts)
}

// testCorpus has an English file with one deletion and a clean French file.
func testCorpus(t *testing.T) *metrics.CorpusMetrics {
	t.Helper()
	files := orderedmap.New[string, *metrics.FileMetrics]()
	files.Set("rec1", file(t, "rec1", "en", words("a", "b"), words("a")))
	files.Set("rec2", file(t, "rec2", "fr", words("c"), words("c")))
	return metrics.NewCorpusMetrics(files)
}

func newServer(t *testing.T, st store.Store, opts ...server.Option) *httptest.Server {
	t.Helper()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(sdkmetric.NewManualReader()))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	opts = append([]server.Option{
		server.WithMetrics(m),
		server.WithGatherer(prometheus.NewRegistry()),
	}, opts...)
	ts := httptest.NewServer(server.New(st, opts...).Handler())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(b)
}

func TestServer_Runs(t *testing.T) {
	t.Parallel()

	st := store.NewMemStore()
	run, err := st.Save(context.Background(), "nightly", testCorpus(t))
	if err != nil {
		t.Fatal(err)
	}
	ts := newServer(t, st)

	t.Run("list", func(t *testing.T) {
		code, body := do(t, "GET", ts.URL+"/v1/runs", "")
		if code != http.StatusOK {
			t.Fatalf("status = %d: %s", code, body)
		}
		var runs []store.Run
		if err := json.Unmarshal([]byte(body), &runs); err != nil {
			t.Fatal(err)
		}
		if len(runs) != 1 || runs[0].ID != run.ID || runs[0].Files != 2 {
			t.Errorf("runs = %+v", runs)
		}
	})

	t.Run("list bad limit", func(t *testing.T) {
		if code, _ := do(t, "GET", ts.URL+"/v1/runs?limit=x", ""); code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", code)
		}
	})

	t.Run("get", func(t *testing.T) {
		code, body := do(t, "GET", ts.URL+"/v1/runs/"+run.ID, "")
		if code != http.StatusOK {
			t.Fatalf("status = %d: %s", code, body)
		}
		if got := gjson.Get(body, "overall_text.totals.ref_len").Int(); got != 3 {
			t.Errorf("ref_len = %d, want 3", got)
		}
		if !gjson.Get(body, "files.rec2").Exists() {
			t.Error("rec2 missing from report")
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		code, body := do(t, "GET", ts.URL+"/v1/runs/nope", "")
		if code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", code)
		}
		if gjson.Get(body, "error").String() == "" {
			t.Errorf("error body = %s", body)
		}
	})
}

func TestServer_Reslice(t *testing.T) {
	t.Parallel()

	st := store.NewMemStore()
	run, err := st.Save(context.Background(), "", testCorpus(t))
	if err != nil {
		t.Fatal(err)
	}
	ts := newServer(t, st)
	url := ts.URL + "/v1/runs/" + run.ID + "/reslice"

	tests := []struct {
		name    string
		body    string
		wantRef int64
		wantWER float64
	}{
		{name: "everything", body: `{}`, wantRef: 3, wantWER: 1.0 / 3},
		{name: "one file", body: `{"files":["rec1"]}`, wantRef: 2, wantWER: 0.5},
		{name: "one language", body: `{"languages":["fr"]}`, wantRef: 1, wantWER: 0},
		{name: "unknown note", body: `{"notes":["noisy"]}`, wantRef: 0, wantWER: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := do(t, "POST", url, tt.body)
			if code != http.StatusOK {
				t.Fatalf("status = %d: %s", code, body)
			}
			if got := gjson.Get(body, "overall_text.totals.ref_len").Int(); got != tt.wantRef {
				t.Errorf("ref_len = %d, want %d", got, tt.wantRef)
			}
			if got := gjson.Get(body, "overall_text.totals.wer").Float(); got != tt.wantWER {
				t.Errorf("wer = %v, want %v", got, tt.wantWER)
			}
		})
	}

	t.Run("language keys", func(t *testing.T) {
		_, body := do(t, "POST", url, `{"languages":["en"]}`)
		if !gjson.Get(body, "languages.en").Exists() || gjson.Get(body, "languages.fr").Exists() {
			t.Errorf("languages = %s", gjson.Get(body, "languages").Raw)
		}
	})

	t.Run("bad body", func(t *testing.T) {
		for _, body := range []string{`{`, `{"speakers":["x"]}`} {
			if code, _ := do(t, "POST", url, body); code != http.StatusBadRequest {
				t.Errorf("body %s: status = %d, want 400", body, code)
			}
		}
	})

	t.Run("unknown run", func(t *testing.T) {
		if code, _ := do(t, "POST", ts.URL+"/v1/runs/nope/reslice", `{}`); code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", code)
		}
	})
}

func TestServer_Delete(t *testing.T) {
	t.Parallel()

	st := store.NewMemStore()
	run, _ := st.Save(context.Background(), "", testCorpus(t))
	ts := newServer(t, st)

	if code, _ := do(t, "DELETE", ts.URL+"/v1/runs/"+run.ID, ""); code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", code)
	}
	if _, _, err := st.Get(context.Background(), run.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("run still stored: %v", err)
	}
}

type brokenStore struct{ store.MemStore }

func (*brokenStore) List(context.Context, int) ([]store.Run, error) {
	return nil, errors.New("connection reset")
}

func TestServer_ProbesAndMetrics(t *testing.T) {
	t.Parallel()

	ts := newServer(t, store.NewMemStore())
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		code, _ := do(t, "GET", ts.URL+path, "")
		if code != http.StatusOK {
			t.Errorf("%s status = %d, want 200", path, code)
		}
	}

	broken := newServer(t, &brokenStore{})
	code, body := do(t, "GET", broken.URL+"/readyz", "")
	if code != http.StatusServiceUnavailable {
		t.Errorf("readyz on broken store = %d, want 503", code)
	}
	if got := gjson.Get(body, "checks.store").String(); !strings.HasPrefix(got, "fail:") {
		t.Errorf("store check = %q", got)
	}
	if code, _ := do(t, "GET", broken.URL+"/v1/runs", ""); code != http.StatusInternalServerError {
		t.Errorf("list on broken store = %d, want 500", code)
	}

	extra := newServer(t, store.NewMemStore(), server.WithCheckers(health.Checker{
		Name:  "postgres",
		Check: func(context.Context) error { return errors.New("down") },
	}))
	if code, _ := do(t, "GET", extra.URL+"/readyz", ""); code != http.StatusServiceUnavailable {
		t.Errorf("readyz with failing extra check = %d, want 503", code)
	}
}

func TestServer_Serve_Shutdown(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	srv := server.New(store.NewMemStore(), server.WithGatherer(prometheus.NewRegistry()))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	var resp *http.Response
	for range 50 {
		if resp, err = http.Get(url); err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never answered: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServer_StoreUnavailable(t *testing.T) {
	t.Parallel()

	guarded := store.Guard(&brokenStore{}, store.NewBreaker(store.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour}))
	ts := newServer(t, guarded)

	if code, _ := do(t, "GET", ts.URL+"/v1/runs", ""); code != http.StatusInternalServerError {
		t.Errorf("first list = %d, want 500", code)
	}
	if code, _ := do(t, "GET", ts.URL+"/v1/runs", ""); code != http.StatusServiceUnavailable {
		t.Errorf("list with open breaker = %d, want 503", code)
	}
}
