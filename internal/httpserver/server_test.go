package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"pantry/internal/docstore"
	"pantry/internal/inventory"
	"pantry/internal/search"
	"pantry/internal/ui"
	"pantry/pkg/domain"
)

func newTestServer(t *testing.T, opts ...Option) (*httptest.Server, docstore.Store, *inventory.Syncer) {
	t.Helper()
	store := docstore.NewMemory()
	ctx := context.Background()
	for name, q := range map[string]int{"apple": 2, "banana": 1} {
		if err := store.Set(ctx, domain.Collection, name, docstore.Fields{domain.QuantityField: q}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	syncer := inventory.New(store)
	controller := ui.New(syncer, search.WithDelay(time.Millisecond))
	t.Cleanup(controller.Close)
	if err := controller.Load(ctx); err != nil {
		t.Fatalf("load: %v", err)
	}
	srv, err := New(controller, opts...)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, store, syncer
}

func getView(t *testing.T, ts *httptest.Server) ui.View {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/items")
	if err != nil {
		t.Fatalf("get items: %v", err)
	}
	defer resp.Body.Close()
	var v ui.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func postJSON(t *testing.T, ts *httptest.Server, path, body string) ui.View {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post %s: status %d", path, resp.StatusCode)
	}
	var v ui.View
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	return v
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}

func TestIndexRendersRows(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	page := string(body)
	for _, want := range []string{"Pantry Items", "Apple", "Banana", "Quantity: 2", "Add New Item", `value="" autocomplete="off" autofocus>`, "setSelectionRange"} {
		if !strings.Contains(page, want) {
			t.Fatalf("expected page to contain %q", want)
		}
	}

	resp, err = http.Get(ts.URL + "/nope")
	if err != nil {
		t.Fatalf("get unknown: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestQueryFiltersAfterDelay(t *testing.T) {
	ts, _, _ := newTestServer(t)
	v := postJSON(t, ts, "/api/query", `{"query":"an"}`)
	if v.Query != "an" {
		t.Fatalf("expected query echoed, got %q", v.Query)
	}
	waitFor(t, func() bool {
		rows := getView(t, ts).Rows
		return len(rows) == 1 && rows[0].Name == "banana"
	})
}

func TestIncrementDecrementAndAdd(t *testing.T) {
	ts, store, _ := newTestServer(t)
	v := postJSON(t, ts, "/api/items/banana/increment", "")
	if len(v.Rows) != 2 || v.Rows[1] != (ui.Row{Name: "banana", DisplayName: "Banana", Quantity: 2}) {
		t.Fatalf("unexpected rows after increment %+v", v.Rows)
	}
	postJSON(t, ts, "/api/items/banana/decrement", "")
	v = postJSON(t, ts, "/api/items/banana/decrement", "")
	for _, row := range v.Rows {
		if row.Name == "banana" {
			t.Fatalf("expected banana removed, got %+v", v.Rows)
		}
	}
	v = postJSON(t, ts, "/api/items", `{"name":"Cherry"}`)
	if v.ModalOpen || v.ItemName != "" {
		t.Fatalf("expected modal reset, got %+v", v)
	}
	doc, err := store.Get(context.Background(), domain.Collection, "Cherry")
	if err != nil {
		t.Fatalf("expected Cherry stored: %v", err)
	}
	if q, _ := doc.Fields.Int(domain.QuantityField); q != 1 {
		t.Fatalf("expected quantity 1, got %d", q)
	}
}

func TestFormPostRedirects(t *testing.T) {
	ts, store, _ := newTestServer(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	resp, err := client.PostForm(ts.URL+"/api/items", url.Values{"name": {"dates"}})
	if err != nil {
		t.Fatalf("post form: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %s", resp.StatusCode, resp.Header.Get("Location"))
	}
	if _, err := store.Get(context.Background(), domain.Collection, "dates"); err != nil {
		t.Fatalf("expected dates stored: %v", err)
	}
}

func TestInvalidJSONRejected(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Post(ts.URL+"/api/query", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestMetricsAndExpvar(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := inventory.NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("recorder: %v", err)
	}
	rec.Observe(context.Background(), "increment", true, time.Millisecond)
	ts, _, _ := newTestServer(t, WithGatherer(reg))

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), "pantry_inventory_operations_total") {
		t.Fatalf("expected inventory counter in metrics output")
	}

	resp, err = http.Get(ts.URL + "/debug/vars")
	if err != nil {
		t.Fatalf("get vars: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected expvar handler, got %d", resp.StatusCode)
	}
}

func TestMetricsRouteAbsentWithoutGatherer(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get metrics: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

var incrementAction = regexp.MustCompile(`action="/api/items/([^"]+)/increment"`)

// renderedIncrementAction returns the increment form action rendered for name.
func renderedIncrementAction(t *testing.T, ts *httptest.Server, name string) string {
	t.Helper()
	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("get index: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, m := range incrementAction.FindAllStringSubmatch(string(body), -1) {
		if got, err := url.PathUnescape(m[1]); err == nil && got == name {
			return "/api/items/" + m[1] + "/increment"
		}
	}
	t.Fatalf("no increment action rendered for %q", name)
	return ""
}

func TestRenderedActionsEscapeItemNames(t *testing.T) {
	ts, store, _ := newTestServer(t)
	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }}
	for _, name := range []string{"salt/pepper", "what?", "100%", "olive oil"} {
		body, _ := json.Marshal(addRequest{Name: name})
		postJSON(t, ts, "/api/items", string(body))

		action := renderedIncrementAction(t, ts, name)
		if strings.Contains(action, name) && strings.ContainsAny(name, "/?%") {
			t.Fatalf("action for %q was not escaped: %s", name, action)
		}
		resp, err := client.PostForm(ts.URL+action, url.Values{})
		if err != nil {
			t.Fatalf("post %s: %v", action, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusSeeOther {
			t.Fatalf("%q: expected 303 from %s, got %d", name, action, resp.StatusCode)
		}
		doc, err := store.Get(context.Background(), domain.Collection, name)
		if err != nil {
			t.Fatalf("%q: get: %v", name, err)
		}
		if q, _ := doc.Fields.Int(domain.QuantityField); q != 2 {
			t.Fatalf("%q: expected quantity 2 after click, got %d", name, q)
		}
	}
}
