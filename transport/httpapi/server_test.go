package httpapi

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/unkn0wn-root/collcache"
	"github.com/unkn0wn-root/collcache/collection"
	"github.com/unkn0wn-root/collcache/collection/builtin"
	"github.com/unkn0wn-root/collcache/config"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg, err := config.Parse([]byte(`{"workers":1,"collections":{"main":{"type":"local"},"side":{"type":"local","options":{"codec":"msgpack"}}}}`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cc, err := collcache.New(context.Background(), collcache.Options{Config: cfg, Factories: builtin.Factories()})
	if err != nil {
		t.Fatalf("collcache.New: %v", err)
	}
	opts, err := ParseOptions(nil, 1)
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	ts := httptest.NewServer(New(cc, nil, opts).Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = cc.Close(context.Background())
	})
	return ts
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *errorBody      `json:"error"`
}

func post(t *testing.T, ts *httptest.Server, path, body string) (int, envelope) {
	t.Helper()
	resp, err := http.Post(ts.URL+path, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("POST %s: decode: %v", path, err)
	}
	return resp.StatusCode, env
}

func TestSetAndGetItem(t *testing.T) {
	ts := newTestServer(t)
	if code, env := post(t, ts, "/mutation/setItem", `{"itemID":"eurusd","itemValue":1.08,"itemTTL":60}`); code != 200 || string(env.Data) != "true" {
		t.Fatalf("setItem: %d %s %+v", code, env.Data, env.Error)
	}
	code, env := post(t, ts, "/query/getItem", `{"itemID":"eurusd"}`)
	if code != 200 {
		t.Fatalf("getItem: %d %+v", code, env.Error)
	}
	var it collcache.Item
	_ = json.Unmarshal(env.Data, &it)
	if it.ItemType != collection.TypeNumber || it.ItemValue != 1.08 {
		t.Fatalf("item=%+v", it)
	}
}

func TestIncrementDefaultsToOne(t *testing.T) {
	ts := newTestServer(t)
	_, env := post(t, ts, "/mutation/incrementPrimitiveItem", `{"itemID":"hits"}`)
	_, env2 := post(t, ts, "/mutation/incrementPrimitiveItem", `{"itemID":"hits","increment":1}`)
	if string(env.Data) != "1" || string(env2.Data) != "2" {
		t.Fatalf("increments: %s %s", env.Data, env2.Data)
	}
}

func TestErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	cases := []struct {
		path, body string
		status     int
		kind       string
	}{
		{"/query/getItem", `{"itemID":"missing"}`, 404, "not_found"},
		{"/query/getItem", `{"collectionID":"nope","itemID":"x"}`, 400, "validation"},
		{"/query/getItem", `not json`, 400, "validation"},
		{"/mutation/bulkSetHashItemField", `{"bulk":[
			{"itemID":"x","fieldID":"f1","fieldValue":1,"itemTTL":10},
			{"itemID":"x","fieldID":"f2","fieldValue":2,"itemTTL":20}]}`, 409, "conflict"},
		{"/mutation/bulkSetItem", `{}`, 400, "validation"},
	}
	for _, tc := range cases {
		code, env := post(t, ts, tc.path, tc.body)
		if code != tc.status || env.Error == nil || env.Error.Kind != tc.kind {
			t.Fatalf("%s %s: status=%d err=%+v", tc.path, tc.body, code, env.Error)
		}
	}
}

func TestBulkSetItemPartialFailure(t *testing.T) {
	ts := newTestServer(t)
	code, env := post(t, ts, "/mutation/bulkSetItem", `{"bulk":[
		{"collectionID":"nope","itemID":"a","itemValue":1},
		{"collectionID":"side","itemID":"b","itemValue":"kept"}]}`)
	if code != http.StatusUnprocessableEntity || env.Error == nil || env.Error.Kind != "aggregate" {
		t.Fatalf("status=%d err=%+v", code, env.Error)
	}
	if len(env.Error.Entries) != 1 || env.Error.Entries[0].Index != 0 {
		t.Fatalf("entries=%+v", env.Error.Entries)
	}
	code, env = post(t, ts, "/query/getItem", `{"collectionID":"side","itemID":"b"}`)
	if code != 200 || !bytes.Contains(env.Data, []byte(`"kept"`)) {
		t.Fatalf("successful entry not applied: %d %s", code, env.Data)
	}
}

func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			if name != "" || data != "" {
				return name, data
			}
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func TestFieldSubscriptionStream(t *testing.T) {
	ts := newTestServer(t)
	post(t, ts, "/mutation/setHashItemField", `{"itemID":"quote","fieldID":"bid","fieldValue":1.5}`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/subscription/hashItemField?itemID=quote&fieldID=bid", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != 200 || resp.Header.Get("X-Subscription-Id") == "" {
		t.Fatalf("status=%d headers=%v", resp.StatusCode, resp.Header)
	}
	r := bufio.NewReader(resp.Body)

	name, data := readEvent(t, r)
	var ev collcache.HashItemFieldMutation
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("event %q: %v", data, err)
	}
	if name != "mutation" || ev.MutationType != collection.MutationGet || ev.Field.FieldValue != 1.5 {
		t.Fatalf("prime %s %+v", name, ev)
	}

	post(t, ts, "/mutation/incrementHashItemField", `{"itemID":"quote","fieldID":"bid","increment":0.25}`)
	_, data = readEvent(t, r)
	ev = collcache.HashItemFieldMutation{}
	_ = json.Unmarshal([]byte(data), &ev)
	if ev.MutationType != collection.MutationIncrement || ev.Field.FieldValue != 1.75 {
		t.Fatalf("increment event %+v", ev)
	}
}

func TestSubscriptionValidation(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/subscription/item?collectionID=nope&itemID=x")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status=%d", resp.StatusCode)
	}
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var env struct {
		Data struct {
			Collections []string `json:"collections"`
			Default     string   `json:"default"`
		} `json:"data"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&env)
	if fmt.Sprint(env.Data.Collections) != "[main side]" || env.Data.Default != "main" {
		t.Fatalf("health=%+v", env.Data)
	}
}

func TestParseOptions(t *testing.T) {
	o, err := ParseOptions(json.RawMessage(`{"basePath":"api/v1/"}`), 4)
	if err != nil {
		t.Fatalf("ParseOptions: %v", err)
	}
	if o.Addr != ":4000" || o.BasePath != "/api/v1" || !*o.ReusePort {
		t.Fatalf("options=%+v", o)
	}
	if o.shutdownTimeout() != 10*time.Second {
		t.Fatalf("shutdown=%v", o.shutdownTimeout())
	}
	if _, err := ParseOptions(json.RawMessage(`{"mode":"loud"}`), 1); err == nil {
		t.Fatalf("bad mode accepted")
	}
	if _, err := ParseOptions(json.RawMessage(`{"port":1}`), 1); err == nil {
		t.Fatalf("unknown key accepted")
	}
}

func TestClassifyBackendErrors(t *testing.T) {
	cases := map[error]int{
		&collcache.BackendError{Op: "getItem", Err: collection.ErrNotFound}:    404,
		&collcache.BackendError{Op: "incr", Err: collection.ErrNotNumeric}:     400,
		&collcache.BackendError{Op: "setItem", Err: errors.New("i/o timeout")}: 502,
		&collcache.NotFoundError{CollectionID: "x"}:                            404,
		errors.New("boom"): 500,
	}
	for err, want := range cases {
		if got, _ := classify(err); got != want {
			t.Fatalf("%v: status %d want %d", err, got, want)
		}
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg, _ := config.Parse([]byte(`{"workers":1,"collections":{"m":{"type":"local"}}}`))
	cc, err := collcache.New(context.Background(), collcache.Options{Config: cfg, Factories: builtin.Factories()})
	if err != nil {
		t.Fatal(err)
	}
	defer cc.Close(context.Background())

	ln, err := Listen(context.Background(), "127.0.0.1:0", false)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	opts, _ := ParseOptions(nil, 1)
	srv := New(cc, nil, opts)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	// an open subscription must not hold up shutdown
	resp, err := http.Get("http://" + ln.Addr().String() + "/subscription/item?itemID=x")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return")
	}
}
