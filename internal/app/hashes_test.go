package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/scriptducks/hashes-gui/internal/domain"
)

func staticKey(k string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return k, nil }
}

// newTestClient points a client at h: the API under /api, left lists at the root.
func newTestClient(t *testing.T, key string, h http.Handler) *HashesClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHashesClient(staticKey(key)).
		WithEndpoints(srv.URL+"/api", srv.URL).
		WithTimeout(5 * time.Second).
		WithDownloadDelay(0)
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func TestHashesClient_KeyRequiredBeforeAnyRequest(t *testing.T) {
	var hits atomic.Int32
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, `{"success":true}`)
	})

	for _, key := range []string{"", "   "} {
		c := newTestClient(t, key, h)
		ctx := context.Background()

		if _, err := c.Jobs(ctx); !errors.Is(err, ErrAPIKeyRequired) {
			t.Fatalf("Jobs(key=%q): expected ErrAPIKeyRequired, got %v", key, err)
		}
		if _, err := c.Balance(ctx); !errors.Is(err, ErrAPIKeyRequired) {
			t.Fatalf("Balance(key=%q): expected ErrAPIKeyRequired, got %v", key, err)
		}
		if _, err := c.Lookup(ctx, []string{"abc"}); !errors.Is(err, ErrAPIKeyRequired) {
			t.Fatalf("Lookup(key=%q): expected ErrAPIKeyRequired, got %v", key, err)
		}
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("expected no request without a key, got %d", n)
	}
}

func TestHashesClient_GetSendsKeyInQuery(t *testing.T) {
	var gotKey, gotPath string
	c := newTestClient(t, "abc123", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		writeJSON(w, `{"success":true,"list":[]}`)
	}))

	jobs, err := c.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if gotPath != "/api/jobs" || gotKey != "abc123" {
		t.Fatalf("unexpected request path=%q key=%q", gotPath, gotKey)
	}
	if jobs == nil || len(jobs) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", jobs)
	}
}

func TestHashesClient_JobsAreLenientAndNewestFirst(t *testing.T) {
	c := newTestClient(t, "k", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"success":true,"list":[
			{"id":1,"createdAt":"2024-01-01 10:00:00","algorithmId":0,"leftHashes":"5","pricePerHashUsd":0.25},
			{"id":"2","createdAt":"2024-03-01 10:00:00","algorithmId":"1000","leftHashes":7,"hints":null}
		]}`)
	}))

	jobs, err := c.Jobs(context.Background())
	if err != nil {
		t.Fatalf("Jobs: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	if jobs[0].ID != "2" || jobs[1].ID != "1" {
		t.Fatalf("expected newest first, got %q then %q", jobs[0].ID, jobs[1].ID)
	}
	if jobs[0].LeftHashes.Int() != 7 || jobs[1].PricePerHashUSD.Float() != 0.25 {
		t.Fatalf("numeric fields not decoded: %#v", jobs)
	}
}

func TestHashesClient_LookupPostsForm(t *testing.T) {
	var gotHashes []string
	var gotKey, queryKey string
	c := newTestClient(t, "abc123", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/search" {
			http.Error(w, "unexpected", http.StatusBadRequest)
			return
		}
		_ = r.ParseForm()
		gotHashes = r.PostForm["hashes[]"]
		gotKey = r.PostForm.Get("key")
		queryKey = r.URL.Query().Get("key")
		writeJSON(w, `{"success":true,"founds":[{"hash":"h1","salt":"","plaintext":"pw","algorithm":"MD5"}],"count":1,"cost":0.5}`)
	}))

	res, err := c.Lookup(context.Background(), []string{" h1 ", "h2", "", "h1"})
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if diff := cmp.Diff([]string{"h1", "h2"}, gotHashes); diff != "" {
		t.Fatalf("hashes[] mismatch (-want +got):\n%s", diff)
	}
	if gotKey != "abc123" || queryKey != "" {
		t.Fatalf("expected key in form only, form=%q query=%q", gotKey, queryKey)
	}
	if res.Count != 1 || len(res.Founds) != 1 || res.Founds[0].Plaintext != "pw" || res.Cost != "0.5" {
		t.Fatalf("unexpected result %#v", res)
	}
}

func TestHashesClient_LookupLimits(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, "k", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, `{"success":true,"founds":[]}`)
	}))
	ctx := context.Background()

	if _, err := c.Lookup(ctx, []string{"", "  "}); !errors.Is(err, ErrNoHashes) {
		t.Fatalf("expected ErrNoHashes, got %v", err)
	}

	many := make([]string, 0, MaxLookupHashes+1)
	for i := 0; i <= MaxLookupHashes; i++ {
		many = append(many, fmt.Sprintf("hash%03d", i))
	}
	if _, err := c.Lookup(ctx, many); !errors.Is(err, ErrTooManyHashes) {
		t.Fatalf("expected ErrTooManyHashes, got %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no request for rejected input")
	}

	// duplicates collapse under the limit
	res, err := c.Lookup(ctx, append(many[:MaxLookupHashes], many[0], many[1]))
	if err != nil {
		t.Fatalf("Lookup at limit: %v", err)
	}
	if res.Count != MaxLookupHashes {
		t.Fatalf("expected count %d, got %d", MaxLookupHashes, res.Count)
	}
}

func TestHashesClient_ErrorPayloads(t *testing.T) {
	cases := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "success false with message", body: `{"success":false,"message":"Invalid API key."}`, wantMsg: "Invalid API key."},
		{name: "success false without message", body: `{"success":false}`, wantMsg: "API request failed."},
		{name: "invalid json", body: `{"success":`, wantMsg: "received invalid JSON from hashes.com"},
		{name: "array", body: `[1,2]`, wantMsg: "unexpected API response format"},
		{name: "null", body: `null`, wantMsg: "unexpected API response format"},
		{name: "http error", status: http.StatusInternalServerError, body: `oops`, wantMsg: "request failed: 500 Internal Server Error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, "k", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.status != 0 {
					w.WriteHeader(tc.status)
				}
				_, _ = w.Write([]byte(tc.body))
			}))
			_, err := c.Balance(context.Background())
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("expected APIError, got %T (%v)", err, err)
			}
			if apiErr.Message != tc.wantMsg {
				t.Fatalf("message = %q, want %q", apiErr.Message, tc.wantMsg)
			}
		})
	}
}

func TestHashesClient_AlgorithmsSortedByNumericID(t *testing.T) {
	c := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"success":true,"list":[
			{"id":"1000","algorithmName":"NTLM"},
			{"id":"x","algorithmName":"Other"},
			{"id":0,"algorithmName":"MD5"},
			{"id":"100","algorithmName":"SHA1"}
		]}`)
	}))

	algs, err := c.Algorithms(context.Background())
	if err != nil {
		t.Fatalf("Algorithms: %v", err)
	}
	want := []domain.Algorithm{{ID: "0", Name: "MD5"}, {ID: "100", Name: "SHA1"}, {ID: "1000", Name: "NTLM"}, {ID: "x", Name: "Other"}}
	if diff := cmp.Diff(want, algs); diff != "" {
		t.Fatalf("Algorithms() mismatch (-want +got):\n%s", diff)
	}
}

func TestHashesClient_Identify(t *testing.T) {
	var gotHash, gotExtended string
	c := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHash = r.URL.Query().Get("hash")
		gotExtended = r.URL.Query().Get("extended")
		writeJSON(w, `{"success":true,"algorithms":["MD5","MD4"]}`)
	}))

	names, err := c.Identify(context.Background(), "5f4dcc3b5aa765d61d8327deb882cf99", true)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if gotHash != "5f4dcc3b5aa765d61d8327deb882cf99" || gotExtended != "true" {
		t.Fatalf("unexpected query hash=%q extended=%q", gotHash, gotExtended)
	}
	if diff := cmp.Diff([]string{"MD5", "MD4"}, names); diff != "" {
		t.Fatalf("Identify() mismatch (-want +got):\n%s", diff)
	}
}

func TestHashesClient_ConversionRatesAreCached(t *testing.T) {
	var hits atomic.Int32
	c := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		writeJSON(w, `{"success":true,"BTC":"20000","LTC":80}`)
	}))
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := c.ConversionRates(ctx); err != nil {
			t.Fatalf("ConversionRates: %v", err)
		}
	}
	if hits.Load() != 1 {
		t.Fatalf("expected 1 request within TTL, got %d", hits.Load())
	}

	now = now.Add(DefaultConversionTTL + time.Second)
	rates, err := c.ConversionRates(ctx)
	if err != nil {
		t.Fatalf("ConversionRates: %v", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("expected refresh after TTL, got %d requests", hits.Load())
	}
	if diff := cmp.Diff(map[string]string{"BTC": "20000", "LTC": "80"}, rates); diff != "" {
		t.Fatalf("rates mismatch (-want +got):\n%s", diff)
	}
}

func TestHashesClient_ConvertToUSD(t *testing.T) {
	c := newTestClient(t, "", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, `{"success":true,"BTC":"20000"}`)
	}))
	ctx := context.Background()

	cases := []struct {
		value    float64
		currency string
		want     string
	}{
		{value: 0.5, currency: "btc", want: "$10000.000"},
		{value: 3, currency: "Credits", want: "N/A"},
		{value: 3, currency: "XMR", want: "$0.00"},
	}
	for _, tc := range cases {
		got, err := c.ConvertToUSD(ctx, tc.value, tc.currency)
		if err != nil {
			t.Fatalf("ConvertToUSD(%v, %s): %v", tc.value, tc.currency, err)
		}
		if got != tc.want {
			t.Fatalf("ConvertToUSD(%v, %s) = %q, want %q", tc.value, tc.currency, got, tc.want)
		}
	}
}

func TestHashesClient_BalanceReport(t *testing.T) {
	c := newTestClient(t, "k", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/balance"):
			writeJSON(w, `{"success":true,"LTC":"0","BTC":"0.5","credits":"10"}`)
		case strings.HasSuffix(r.URL.Path, "/conversion"):
			writeJSON(w, `{"success":true,"BTC":"20000","LTC":"80"}`)
		default:
			http.NotFound(w, r)
		}
	}))

	report, err := c.BalanceReport(context.Background())
	if err != nil {
		t.Fatalf("BalanceReport: %v", err)
	}
	want := domain.BalanceReport{
		Rows: []domain.BalanceRow{
			{Currency: "BTC", Amount: "0.5", USD: "$10000.000"},
			{Currency: "LTC", Amount: "0", USD: "$0.00"},
			{Currency: "credits", Amount: "10", USD: "N/A"},
		},
		TotalUSD: 10000,
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("BalanceReport() mismatch (-want +got):\n%s", diff)
	}
}
