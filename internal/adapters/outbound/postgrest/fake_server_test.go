package postgrest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/archon-research/ledger-engine/internal/pkg/httpclient"
	"github.com/archon-research/ledger-engine/internal/pkg/retry"
)

type row map[string]any

// Fixed-width timestamps keep string ordering equal to time ordering.
const fakeTimeLayout = "2006-01-02T15:04:05.000000Z07:00"

var fakeEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// fakeServer is a small in-memory stand-in for PostgREST covering the query
// forms the adapter issues: eq/gt/in filters, order, limit, a single embedded
// assets() select, upserts and return=representation.
type fakeServer struct {
	mu      sync.Mutex
	tables  map[string][]row
	seq     int64
	ticks   int64
	unique  map[string][]string
	failOn  map[string]int // "METHOD table" -> remaining 500 replies
	onPatch func(table string, query map[string][]string)
	calls   []string
	// after runs once, outside the lock, when a "METHOD table" request has
	// been applied and before its reply reaches the client.
	after map[string]func()
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		tables: make(map[string][]row),
		unique: map[string][]string{
			"wallets":            {"user_id"},
			"portfolios":         {"user_id"},
			"portfolio_holdings": {"portfolio_id", "asset_id"},
			"leaderboard":        {"user_id"},
			"assets":             {"symbol"},
		},
		failOn: make(map[string]int),
		after:  make(map[string]func()),
	}
}

func (f *fakeServer) start(t *testing.T) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	client, err := NewClient(ClientConfig{
		BaseURL: srv.URL,
		APIKey:  "test-key",
		HTTP: httpclient.Config{
			Timeout:        2 * time.Second,
			MaxRetries:     0,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			RateLimit:      1000,
			RateBurst:      100,
		},
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func testStoreConfig() StoreConfig {
	return StoreConfig{Retry: retry.Config{MaxRetries: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}}
}

func (f *fakeServer) put(table string, r row) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tables[table] = append(f.tables[table], r)
}

func (f *fakeServer) rows(table string) []row {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]row, len(f.tables[table]))
	copy(out, f.tables[table])
	return out
}

// runAfter installs a one-shot hook for the next "METHOD table" request.
func (f *fakeServer) runAfter(key string, fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.after[key] = fn
}

func (f *fakeServer) serve(w http.ResponseWriter, r *http.Request) {
	rec := httptest.NewRecorder()
	f.handle(rec, r)

	key := r.Method + " " + strings.TrimPrefix(r.URL.Path, "/")
	f.mu.Lock()
	hook := f.after[key]
	delete(f.after, key)
	f.mu.Unlock()
	if hook != nil {
		hook()
	}

	for k, v := range rec.Header() {
		w.Header()[k] = v
	}
	w.WriteHeader(rec.Code)
	_, _ = w.Write(rec.Body.Bytes())
}

func (f *fakeServer) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	table := strings.TrimPrefix(r.URL.Path, "/")
	key := r.Method + " " + table
	f.calls = append(f.calls, key)
	if r.Header.Get("apikey") != "test-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if n := f.failOn[key]; n > 0 {
		f.failOn[key] = n - 1
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	query := r.URL.Query()
	prefer := r.Header.Get("Prefer")

	switch r.Method {
	case http.MethodGet:
		f.writeJSON(w, http.StatusOK, f.selectRows(table, query))

	case http.MethodPost:
		var body []row
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var stored []row
		for _, in := range body {
			existing := f.findUnique(table, in)
			switch {
			case existing != nil && strings.Contains(prefer, "ignore-duplicates"):
				continue
			case existing != nil && strings.Contains(prefer, "merge-duplicates"):
				for k, v := range in {
					existing[k] = v
				}
				stored = append(stored, existing)
				continue
			case existing != nil:
				f.writeJSON(w, http.StatusConflict, row{"code": "23505", "message": "duplicate key"})
				return
			}
			r := f.withDefaults(table, in)
			f.tables[table] = append(f.tables[table], r)
			stored = append(stored, r)
		}
		if strings.Contains(prefer, "return=representation") {
			f.writeJSON(w, http.StatusCreated, stored)
			return
		}
		w.WriteHeader(http.StatusCreated)

	case http.MethodPatch:
		if f.onPatch != nil {
			hook := f.onPatch
			f.onPatch = nil
			hook(table, query)
		}
		var body row
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var updated []row
		for _, existing := range f.tables[table] {
			if matches(existing, query) {
				for k, v := range body {
					existing[k] = v
				}
				updated = append(updated, existing)
			}
		}
		f.writeJSON(w, http.StatusOK, nonNil(updated))

	case http.MethodDelete:
		var kept, deleted []row
		for _, existing := range f.tables[table] {
			if matches(existing, query) {
				deleted = append(deleted, existing)
			} else {
				kept = append(kept, existing)
			}
		}
		f.tables[table] = kept
		f.writeJSON(w, http.StatusOK, nonNil(deleted))
	}
}

func nonNil(rows []row) []row {
	if rows == nil {
		return []row{}
	}
	return rows
}

func (f *fakeServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *fakeServer) withDefaults(table string, in row) row {
	f.ticks++
	now := fakeEpoch.Add(time.Duration(f.ticks) * time.Millisecond).Format(fakeTimeLayout)
	out := row{}
	for k, v := range in {
		out[k] = v
	}
	setDefault := func(k string, v any) {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}
	switch table {
	case "wallets":
		setDefault("wallet_id", uuid.NewString())
		setDefault("updated_at", now)
	case "portfolios":
		setDefault("portfolio_id", uuid.NewString())
		setDefault("created_at", now)
	case "transactions":
		out["created_at"] = now
	case "client_fund_ledger":
		f.seq++
		out["entry_seq"] = f.seq
		out["timestamp"] = now
	case "leaderboard":
		setDefault("rank", 0)
		setDefault("score", 0)
		setDefault("badge", "")
		setDefault("holdings_value", "0")
	}
	return out
}

func (f *fakeServer) findUnique(table string, in row) row {
	cols, ok := f.unique[table]
	if !ok {
		return nil
	}
	for _, existing := range f.tables[table] {
		same := true
		for _, c := range cols {
			if fmt.Sprint(existing[c]) != fmt.Sprint(in[c]) {
				same = false
				break
			}
		}
		if same {
			return existing
		}
	}
	return nil
}

var reserved = map[string]bool{"select": true, "order": true, "limit": true, "on_conflict": true}

func matches(r row, query map[string][]string) bool {
	for col, values := range query {
		if reserved[col] {
			continue
		}
		for _, v := range values {
			if !matchOne(r[col], v) {
				return false
			}
		}
	}
	return true
}

func matchOne(value any, filter string) bool {
	op, arg, _ := strings.Cut(filter, ".")
	got := fmt.Sprint(value)
	switch op {
	case "eq":
		a, errA := decimal.NewFromString(got)
		b, errB := decimal.NewFromString(arg)
		if errA == nil && errB == nil {
			return a.Equal(b)
		}
		return got == arg
	case "gt":
		a, errA := decimal.NewFromString(got)
		b, errB := decimal.NewFromString(arg)
		return errA == nil && errB == nil && a.GreaterThan(b)
	case "in":
		for _, candidate := range strings.Split(strings.Trim(arg, "()"), ",") {
			if candidate == got {
				return true
			}
		}
		return false
	}
	return false
}

func (f *fakeServer) selectRows(table string, query map[string][]string) []row {
	var out []row
	for _, r := range f.tables[table] {
		if matches(r, query) {
			cp := row{}
			for k, v := range r {
				cp[k] = v
			}
			out = append(out, cp)
		}
	}

	if order := firstOf(query["order"]); order != "" {
		col, dir, _ := strings.Cut(strings.Split(order, ",")[0], ".")
		sort.SliceStable(out, func(i, j int) bool {
			less := compare(out[i][col], out[j][col])
			if dir == "desc" {
				return less > 0
			}
			return less < 0
		})
	}
	if limit := firstOf(query["limit"]); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil && n < len(out) {
			out = out[:n]
		}
	}
	if strings.Contains(firstOf(query["select"]), "assets(current_price)") {
		for _, r := range out {
			for _, a := range f.tables["assets"] {
				if a["asset_id"] == r["asset_id"] {
					r["assets"] = row{"current_price": a["current_price"]}
				}
			}
		}
	}
	return nonNil(out)
}

func compare(a, b any) int {
	da, errA := decimal.NewFromString(fmt.Sprint(a))
	db, errB := decimal.NewFromString(fmt.Sprint(b))
	if errA == nil && errB == nil {
		return da.Cmp(db)
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}
