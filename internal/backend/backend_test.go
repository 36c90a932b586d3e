package backend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/archon-research/ledger-engine/internal/domain/entity"
)

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name      string
		env       map[string]string
		want      Config
		wantError string
	}{
		{
			name: "postgres defaults",
			env:  map[string]string{"DATABASE_URL": "postgres://localhost/ledger"},
			want: Config{Kind: KindPostgres, DatabaseURL: "postgres://localhost/ledger", MaxConns: 25, AcquireTimeout: 5 * time.Second, RESTRate: 50},
		},
		{
			name: "rest backend",
			env:  map[string]string{"LEDGER_BACKEND": "rest", "REST_URL": "https://db.example.com/rest/v1", "REST_API_KEY": "k", "REST_RATE_LIMIT": "20"},
			want: Config{Kind: KindREST, RESTURL: "https://db.example.com/rest/v1", RESTAPIKey: "k", MaxConns: 25, AcquireTimeout: 5 * time.Second, RESTRate: 20},
		},
		{
			name: "acquire timeout override",
			env:  map[string]string{"DATABASE_URL": "postgres://x", "DB_ACQUIRE_TIMEOUT": "250ms", "DB_MAX_CONNS": "40"},
			want: Config{Kind: KindPostgres, DatabaseURL: "postgres://x", MaxConns: 40, AcquireTimeout: 250 * time.Millisecond, RESTRate: 50},
		},
		{
			name:      "postgres without url",
			env:       map[string]string{},
			wantError: "DATABASE_URL is required",
		},
		{
			name:      "rest without url",
			env:       map[string]string{"LEDGER_BACKEND": "rest"},
			wantError: "REST_URL is required",
		},
		{
			name:      "unknown backend",
			env:       map[string]string{"LEDGER_BACKEND": "sqlite"},
			wantError: "unknown ledger backend",
		},
		{
			name:      "bad duration",
			env:       map[string]string{"DATABASE_URL": "postgres://x", "DB_ACQUIRE_TIMEOUT": "soon"},
			wantError: "DB_ACQUIRE_TIMEOUT",
		},
	}

	keys := []string{"LEDGER_BACKEND", "DATABASE_URL", "DB_MAX_CONNS", "DB_ACQUIRE_TIMEOUT", "REST_URL", "REST_API_KEY", "REST_RATE_LIMIT"}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, k := range keys {
				t.Setenv(k, "")
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			got, err := ConfigFromEnv()
			if tt.wantError != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantError) {
					t.Fatalf("error = %v, want containing %q", err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("config = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestValidate_MissingConnectionIsUnavailable(t *testing.T) {
	err := Config{Kind: KindPostgres}.Validate()
	if !errors.Is(err, entity.ErrConnectionUnavailable) {
		t.Errorf("err = %v, want ErrConnectionUnavailable", err)
	}
}

func TestOpen_REST(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("apikey")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte("[]"))
	}))
	defer srv.Close()

	b, err := Open(context.Background(), Config{Kind: KindREST, RESTURL: srv.URL, RESTAPIKey: "secret"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer b.Close()

	if b.Store == nil || b.Reader == nil || b.Prices == nil || b.Leaderboard == nil {
		t.Fatalf("backend missing components: %+v", b)
	}
	if b.Pool != nil {
		t.Error("rest backend must not open a pool")
	}
	if err := b.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if gotKey != "secret" {
		t.Errorf("apikey header = %q", gotKey)
	}
}

func TestOpen_PostgresUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := Open(ctx, Config{Kind: KindPostgres, DatabaseURL: "postgres://nobody@127.0.0.1:1/ledger?connect_timeout=1"})
	if !errors.Is(err, entity.ErrStoreUnavailable) {
		t.Errorf("err = %v, want ErrStoreUnavailable", err)
	}
}
