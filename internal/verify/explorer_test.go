package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ggonzalez94/deployctl/internal/cache"
	clierr "github.com/ggonzalez94/deployctl/internal/errors"
	"github.com/ggonzalez94/deployctl/internal/httpx"
	"github.com/ggonzalez94/deployctl/internal/id"
	"github.com/ggonzalez94/deployctl/internal/registry"
)

func explorerRegistry(t *testing.T, apiURL string) *registry.Registry {
	t.Helper()
	profiles := registry.DefaultProfiles()
	for i := range profiles {
		if profiles[i].ID == id.BaseMainnet {
			profiles[i].Explorer.APIURL = apiURL
		}
	}
	keys := registry.LoadAPIKeys(func(name string) string { return "key-" + strings.ToLower(name) })
	reg, err := registry.New(registry.Options{Profiles: profiles, APIKeys: keys, NodeRealKey: "nr"})
	if err != nil {
		t.Fatalf("registry.New failed: %v", err)
	}
	return reg
}

func TestExplorerStatusVerifiedAndCached(t *testing.T) {
	var hits int32
	var gotKey, gotAction string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		gotKey = r.URL.Query().Get("apikey")
		gotAction = r.URL.Query().Get("action")
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[{"SourceCode":"pragma solidity 0.5.17;","ContractName":"MultiRewards","CompilerVersion":"v0.5.17+commit.d19bba13"}]}`))
	}))
	defer srv.Close()

	dir := t.TempDir()
	store, err := cache.Open(filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"))
	if err != nil {
		t.Fatalf("cache.Open failed: %v", err)
	}
	defer store.Close()

	client := NewExplorerClient(httpx.New(httpx.Options{Timeout: 2 * time.Second}), explorerRegistry(t, srv.URL+"/api"), store, nil)
	status, err := client.Status(context.Background(), id.BaseMainnet, testAddress)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if !status.Verified || status.ContractName != "MultiRewards" || status.Cached {
		t.Fatalf("unexpected status %+v", status)
	}
	if gotKey != "key-basescan_api_key" || gotAction != "getsourcecode" {
		t.Fatalf("unexpected query key=%s action=%s", gotKey, gotAction)
	}

	again, err := client.Status(context.Background(), id.BaseMainnet, testAddress)
	if err != nil {
		t.Fatalf("second Status failed: %v", err)
	}
	if !again.Cached || atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected cached answer, got %+v hits=%d", again, hits)
	}
}

func TestExplorerStatusUnverified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1","message":"OK","result":[{"SourceCode":"","ContractName":""}]}`))
	}))
	defer srv.Close()

	client := NewExplorerClient(httpx.New(httpx.Options{Timeout: 2 * time.Second}), explorerRegistry(t, srv.URL), nil, nil)
	status, err := client.Status(context.Background(), id.BaseMainnet, testAddress)
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if status.Verified {
		t.Fatalf("expected unverified status, got %+v", status)
	}
}

func TestExplorerStatusInvalidKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"0","message":"NOTOK","result":"Invalid API Key"}`))
	}))
	defer srv.Close()

	client := NewExplorerClient(httpx.New(httpx.Options{Timeout: 2 * time.Second}), explorerRegistry(t, srv.URL), nil, nil)
	_, err := client.Status(context.Background(), id.BaseMainnet, testAddress)
	if !clierr.HasCode(err, clierr.CodeAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestExplorerStatusRejectsUnknownExplorer(t *testing.T) {
	client := NewExplorerClient(httpx.New(httpx.Options{Timeout: time.Second}), explorerRegistry(t, "https://example.invalid/api"), nil, nil)
	if _, err := client.Status(context.Background(), id.HederaMainnet, testAddress); !clierr.HasCode(err, clierr.CodeUnsupported) {
		t.Fatalf("expected unsupported for chain without explorer, got %v", err)
	}
	if _, err := client.Status(context.Background(), id.BaseMainnet, "nope"); !clierr.HasCode(err, clierr.CodeUsage) {
		t.Fatalf("expected usage error for bad address, got %v", err)
	}
}
