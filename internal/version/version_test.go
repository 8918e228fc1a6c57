/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"0.4.0", "0.4.0", 0},
		{"0.4.0", "v0.4.1", -1},
		{"1.0.0", "0.9.9", 1},
		{"0.10.0", "0.9.0", 1},
		{"0.4", "0.4.0", 0},
	}
	for _, tt := range tests {
		if got := compareVersions(tt.a, tt.b); got != tt.want {
			t.Errorf("compareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestCheckReportsNewerRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/"+GitHubRepo+"/releases/latest" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"tag_name":"v99.0.0","html_url":"https://example.com/r","body":"Wiper timing fix\nmore"}`))
	}))
	defer srv.Close()

	c := &Checker{BaseURL: srv.URL, HTTPClient: srv.Client()}
	info, err := c.Check(context.Background())
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !info.UpdateAvailable || info.LatestVersion != "99.0.0" {
		t.Errorf("info = %+v", info)
	}
	if info.ReleaseNotes != "Wiper timing fix" {
		t.Errorf("notes = %q", info.ReleaseNotes)
	}
}

func TestCheckFailsOnBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	c := &Checker{BaseURL: srv.URL, HTTPClient: srv.Client()}
	if _, err := c.Check(context.Background()); err == nil || !strings.Contains(err.Error(), "403") {
		t.Errorf("err = %v, want status error", err)
	}
}

func TestTruncateNotes(t *testing.T) {
	long := strings.Repeat("x", 250)
	if got := truncateNotes(long, 200); len(got) != 200 || !strings.HasSuffix(got, "...") {
		t.Errorf("len = %d", len(got))
	}
}
