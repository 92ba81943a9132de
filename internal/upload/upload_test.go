package upload

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestUpload(t *testing.T) {
	t.Run("posts jpeg to device url", func(t *testing.T) {
		var (
			gotPath, gotCT, gotReqID string
			gotBody                  []byte
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("method = %s; want POST", r.Method)
			}
			gotPath = r.URL.EscapedPath()
			gotCT = r.Header.Get("Content-Type")
			gotReqID = r.Header.Get("X-Request-ID")
			gotBody, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		c := NewClient(srv.Client(), srv.URL+"/api/image/{deviceId}", slog.Default())
		err := c.Upload(context.Background(), "pi 01", bytes.NewReader([]byte{0xFF, 0xD8, 0xFF}))
		if err != nil {
			t.Fatalf("Upload() error = %v, want nil", err)
		}

		if gotPath != "/api/image/pi%2001" {
			t.Errorf("path = %q; want %q", gotPath, "/api/image/pi%2001")
		}
		if gotCT != "image/jpeg" {
			t.Errorf("Content-Type = %q; want image/jpeg", gotCT)
		}
		if gotReqID == "" {
			t.Error("X-Request-ID is empty")
		}
		if !bytes.Equal(gotBody, []byte{0xFF, 0xD8, 0xFF}) {
			t.Errorf("body = %v; want jpeg bytes", gotBody)
		}
	})

	t.Run("non-2xx is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		c := NewClient(srv.Client(), srv.URL+"/{deviceId}", slog.Default())
		if err := c.Upload(context.Background(), "dev", bytes.NewReader(nil)); err == nil {
			t.Fatal("Upload() error = nil; want non-nil")
		}
	})

	t.Run("unreachable endpoint is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		c := NewClient(http.DefaultClient, url+"/{deviceId}", slog.Default())
		if err := c.Upload(context.Background(), "dev", bytes.NewReader(nil)); err == nil {
			t.Fatal("Upload() error = nil; want non-nil")
		}
	})
}
