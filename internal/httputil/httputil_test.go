package httputil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestWriteError(t *testing.T) {
	w := httptest.NewRecorder()
	WriteError(w, http.StatusBadRequest, "lat is required", map[string]any{"param": "lat"})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]any
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] != "lat is required" || body["param"] != "lat" {
		t.Errorf("body = %v", body)
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		trustProxy bool
		xff        string
		xri        string
		remoteAddr string
		want       string
	}{
		{"remote addr v4", false, "", "", "192.168.1.1:12345", "192.168.1.1"},
		{"remote addr v6", false, "", "", "[::1]:12345", "::1"},
		{"remote addr without port", false, "", "", "192.168.1.1", "192.168.1.1"},
		{"headers ignored untrusted", false, "1.2.3.4", "5.6.7.8", "10.0.0.1:1234", "10.0.0.1"},
		{"XFF single", true, "1.2.3.4", "", "10.0.0.1:1234", "1.2.3.4"},
		{"XFF takes first", true, "1.2.3.4, 10.0.0.1, 10.0.0.2", "", "10.0.0.3:1234", "1.2.3.4"},
		{"XFF wins over X-Real-IP", true, "1.2.3.4", "5.6.7.8", "10.0.0.1:1234", "1.2.3.4"},
		{"X-Real-IP fallback", true, "", "5.6.7.8", "10.0.0.1:1234", "5.6.7.8"},
		{"empty XFF entry", true, " , 10.0.0.2", "", "10.0.0.1:1234", "10.0.0.1"},
		{"no headers", true, "", "", "10.0.0.1:1234", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &http.Request{RemoteAddr: tt.remoteAddr, Header: http.Header{}}
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				r.Header.Set("X-Real-IP", tt.xri)
			}
			if got := ClientIP(r, tt.trustProxy); got != tt.want {
				t.Errorf("ClientIP = %q, want %q", got, tt.want)
			}
		})
	}
}
