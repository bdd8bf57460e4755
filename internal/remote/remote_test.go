package remote

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"

	"libdb.so/barbatos/internal/animation"
	"libdb.so/barbatos/internal/controller"
	"libdb.so/barbatos/internal/led"
	"libdb.so/barbatos/internal/thruster"
)

type fakeController struct {
	mu       sync.Mutex
	switched []animation.Mode
	err      error
}

func (c *fakeController) Switch(ctx context.Context, mode animation.Mode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.switched = append(c.switched, mode)
	return nil
}

func (c *fakeController) Status() controller.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := controller.Status{Palette: thruster.PaletteFlame, Running: true}
	if n := len(c.switched); n > 0 {
		s.Mode = c.switched[n-1]
	}
	return s
}

type fixedLevels led.Levels

func (l fixedLevels) Levels() led.Levels { return led.Levels(l) }

func newTestHandler(ctrl Controller) *Handler {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	levels := fixedLevels{led.Head: 200, led.ThrusterB: 255}
	return NewHandler(ctrl, levels, "MG Barbatos LED Control", logger)
}

func postMode(h http.Handler, mode string) *httptest.ResponseRecorder {
	form := url.Values{"mode": {mode}}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRenderPage(t *testing.T) {
	h := newTestHandler(&fakeController{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"MG Barbatos LED Control",
		`value="startup"`,
		`value="1"`,
		`value="2"`,
		`value="3"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("page missing %q", want)
		}
	}
}

func TestPostMode(t *testing.T) {
	tests := []struct {
		selector string
		want     []animation.Mode
	}{
		{"startup", []animation.Mode{animation.Startup}},
		{"1", []animation.Mode{animation.Static}},
		{"2", []animation.Mode{animation.Breathe}},
		{"3", []animation.Mode{animation.Flicker}},
		{"4", nil},
		{"", nil},
		{"rainbow", nil},
		{"static", nil},
		{"FLICKER", nil},
		{"Startup", nil},
		{" 1 ", nil},
	}

	for _, tt := range tests {
		t.Run(tt.selector, func(t *testing.T) {
			ctrl := &fakeController{}
			h := newTestHandler(ctrl)

			rec := postMode(h, tt.selector)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "<form") {
				t.Error("response is not the control page")
			}

			if len(ctrl.switched) != len(tt.want) {
				t.Fatalf("switched = %v, want %v", ctrl.switched, tt.want)
			}
			for i := range tt.want {
				if ctrl.switched[i] != tt.want[i] {
					t.Errorf("switched = %v, want %v", ctrl.switched, tt.want)
				}
			}
		})
	}
}

func TestPostModeFaulted(t *testing.T) {
	ctrl := &fakeController{err: controller.ErrFaulted}
	h := newTestHandler(ctrl)

	rec := postMode(h, "2")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStatus(t *testing.T) {
	ctrl := &fakeController{}
	h := newTestHandler(ctrl)
	postMode(h, "1")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp StatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Mode != "static" || !resp.Running || resp.Palette != "flame" {
		t.Errorf("status = %+v", resp)
	}
	if resp.Levels["head"] != 200 || resp.Levels["thrusterB"] != 255 || resp.Levels["chest"] != 0 {
		t.Errorf("levels = %v", resp.Levels)
	}
	if resp.Fault != "" {
		t.Errorf("fault = %q, want empty", resp.Fault)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(&fakeController{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "go_goroutines") {
		t.Error("metrics output missing default collectors")
	}
}

