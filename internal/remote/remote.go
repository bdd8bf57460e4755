// Package remote serves the control page used to switch lighting modes.
package remote

import (
	"context"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"libdb.so/barbatos/internal/animation"
	"libdb.so/barbatos/internal/controller"
	"libdb.so/barbatos/internal/led"
	"libdb.so/barbatos/internal/metrics"
)

// Controller is the part of *controller.Controller the control surface uses.
type Controller interface {
	Switch(ctx context.Context, mode animation.Mode) error
	Status() controller.Status
}

var _ Controller = (*controller.Controller)(nil)

// LevelReader reports the last levels written to the LEDs. *led.Shadow
// implements it.
type LevelReader interface {
	Levels() led.Levels
}

type button struct {
	Value string
	Label string
	Class string
}

var buttons = []button{
	{animation.Startup.Selector(), "Startup Mode", "startup"},
	{animation.Static.Selector(), "Mode 1 - Static Glow", "mode1"},
	{animation.Breathe.Selector(), "Mode 2 - Breathing", "mode2"},
	{animation.Flicker.Selector(), "Mode 3 - Flicker", "mode3"},
}

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
	<title>{{.Title}}</title>
	<meta name="viewport" content="width=device-width, initial-scale=1">
	<style>
		body { background: #000; color: #fff; font-family: sans-serif; text-align: center; padding: 40px; }
		button { margin: 10px; padding: 12px 24px; font-size: 16px; border: none; border-radius: 8px; }
		.startup { background-color: #9b59b6; }
		.mode1 { background-color: #2980b9; }
		.mode2 { background-color: #27ae60; }
		.mode3 { background-color: #e67e22; }
	</style>
</head>
<body>
	<h1>{{.Title}}</h1>
	<form method="post">
	{{- range .Buttons}}
		<button name="mode" value="{{.Value}}" class="{{.Class}}">{{.Label}}</button>
	{{- end}}
	</form>
</body>
</html>
`))

// Handler serves the control surface.
type Handler struct {
	chi.Router
	ctrl   Controller
	levels LevelReader
	title  string
	logger *slog.Logger
}

// NewHandler creates the HTTP handler. levels may be nil.
func NewHandler(ctrl Controller, levels LevelReader, title string, logger *slog.Logger) *Handler {
	h := &Handler{
		Router: chi.NewRouter(),
		ctrl:   ctrl,
		levels: levels,
		title:  title,
		logger: logger,
	}

	h.Use(middleware.Recoverer)
	h.Use(h.logRequests)

	h.Get("/", h.render)
	h.Post("/", h.switchMode)
	h.Get("/api/status", h.status)
	h.Method(http.MethodGet, "/metrics", metrics.Handler())

	return h
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug(
			"handled request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status())
	})
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := page.Execute(w, struct {
		Title   string
		Buttons []button
	}{
		Title:   h.title,
		Buttons: buttons,
	})
	if err != nil {
		h.logger.Warn("failed to render control page", "error", err)
	}
}

// switchMode switches to the posted mode and renders the page once the switch
// has completed. Unknown selectors leave the current mode alone.
func (h *Handler) switchMode(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	selector := r.PostFormValue("mode")
	mode, err := animation.ParseMode(selector)
	if err != nil {
		h.logger.Debug("ignoring mode request", "mode", selector, "error", err)
		h.render(w, r)
		return
	}

	if err := h.ctrl.Switch(r.Context(), mode); err != nil {
		h.logger.Warn("failed to switch mode", "mode", mode, "error", err)

		code := http.StatusServiceUnavailable
		if r.Context().Err() != nil {
			code = http.StatusRequestTimeout
		}
		http.Error(w, err.Error(), code)
		return
	}

	h.render(w, r)
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Mode    string         `json:"mode"`
	Running bool           `json:"running"`
	Palette string         `json:"palette"`
	Fault   string         `json:"fault,omitempty"`
	Levels  map[string]int `json:"levels,omitempty"`
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	s := h.ctrl.Status()
	resp := StatusResponse{
		Mode:    s.Mode.String(),
		Running: s.Running,
		Palette: s.Palette.String(),
	}
	if s.Fault != nil {
		resp.Fault = s.Fault.Error()
	}
	if h.levels != nil {
		levels := h.levels.Levels()
		resp.Levels = make(map[string]int, len(levels))
		for _, ch := range led.Channels {
			resp.Levels[ch.String()] = int(levels[ch])
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Warn("failed to write status", "error", err)
	}
}
