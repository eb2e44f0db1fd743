package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/couchcryptid/quakemap/internal/domain"
	"github.com/couchcryptid/quakemap/internal/render"
)

// Controller is the mounted-map slot the API renders into.
type Controller interface {
	Render(ctx context.Context, window domain.TimeWindow) (*render.MapSession, error)
	Current() *render.MapSession
	DefaultWindow() domain.TimeWindow
	CheckReadiness(ctx context.Context) error
}

// SceneRenderer renders a scene without touching the mounted session.
type SceneRenderer interface {
	Render(ctx context.Context, window domain.TimeWindow) (domain.Scene, error)
}

type api struct {
	ctrl     Controller
	renderer SceneRenderer
	page     *page
	logger   *slog.Logger
}

// handleRender renders the requested window into the mounted session.
func (a *api) handleRender(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidTimeFrame, "invalid form body")
		return
	}
	window, err := a.window(r.Form.Get("time_frame"))
	if err != nil {
		writeRenderError(w, err)
		return
	}

	session, err := a.ctrl.Render(r.Context(), window)
	if err != nil {
		a.logRenderError(r, window, err)
		writeRenderError(w, err)
		return
	}
	w.Header().Set("ETag", etag(session.Scene.Fingerprint))
	writeJSON(w, http.StatusOK, session.Scene)
}

// handleSession returns the currently mounted scene.
func (a *api) handleSession(w http.ResponseWriter, _ *http.Request) {
	session := a.ctrl.Current()
	if session == nil {
		writeError(w, http.StatusNotFound, codeNoSession, "no map session mounted yet")
		return
	}
	w.Header().Set("ETag", etag(session.Scene.Fingerprint))
	writeJSON(w, http.StatusOK, session.Scene)
}

// handleScene renders a window statelessly. Clients revalidate with If-None-Match.
func (a *api) handleScene(w http.ResponseWriter, r *http.Request) {
	window, err := a.window(r.URL.Query().Get("time_frame"))
	if err != nil {
		writeRenderError(w, err)
		return
	}

	scene, err := a.renderer.Render(r.Context(), window)
	if err != nil {
		a.logRenderError(r, window, err)
		writeRenderError(w, err)
		return
	}

	tag := etag(scene.Fingerprint)
	w.Header().Set("ETag", tag)
	w.Header().Set("Cache-Control", "no-cache")
	if matchesETag(r.Header.Get("If-None-Match"), tag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, scene)
}

func (a *api) window(raw string) (domain.TimeWindow, error) {
	if strings.TrimSpace(raw) == "" {
		return a.ctrl.DefaultWindow(), nil
	}
	return domain.ParseTimeWindow(raw)
}

func (a *api) logRenderError(r *http.Request, window domain.TimeWindow, err error) {
	switch {
	case errors.Is(err, domain.ErrSuperseded), errors.Is(err, context.Canceled):
		a.logger.Debug("render abandoned", "path", r.URL.Path, "window", window, "error", err)
	default:
		a.logger.Warn("render request failed", "path", r.URL.Path, "window", window, "error", err)
	}
}

func etag(fingerprint string) string {
	return `"` + fingerprint + `"`
}

// matchesETag reports whether an If-None-Match header lists tag. Weak
// validators compare equal to their strong form.
func matchesETag(header, tag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "*" || strings.TrimPrefix(candidate, "W/") == tag {
			return true
		}
	}
	return false
}
