// Package web serves the dashboard over HTTP: an HTML page, chart images,
// a JSON API and operational endpoints.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/TFMV/bikedash/db"
	"github.com/TFMV/bikedash/present"
	chartrender "github.com/TFMV/bikedash/render"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

//go:embed templates/index.html
var templates embed.FS

var indexTmpl = template.Must(template.ParseFS(templates, "templates/index.html"))

// Dashboard is the pipeline the handlers read from.
type Dashboard interface {
	Table(ctx context.Context) (*db.Table, error)
	Page(ctx context.Context, v present.View) (*present.Page, error)
	Preview(ctx context.Context) (db.Preview, error)
}

// Options sizes chart images.
type Options struct {
	ChartWidth  int
	ChartHeight int
}

// Handler serves the dashboard routes.
type Handler struct {
	svc    Dashboard
	logger *zap.Logger
	opts   Options
}

func NewHandler(svc Dashboard, logger *zap.Logger, opts Options) *Handler {
	return &Handler{
		svc:    svc,
		logger: logger.With(zap.String("component", "web")),
		opts:   opts,
	}
}

// Routes returns the dashboard router
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.AccessLog)
	r.Use(middleware.Recoverer)

	r.Get("/", h.Index)
	r.Get("/healthz", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/charts/{view}", func(r chi.Router) {
		r.Use(h.ViewCtx)
		r.Get("/{index}.png", h.GetChart)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Get("/views", h.ListViews)
		r.Get("/preview", h.GetPreview)
		r.Route("/views/{view}", func(r chi.Router) {
			r.Use(h.ViewCtx)
			r.Get("/", h.GetView)
		})
	})
	return r
}

type viewKey struct{}

// ViewCtx middleware resolves the {view} parameter
func (h *Handler) ViewCtx(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, err := present.ParseView(chi.URLParam(r, "view"))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), viewKey{}, v)))
	})
}

func viewFrom(ctx context.Context) present.View {
	v, _ := ctx.Value(viewKey{}).(present.View)
	return v
}

// AccessLog logs one line per request, at a level chosen by status code.
func (h *Handler) AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		level := zapcore.InfoLevel
		switch status := ww.Status(); {
		case status >= 500:
			level = zapcore.ErrorLevel
		case status >= 400:
			level = zapcore.WarnLevel
		}
		if ce := h.logger.Check(level, "request"); ce != nil {
			ce.Write(
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.Int("bytes", ww.BytesWritten()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		}
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)
	if apiErr.StatusCode >= 500 {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	_ = render.Render(w, r, apiErr)
}

type viewSummary struct {
	Slug    string `json:"slug"`
	Label   string `json:"label"`
	Heading string `json:"heading"`
}

// ListViews handles GET /api/views
func (h *Handler) ListViews(w http.ResponseWriter, r *http.Request) {
	views := present.Views()
	out := make([]viewSummary, len(views))
	for i, v := range views {
		out[i] = viewSummary{Slug: v.Slug(), Label: v.String(), Heading: v.Heading()}
	}
	render.JSON(w, r, map[string]interface{}{
		"views":   out,
		"default": views[0].Slug(),
	})
}

// GetView handles GET /api/views/{view}
func (h *Handler) GetView(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Page(r.Context(), viewFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, page)
}

// GetPreview handles GET /api/preview
func (h *Handler) GetPreview(w http.ResponseWriter, r *http.Request) {
	preview, err := h.svc.Preview(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, preview)
}

// GetChart handles GET /charts/{view}/{index}.png
func (h *Handler) GetChart(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.Page(r.Context(), viewFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	i, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || i < 0 || i >= len(page.Charts) {
		h.fail(w, r, newAPIError(http.StatusNotFound, "CHART_NOT_FOUND", "Chart not found", chi.URLParam(r, "index")))
		return
	}

	var buf bytes.Buffer
	if err := chartrender.PNG(&buf, page.Charts[i], h.opts.ChartWidth, h.opts.ChartHeight); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(buf.Bytes())
}

// Health handles GET /healthz
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Table(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status": "ok",
		"rows":   t.NumRows(),
	})
}

type viewOption struct {
	Slug, Label string
	Selected    bool
}

type chartLink struct {
	Title, URL string
}

type indexData struct {
	Title     string
	Views     []viewOption
	Preview   db.Preview
	Heading   string
	Charts    []chartLink
	ViewError string
	Fatal     string
	Source    string
}

// Index handles GET / and renders the selected view, the first by default.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	selected := present.Views()[0]
	var viewErr error
	if q := r.URL.Query().Get("view"); q != "" {
		if selected, viewErr = present.ParseView(q); viewErr != nil {
			selected = present.Views()[0]
		}
	}

	data := indexData{Title: present.Title, Source: present.DataSource, Heading: selected.Heading()}
	for _, v := range present.Views() {
		data.Views = append(data.Views, viewOption{Slug: v.Slug(), Label: v.String(), Selected: v == selected})
	}

	status := http.StatusOK
	preview, err := h.svc.Preview(r.Context())
	if err != nil {
		apiErr := toAPIError(err)
		status, data.Fatal = apiErr.StatusCode, apiErr.Message+": "+err.Error()
	} else if viewErr != nil {
		data.Preview = preview
		data.Heading = ""
		apiErr := toAPIError(viewErr)
		status, data.ViewError = apiErr.StatusCode, apiErr.Message+": "+viewErr.Error()
	} else {
		data.Preview = preview
		page, err := h.svc.Page(r.Context(), selected)
		switch {
		case errors.Is(err, db.ErrDataUnavailable):
			apiErr := toAPIError(err)
			status, data.Fatal = apiErr.StatusCode, apiErr.Message+": "+err.Error()
		case err != nil:
			apiErr := toAPIError(err)
			status, data.ViewError = apiErr.StatusCode, apiErr.Message+": "+err.Error()
		default:
			for i, c := range page.Charts {
				data.Charts = append(data.Charts, chartLink{
					Title: c.Title,
					URL:   "/charts/" + selected.Slug() + "/" + strconv.Itoa(i) + ".png",
				})
			}
		}
	}

	var buf bytes.Buffer
	if err := indexTmpl.Execute(&buf, data); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
