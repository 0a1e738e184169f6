package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"

	"ragbot/internal/contextutil"
	"ragbot/internal/registry"
)

// SourceCatalog is the read side of the source registry.
type SourceCatalog interface {
	Filenames() []string
	Resolve(filename string) (registry.Source, bool)
}

// SourceHandler lists registered sources and shows the text extracted from each page.
type SourceHandler struct {
	catalog  SourceCatalog
	filesDir string
	template *template.Template
}

// sourcePageData holds template data for rendered source pages.
type sourcePageData struct {
	Title      string
	URL        string
	Paragraphs []string
}

var sourcePage = template.Must(template.New("source").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <title>{{.Title}}</title>
  <style>
    body {
      font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif;
      margin: 0 auto;
      padding: 2rem;
      max-width: 900px;
      line-height: 1.6;
    }
    .meta {
      color: #64748b;
      font-size: 0.95rem;
    }
  </style>
</head>
<body>
  <header>
    <h1>{{.Title}}</h1>
    <p class="meta">Source: <a href="{{.URL}}">{{.URL}}</a></p>
  </header>
  <article>
  {{- range .Paragraphs}}
    <p>{{.}}</p>
  {{- end}}
  </article>
</body>
</html>`))

// NewSourceHandler creates a new SourceHandler. filesDir holds the fetched pages and their .txt extracts.
func NewSourceHandler(catalog SourceCatalog, filesDir string) *SourceHandler {
	return &SourceHandler{
		catalog:  catalog,
		filesDir: filesDir,
		template: sourcePage,
	}
}

// SourceResponse describes one registered document.
type SourceResponse struct {
	Filename    string `json:"filename"`
	URL         string `json:"url"`
	OriginalURL string `json:"original_url"`
	FinalURL    string `json:"final_url,omitempty"`
}

// SourcesResponse lists registered documents in registration order.
type SourcesResponse struct {
	Sources []SourceResponse `json:"sources"`
}

// List handles GET /api/v1/sources.
func (h *SourceHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	filenames := h.catalog.Filenames()
	resp := SourcesResponse{Sources: make([]SourceResponse, 0, len(filenames))}
	for _, name := range filenames {
		src, ok := h.catalog.Resolve(name)
		if !ok {
			continue
		}
		resp.Sources = append(resp.Sources, SourceResponse{
			Filename:    name,
			URL:         src.URL(),
			OriginalURL: src.OriginalURL,
			FinalURL:    src.FinalURL,
		})
	}
	writeJSON(ctx, w, http.StatusOK, resp)
}

// ServeHTTP renders the text extracted from a registered page as HTML.
func (h *SourceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	name, err := url.PathUnescape(strings.TrimSpace(chi.URLParam(r, "filename")))
	if err != nil || name == "" || filepath.Base(name) != name {
		http.Error(w, "invalid source name", http.StatusBadRequest)
		return
	}

	src, ok := h.catalog.Resolve(name)
	if !ok {
		http.Error(w, "source not found", http.StatusNotFound)
		return
	}

	textPath := filepath.Join(h.filesDir, strings.TrimSuffix(name, filepath.Ext(name))+".txt")
	data, err := os.ReadFile(textPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.Error(w, "source text not extracted yet", http.StatusNotFound)
			return
		}
		logger.ErrorContext(ctx, "failed to read source text", "path", textPath, "error", err)
		http.Error(w, "failed to read source", http.StatusInternalServerError)
		return
	}

	pageData := sourcePageData{
		Title:      strings.TrimSuffix(name, filepath.Ext(name)),
		URL:        src.URL(),
		Paragraphs: paragraphs(string(data)),
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.template.Execute(w, pageData); err != nil {
		logger.ErrorContext(ctx, "failed to execute source template", "path", textPath, "error", err)
		http.Error(w, "failed to render source", http.StatusInternalServerError)
		return
	}
}

func paragraphs(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
