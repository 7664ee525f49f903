package handler

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/speedrun-record/internal/domain"
)

//go:embed templates/page.html
var templateFS embed.FS

var pageTemplate = template.Must(template.ParseFS(templateFS, "templates/page.html"))

type pageData struct {
	Title  string
	Board  string
	State  string
	Record *domain.Record
}

// Page renders the record page. Until the record loads it shows only the
// loading placeholder and reloads itself when the websocket announces the
// record.
func (h *Handler) Page(w http.ResponseWriter, r *http.Request) {
	state, err := h.state(r)
	if err != nil {
		h.logger.Error("failed to get record", "error", err)
		http.Error(w, domain.ErrInternalError.Error(), http.StatusInternalServerError)
		return
	}

	data := pageData{
		Title:  h.service.Title(),
		Board:  state.Board,
		State:  state.State,
		Record: state.Record,
	}

	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, data); err != nil {
		h.logger.Error("failed to render page", "error", err)
		http.Error(w, domain.ErrInternalError.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = buf.WriteTo(w)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrInvalidRequest)
	}
	return limit, nil
}
