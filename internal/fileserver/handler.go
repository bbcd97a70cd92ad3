package fileserver

import (
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"sharebridge/internal/fault"
)

type Handler struct {
	share *Share
}

func NewHandler(share *Share) *Handler {
	return &Handler{share: share}
}

// Routes mounts the read-only file API.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)
	r.Get("/list", h.List)
	r.Get("/read/{filename}", h.Read)
	r.Get("/download/{filename}", h.Download)
	r.Get("/sheets/{filename}", h.Sheets)
}

type errorBody struct {
	Kind    fault.Kind `json:"kind"`
	Message string     `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := errorBody{Kind: fault.KindOf(err), Message: err.Error()}
	var fe *fault.Error
	if errors.As(err, &fe) {
		body.Message = fe.Message
	}
	render.Status(r, fault.StatusCode(err))
	render.JSON(w, r, errorResponse{Error: body})
}

type healthResponse struct {
	Status     string    `json:"status"`
	Timestamp  time.Time `json:"timestamp"`
	SharedPath string    `json:"shared_path"`
	PathExists bool      `json:"path_exists"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, healthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		SharedPath: h.share.Root(),
		PathExists: h.share.Exists(),
	})
}

type listResponse struct {
	Files []FileDescriptor `json:"files"`
	Count int              `json:"count"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	files, err := h.share.List()
	if err != nil {
		slog.Error("failed to list share", "err", err)
		writeError(w, r, err)
		return
	}
	slog.Info("listed share", "count", len(files))
	render.JSON(w, r, listResponse{Files: files, Count: len(files)})
}

func (h *Handler) Read(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")
	sheet := r.URL.Query().Get("sheet")

	maxRows := 0
	if v := r.URL.Query().Get("rows"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, fault.Newf(fault.Validation, "invalid rows parameter %q", v))
			return
		}
		maxRows = n
	}

	rows, err := h.share.ReadStructured(filename, sheet, maxRows)
	if err != nil {
		slog.Error("failed to read file", "file", filename, "sheet", sheet, "err", err)
		writeError(w, r, err)
		return
	}
	slog.Info("read file", "file", filename, "sheet", rows.Sheet, "rows", rows.Shape[0], "cols", rows.Shape[1])
	render.JSON(w, r, rows)
}

func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	path, err := h.share.Stat(filename)
	if err != nil {
		slog.Error("failed to resolve download", "file", filename, "err", err)
		writeError(w, r, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, r, fault.Wrap(fault.Access, "cannot open "+filename, err))
		return
	}
	defer f.Close()

	contentType := mime.TypeByExtension(filepath.Ext(filename))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	slog.Info("downloading file", "file", filename)
	if _, err := io.Copy(w, f); err != nil {
		slog.Error("download interrupted", "file", filename, "err", err)
	}
}

type sheetsResponse struct {
	Sheets []TableSheet `json:"sheets"`
}

func (h *Handler) Sheets(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	sheets, err := h.share.ListSheets(filename)
	if err != nil {
		slog.Error("failed to list sheets", "file", filename, "err", err)
		writeError(w, r, err)
		return
	}
	slog.Info("listed sheets", "file", filename, "count", len(sheets))
	render.JSON(w, r, sheetsResponse{Sheets: sheets})
}
