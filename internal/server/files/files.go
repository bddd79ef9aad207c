// Package files provides the upload, download and listing routes.
package files

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"filegate/internal/failover"
	"filegate/internal/gateway"
	"filegate/internal/keys"
	"filegate/internal/server/auth"
	"filegate/pkg/api"

	"github.com/charmbracelet/log"
)

// Options configures the file routes.
type Options struct {
	// MaxFormMemory is the multipart memory budget; larger uploads spill to temp files.
	MaxFormMemory int64
	// Development lets any principal use the service upload route.
	Development bool
	Logger      *log.Logger
}

type handler struct {
	gw     *gateway.Gateway
	opts   Options
	logger *log.Logger
}

// Handler serves the file routes relative to their mount point. The caller
// is expected to run auth.Optional in front of it.
func Handler(gw *gateway.Gateway, opts Options) http.Handler {
	if opts.MaxFormMemory <= 0 {
		opts.MaxFormMemory = 32 << 20
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	h := &handler{gw: gw, opts: opts, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", h.requirePrincipal(h.upload))
	mux.HandleFunc("POST /uploadFromService", h.requirePrincipal(h.uploadFromService))
	mux.HandleFunc("GET /download/{location}/{uid}/{sessionId}/{fileId}", h.download)
	mux.HandleFunc("GET /download/{uid}/{sessionId}/{fileId}", h.download)
	mux.HandleFunc("GET /list", h.requirePrincipal(h.list))
	return mux
}

func (h *handler) requirePrincipal(next func(http.ResponseWriter, *http.Request, auth.Principal)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := auth.FromContext(r.Context())
		if !ok {
			auth.Unauthorized(w, "unauthorized, a bearer token is required")
			return
		}
		next(w, r, p)
	}
}

// upload stores every file of a multipart form under a new upload session.
func (h *handler) upload(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	files, cleanup, err := h.parseFiles(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	owner := p.Owner()
	h.logger.Info("upload", "owner", owner, "files", len(files))

	dtos, err := h.gw.Upload(r.Context(), owner, files)
	if err != nil {
		h.logger.Error("upload failed", "owner", owner, "err", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dtos)
}

// uploadFromService writes every file to the path given in the query string.
// The path is used verbatim on every backend, shared containers included.
// Outside development only application principals may call it; anyone else
// gets 401.
func (h *handler) uploadFromService(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if !h.opts.Development && p.Role != auth.RoleApplication {
		auth.Unauthorized(w, "only applications may upload to an explicit path")
		return
	}
	path := r.URL.Query().Get("path")
	if err := keys.ValidatePath(path); err != nil {
		writeError(w, http.StatusBadRequest, "invalid path: "+err.Error())
		return
	}

	files, cleanup, err := h.parseFiles(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	h.logger.Info("service upload", "principal", p.Owner(), "path", path, "files", len(files))

	dtos, err := h.gw.UploadToPath(r.Context(), p.Owner(), path, files)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dtos)
}

// download streams a stored file back. Without a location every backend is probed.
func (h *handler) download(w http.ResponseWriter, r *http.Request) {
	location := r.PathValue("location")
	uid := r.PathValue("uid")
	session := r.PathValue("sessionId")
	fileID := r.PathValue("fileId")

	dl, err := h.gw.Download(r.Context(), location, uid, session, fileID)
	if err != nil {
		switch {
		case errors.Is(err, failover.ErrObjectNotFound), errors.Is(err, failover.ErrUnknownLocation):
			writeError(w, http.StatusNotFound, "file not found")
		case errors.Is(err, keys.ErrInvalidKey):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("download failed", "location", location, "uid", uid, "session", session, "file", fileID, "err", err)
			writeError(w, http.StatusBadRequest, "could not read file")
		}
		return
	}
	defer dl.Body.Close()

	w.Header().Set("Content-Disposition", contentDisposition(dl.Filename))
	w.Header().Set("Content-Type", "application/octet-stream")
	if dl.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(dl.Size, 10))
	}
	w.Header().Set("X-Filegate-Location", dl.LocationTag)

	if _, err := io.Copy(w, dl.Body); err != nil {
		h.logger.Warn("download stream error", "file", fileID, "err", err)
	}
}

// list returns the caller's files from every backend.
func (h *handler) list(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	dtos, err := h.gw.List(r.Context(), p.Owner())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if dtos == nil {
		dtos = []api.FileDto{}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// parseFiles reads the multipart form. Each file can be reopened, once per
// backend attempt. Fields are taken in name order, files within a field in form order.
func (h *handler) parseFiles(r *http.Request) ([]gateway.File, func(), error) {
	if err := r.ParseMultipartForm(h.opts.MaxFormMemory); err != nil {
		return nil, func() {}, fmt.Errorf("failed to parse form: %w", err)
	}
	form := r.MultipartForm
	cleanup := func() {
		if err := form.RemoveAll(); err != nil {
			h.logger.Warn("could not remove multipart temp files", "err", err)
		}
	}

	fields := make([]string, 0, len(form.File))
	for name := range form.File {
		fields = append(fields, name)
	}
	sort.Strings(fields)

	var files []gateway.File
	for _, name := range fields {
		for _, fh := range form.File[name] {
			files = append(files, fileFromHeader(fh))
		}
	}
	if len(files) == 0 {
		cleanup()
		return nil, func() {}, errors.New("no files in form")
	}
	return files, cleanup, nil
}

func fileFromHeader(fh *multipart.FileHeader) gateway.File {
	return gateway.File{
		Filename:    fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// contentDisposition quotes a plain ASCII fallback and adds the RFC 5987 form
// for names that need it.
func contentDisposition(filename string) string {
	fallback := sanitizeFilename(filename)
	v := fmt.Sprintf(`attachment; filename="%s"`, fallback)
	if fallback != filename {
		v += "; filename*=UTF-8''" + strings.ReplaceAll(url.QueryEscape(filename), "+", "%20")
	}
	return v
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f || r > 0x7e:
			b.WriteRune('_')
		case r == '"' || r == '\\' || r == '/':
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "download"
	}
	return b.String()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, api.ErrorResponse{Errors: []string{msg}})
}
