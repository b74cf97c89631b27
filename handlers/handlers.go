package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"taskdeploy-backend/artifactstore"
	"taskdeploy-backend/models"
	"taskdeploy-backend/security"
	"taskdeploy-backend/services"
)

// BaseHandler provides common functionality for all handlers
type BaseHandler struct{}

// NewBaseHandler creates a new base handler
func NewBaseHandler() *BaseHandler {
	return &BaseHandler{}
}

// sendJSON sends a JSON response
func (h *BaseHandler) sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// sendError sends an error response
func (h *BaseHandler) sendError(w http.ResponseWriter, statusCode int, message string) {
	errorResp := models.NewErrorResponse(message, statusCode)
	h.sendJSON(w, statusCode, errorResp)
}

// sendSuccess sends a success response
func (h *BaseHandler) sendSuccess(w http.ResponseWriter, data interface{}) {
	successResp := models.NewSuccessResponse(data)
	h.sendJSON(w, http.StatusOK, successResp)
}

// parseJSON parses JSON from request
func (h *BaseHandler) parseJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// ServiceName is reported by the root status endpoint.
const ServiceName = "LLM Code Deployment"

// HealthHandler handles health check requests
type HealthHandler struct {
	*BaseHandler
	healthService *services.HealthService
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(healthService *services.HealthService) *HealthHandler {
	return &HealthHandler{
		BaseHandler:   NewBaseHandler(),
		healthService: healthService,
	}
}

// HandleRoot reports liveness in the shape callers of the service expect.
// @Summary Service status
// @Tags Health
// @Produce json
// @Success 200 {object} models.ServiceStatus
// @Router / [get]
func (h *HealthHandler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		h.sendJSON(w, http.StatusNotFound, models.TaskErrorResponse{Error: "Not found"})
		return
	}
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	h.sendJSON(w, http.StatusOK, models.ServiceStatus{Status: "ok", Service: ServiceName})
}

// HandleHealth handles health check requests
// @Summary Health check
// @Tags Health
// @Produce json
// @Success 200 {object} models.APIResponse
// @Router /api/health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	health := h.healthService.GetHealthStatus()
	h.sendSuccess(w, health)
}

// ProjectHandler exposes the naming convention of published projects.
type ProjectHandler struct {
	*BaseHandler
	qrService *services.QRCodeService
	repoURL   func(string) string
	pagesURL  func(string) string
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(qrService *services.QRCodeService, repoURL, pagesURL func(string) string) *ProjectHandler {
	return &ProjectHandler{
		BaseHandler: NewBaseHandler(),
		qrService:   qrService,
		repoURL:     repoURL,
		pagesURL:    pagesURL,
	}
}

func (h *ProjectHandler) projectName(r *http.Request) (string, bool) {
	q := r.URL.Query()
	name := q.Get("name")
	if name == "" && q.Get("task") != "" && q.Get("nonce") != "" {
		name = models.ProjectName(q.Get("task"), q.Get("nonce"))
	}
	if name == "" {
		return "", false
	}
	if _, err := security.SanitizeProjectName(name); err != nil {
		return "", false
	}
	return name, true
}

// HandleLinks returns the repository and publication URLs of a project.
// @Summary Project links
// @Tags Projects
// @Produce json
// @Param name query string false "project name"
// @Param task query string false "task id"
// @Param nonce query string false "nonce"
// @Success 200 {object} models.APIResponse
// @Failure 400 {object} models.APIResponse
// @Router /api/projects/links [get]
func (h *ProjectHandler) HandleLinks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	name, ok := h.projectName(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "name or task and nonce required")
		return
	}
	h.sendSuccess(w, models.ProjectLinks{
		Project:  name,
		RepoURL:  h.repoURL(name),
		PagesURL: h.pagesURL(name),
	})
}

// HandleQRCode renders the publication URL of a project as a PNG.
// @Summary Project QR code
// @Tags Projects
// @Produce png
// @Param name query string false "project name"
// @Param size query int false "edge length in pixels"
// @Success 200 {file} binary
// @Failure 400 {object} models.APIResponse
// @Router /api/projects/qrcode [get]
func (h *ProjectHandler) HandleQRCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	name, ok := h.projectName(r)
	if !ok {
		h.sendError(w, http.StatusBadRequest, "name or task and nonce required")
		return
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	qrData, err := h.qrService.ProjectQRCode(name, size)
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to generate QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(qrData)
}

// SiteHandler serves published projects for drivers that host content
// themselves.
type SiteHandler struct {
	*BaseHandler
	reader artifactstore.SiteReader
	prefix string
}

// NewSiteHandler serves reader under prefix, e.g. "/sites/".
func NewSiteHandler(reader artifactstore.SiteReader, prefix string) *SiteHandler {
	return &SiteHandler{BaseHandler: NewBaseHandler(), reader: reader, prefix: prefix}
}

// HandleSite serves /sites/{project}/{path}; a trailing slash maps to
// index.html.
func (h *SiteHandler) HandleSite(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.sendError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	rest := strings.TrimPrefix(r.URL.Path, h.prefix)
	project, file, found := strings.Cut(rest, "/")
	if !found {
		http.Redirect(w, r, h.prefix+project+"/", http.StatusMovedPermanently)
		return
	}
	if file == "" || strings.HasSuffix(file, "/") {
		file += "index.html"
	}
	if _, err := security.SanitizeProjectName(project); err != nil {
		h.sendError(w, http.StatusNotFound, "Not found")
		return
	}
	clean, err := security.SanitizeArtifactPath(file)
	if err != nil {
		h.sendError(w, http.StatusNotFound, "Not found")
		return
	}

	content, err := h.reader.SiteFile(r.Context(), project, clean)
	if errors.Is(err, artifactstore.ErrFileNotFound) {
		h.sendError(w, http.StatusNotFound, "Not found")
		return
	}
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, "Failed to read site")
		return
	}

	ctype := mime.TypeByExtension(path.Ext(clean))
	if ctype == "" {
		ctype = http.DetectContentType(content)
	}
	w.Header().Set("Content-Type", ctype)
	w.Write(content)
}
