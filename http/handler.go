package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sagarc03/filedock"
)

const maxBodyBytes = 1 << 20

// FileService is the file lifecycle surface used by the API routes.
type FileService interface {
	CreateUploads(ctx context.Context, ownerID string, reqs []filedock.UploadRequest) ([]filedock.UploadSlot, error)
	Delete(ctx context.Context, ownerID string, ids []uuid.UUID) error
	List(ctx context.Context, ownerID string, q filedock.ListQuery) (filedock.ListResult, error)
	ViewURL(ctx context.Context, ownerID string, id uuid.UUID) (string, error)
}

// NotificationApplier consumes decoded storage notifications.
type NotificationApplier interface {
	Apply(ctx context.Context, batch []filedock.Notification) (filedock.ReconcileResult, error)
}

// Pinger reports whether the record store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type CORSConfig struct {
	Enabled          bool     `mapstructure:"enabled" yaml:"enabled"`
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}

type HandlerConfig struct {
	Auth         AuthConfig
	WebhookToken string
	CORS         CORSConfig
	// Health, when set, backs GET /healthz.
	Health Pinger
}

// Handler serves the file API and the storage webhook.
type Handler struct {
	config     HandlerConfig
	service    FileService
	reconciler NotificationApplier
	validate   *validator.Validate
}

func NewHandler(config *HandlerConfig, service FileService, reconciler NotificationApplier) *Handler {
	return &Handler{
		config:     *config,
		service:    service,
		reconciler: reconciler,
		validate:   validator.New(),
	}
}

// Router returns an http.Handler with every route mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.NotFound(writeNotFound)
	r.MethodNotAllowed(writeMethodNotAllowed)
	r.Use(MetricsMiddleware)

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.Get("/healthz", h.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/file", func(r chi.Router) {
		r.Use(AuthMiddleware(h.config.Auth))
		r.Get("/", h.handleList)
		r.Get("/view/{id}", h.handleView)
		r.Post("/upload", h.handleUpload)
		r.Post("/delete", h.handleDelete)
	})

	r.Route("/api/webhooks/minio", func(r chi.Router) {
		r.Get("/health", h.handleWebhookHealth)
		r.With(WebhookTokenMiddleware(h.config.WebhookToken)).Post("/", h.handleWebhook)
	})

	return r
}

type fileResponse struct {
	ID          uuid.UUID `json:"id"`
	Filename    string    `json:"filename"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

type listResponse struct {
	Items      []fileResponse `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 0 {
			WriteError(w, http.StatusBadRequest, "invalid_parameter", "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	result, err := h.service.List(r.Context(), OwnerFromContext(r.Context()), filedock.ListQuery{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	})
	if err != nil {
		HandleError(w, err)
		return
	}

	resp := listResponse{
		Items:      make([]fileResponse, 0, len(result.Items)),
		NextCursor: result.NextCursor,
	}
	for _, f := range result.Items {
		resp.Items = append(resp.Items, fileResponse{
			ID:          f.ID,
			Filename:    f.Filename,
			Size:        f.Size,
			ContentType: f.ContentType,
			CreatedAt:   f.CreatedAt,
		})
	}

	_ = WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid file id")
		return
	}

	accessURL, err := h.service.ViewURL(r.Context(), OwnerFromContext(r.Context()), id)
	if err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusOK, map[string]string{"accessUrl": accessURL})
}

type uploadBody struct {
	Files []filedock.UploadRequest `json:"files" validate:"required,min=1,dive"`
}

type uploadSlotResponse struct {
	ID        uuid.UUID `json:"id"`
	Filename  string    `json:"filename"`
	UploadURL string    `json:"uploadUrl,omitempty"`
	Error     string    `json:"error,omitempty"`
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	var body uploadBody
	if err := h.decode(w, r, &body); err != nil {
		HandleError(w, err)
		return
	}

	slots, err := h.service.CreateUploads(r.Context(), OwnerFromContext(r.Context()), body.Files)
	if err != nil {
		HandleError(w, err)
		return
	}

	resp := make([]uploadSlotResponse, 0, len(slots))
	for _, s := range slots {
		item := uploadSlotResponse{ID: s.ID, Filename: s.Filename, UploadURL: s.UploadURL}
		if s.Err != nil {
			item.Error = "could not issue upload url"
		}
		resp = append(resp, item)
	}

	_ = WriteJSON(w, http.StatusOK, resp)
}

type deleteBody struct {
	FileIDs []string `json:"fileIds" validate:"required,min=1"`
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	var body deleteBody
	if err := h.decode(w, r, &body); err != nil {
		HandleError(w, err)
		return
	}

	ids := make([]uuid.UUID, 0, len(body.FileIDs))
	for _, raw := range body.FileIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid_request", "Invalid file id: "+raw)
			return
		}
		ids = append(ids, id)
	}

	if err := h.service.Delete(r.Context(), OwnerFromContext(r.Context()), ids); err != nil {
		HandleError(w, err)
		return
	}

	_ = WriteJSON(w, http.StatusAccepted, map[string]string{"message": "Deletion initiated"})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.config.Health != nil {
		if err := h.config.Health.Ping(r.Context()); err != nil {
			slog.Error("health check failed", "error", err)
			_ = WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	_ = WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode reads a JSON body into dst and validates it.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty request body", filedock.ErrInvalidRequest)
		}
		return fmt.Errorf("%w: malformed json: %w", filedock.ErrInvalidRequest, err)
	}

	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %w", filedock.ErrInvalidRequest, err)
	}
	return nil
}
