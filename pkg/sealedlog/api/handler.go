package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"
	"github.com/tendant/sealed-log/pkg/sealedlog"
)

// DefaultMaxPayloadBytes bounds request bodies for submit and classify.
const DefaultMaxPayloadBytes = 16 << 20

// MessageResponse describes a committed message
type MessageResponse struct {
	Owner     string    `json:"owner"`
	Topic     string    `json:"topic"`
	Index     uint64    `json:"index"`
	Size      int64     `json:"size"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}

// CountResponse is the response body for a count query
type CountResponse struct {
	Identity string `json:"identity"`
	Topic    string `json:"topic"`
	Count    uint64 `json:"count"`
}

// TopicsResponse lists the topics of an identity
type TopicsResponse struct {
	Identity string   `json:"identity"`
	Topics   []string `json:"topics"`
}

// KeyRecordResponse is the current key record
type KeyRecordResponse struct {
	KeyMaterial   string    `json:"key_material"`
	Administrator string    `json:"administrator"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SetKeyRequest is the request body for replacing the key material
type SetKeyRequest struct {
	KeyMaterial string `json:"key_material"`
}

// TransferRequest is the request body for an administrator transfer
type TransferRequest struct {
	Administrator string `json:"administrator"`
}

// ClassifyResponse is a classifier verdict
type ClassifyResponse struct {
	Profile  sealedlog.Profile `json:"profile"`
	Accepted bool              `json:"accepted"`
	Reason   sealedlog.Reason  `json:"reason"`
}

// Handler serves the sealed-log HTTP API
type Handler struct {
	service         sealedlog.Service
	tokenAuth       *jwtauth.JWTAuth
	maxPayloadBytes int64
}

// NewHandler creates a new API handler. tokenAuth verifies caller tokens on
// the mutating routes.
func NewHandler(service sealedlog.Service, tokenAuth *jwtauth.JWTAuth) *Handler {
	return &Handler{
		service:         service,
		tokenAuth:       tokenAuth,
		maxPayloadBytes: DefaultMaxPayloadBytes,
	}
}

// Routes returns the routes for the API
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/messages", h.CountMessages)
	r.Get("/messages/{index}", h.ReadMessage)
	r.Get("/topics", h.ListTopics)
	r.Get("/key", h.GetKeyRecord)
	r.Get("/instance", h.GetInstance)
	r.Post("/classify", h.Classify)

	r.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(h.tokenAuth))
		r.Use(RequireIdentity)

		r.Post("/messages", h.SubmitMessage)
		r.Put("/key", h.SetKeyMaterial)
		r.Put("/key/administrator", h.TransferAdministrator)
	})

	return r
}

func (h *Handler) readPayload(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxPayloadBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeStatus(w, r, http.StatusRequestEntityTooLarge, CodeBadRequest, "payload too large")
			return nil, false
		}
		writeStatus(w, r, http.StatusBadRequest, CodeBadRequest, "failed to read payload")
		return nil, false
	}
	return payload, true
}

// SubmitMessage appends the raw request body to the caller's log for ?topic=
func (h *Handler) SubmitMessage(w http.ResponseWriter, r *http.Request) {
	caller := IdentityFromContext(r.Context())
	topic := r.URL.Query().Get("topic")

	payload, ok := h.readPayload(w, r)
	if !ok {
		return
	}

	msg, err := h.service.Submit(r.Context(), caller, topic, payload)
	if err != nil {
		if reason, rejected := sealedlog.RejectionReason(err); rejected {
			slog.Info("Message rejected", "caller", caller, "topic", topic, "reason", reason)
		}
		writeError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, MessageResponse{
		Owner:     string(msg.Owner),
		Topic:     msg.Topic,
		Index:     msg.Index,
		Size:      msg.Size,
		Checksum:  msg.Checksum,
		CreatedAt: msg.CreatedAt,
	})
}

// CountMessages returns the length of the log for ?identity= and ?topic=
func (h *Handler) CountMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := sealedlog.Identity(q.Get("identity"))
	topic := q.Get("topic")

	count, err := h.service.Count(r.Context(), owner, topic)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, CountResponse{Identity: string(owner), Topic: topic, Count: count})
}

// ReadMessage returns the stored payload as application/octet-stream
func (h *Handler) ReadMessage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	owner := sealedlog.Identity(q.Get("identity"))
	topic := q.Get("topic")

	indexStr := chi.URLParam(r, "index")
	index, err := strconv.ParseUint(indexStr, 10, 64)
	if err != nil {
		writeStatus(w, r, http.StatusBadRequest, CodeBadRequest, "invalid index")
		return
	}

	payload, err := h.service.Read(r.Context(), owner, topic, index)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(payload); err != nil {
		slog.Warn("Failed to write payload", "owner", owner, "index", index, "error", err)
	}
}

// ListTopics lists the topics ?identity= has written to
func (h *Handler) ListTopics(w http.ResponseWriter, r *http.Request) {
	owner := sealedlog.Identity(r.URL.Query().Get("identity"))

	topics, err := h.service.ListTopics(r.Context(), owner)
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, TopicsResponse{Identity: string(owner), Topics: topics})
}

// GetKeyRecord returns the current key material and administrator
func (h *Handler) GetKeyRecord(w http.ResponseWriter, r *http.Request) {
	record, err := h.service.KeyRecord(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	render.JSON(w, r, KeyRecordResponse{
		KeyMaterial:   record.KeyMaterial,
		Administrator: string(record.Administrator),
		UpdatedAt:     record.UpdatedAt,
	})
}

// SetKeyMaterial replaces the key material. Administrator only.
func (h *Handler) SetKeyMaterial(w http.ResponseWriter, r *http.Request) {
	var req SetKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	caller := IdentityFromContext(r.Context())
	if err := h.service.SetKeyMaterial(r.Context(), caller, req.KeyMaterial); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Key material replaced", "administrator", caller)
	w.WriteHeader(http.StatusNoContent)
}

// TransferAdministrator hands the administrator role to another identity
func (h *Handler) TransferAdministrator(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeStatus(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}

	caller := IdentityFromContext(r.Context())
	target := sealedlog.Identity(req.Administrator)
	if err := h.service.TransferAdministrator(r.Context(), caller, target); err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("Administrator transferred", "previous", caller, "current", target)
	w.WriteHeader(http.StatusNoContent)
}

// GetInstance returns deployment metadata
func (h *Handler) GetInstance(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.Instance(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	render.JSON(w, r, info)
}

// Classify evaluates the request body without storing it. ?profile= selects
// a classifier other than the configured one.
func (h *Handler) Classify(w http.ResponseWriter, r *http.Request) {
	classifier := h.service.Classifier()
	if name := r.URL.Query().Get("profile"); name != "" {
		profile, err := sealedlog.ParseProfile(name)
		if err != nil {
			writeStatus(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
		if classifier, err = sealedlog.NewClassifier(profile); err != nil {
			writeStatus(w, r, http.StatusBadRequest, CodeBadRequest, err.Error())
			return
		}
	}

	payload, ok := h.readPayload(w, r)
	if !ok {
		return
	}

	verdict := classifier.Evaluate(payload)
	render.JSON(w, r, ClassifyResponse{
		Profile:  classifier.Profile(),
		Accepted: verdict.Accepted,
		Reason:   verdict.Reason,
	})
}

// HealthResponse is served on /health
type HealthResponse struct {
	Status  string            `json:"status"`
	Profile sealedlog.Profile `json:"profile"`
}

// Health reports liveness and the configured classifier profile
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{Status: "ok", Profile: h.service.Profile()})
}
