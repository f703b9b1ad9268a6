package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"matrixhub/internal/config"
	"matrixhub/internal/hub"
	"matrixhub/internal/models"
	"matrixhub/internal/state"
	"matrixhub/internal/store"
	"matrixhub/internal/utils"
)

const accessTokenTTL = 24 * time.Hour

type Handlers struct {
	manager  *state.Manager
	hub      *hub.Hub
	store    store.Store
	cfg      *config.Config
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func New(manager *state.Manager, h *hub.Hub, st store.Store, cfg *config.Config, logger *zap.Logger) *Handlers {
	return &Handlers{
		manager: manager,
		hub:     h,
		store:   st,
		cfg:     cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// authorized checks the bearer credential. With no API token configured
// the service runs in open mode and every request passes. The static
// token and minted access tokens are both accepted.
func (h *Handlers) authorized(r *http.Request) bool {
	if h.cfg.APIToken == "" {
		return true
	}
	token := utils.BearerToken(r)
	if token == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.APIToken)) == 1 {
		return true
	}
	return utils.ValidateAccessToken(token, []byte(h.cfg.JWTSecret)) == nil
}

// --- Health Handler ---
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// --- State Handlers ---
func (h *Handlers) GetState(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.manager.Current())
}

func (h *Handlers) SetState(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		utils.WriteJSON(w, http.StatusUnauthorized, models.Resp{OK: false, Info: "unauthorized"})
		return
	}

	var req models.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, models.Resp{OK: false, Info: "invalid json"})
		return
	}

	doc, err := h.manager.Apply(r.Context(), req)
	if err != nil {
		var verr *state.ValidationError
		if errors.As(err, &verr) {
			utils.WriteJSON(w, http.StatusUnprocessableEntity, models.Resp{OK: false, Info: verr.Error()})
			return
		}
		h.logger.Error("state update failed", zap.Error(err))
		utils.WriteJSON(w, http.StatusInternalServerError, models.Resp{OK: false, Info: "internal error"})
		return
	}

	utils.WriteJSON(w, http.StatusOK, doc)
}

// --- Token Handler ---
// Mints a short-lived access token in exchange for the static API
// token, so devices never have to hold the long-lived credential.
func (h *Handlers) Token(w http.ResponseWriter, r *http.Request) {
	if h.cfg.APIToken == "" {
		utils.WriteJSON(w, http.StatusBadRequest, models.Resp{OK: false, Info: "token auth not configured"})
		return
	}
	cred := utils.BearerToken(r)
	if subtle.ConstantTimeCompare([]byte(cred), []byte(h.cfg.APIToken)) != 1 {
		utils.WriteJSON(w, http.StatusUnauthorized, models.Resp{OK: false, Info: "unauthorized"})
		return
	}

	token, err := utils.GenerateAccessToken([]byte(h.cfg.JWTSecret), accessTokenTTL)
	if err != nil {
		h.logger.Error("token mint failed", zap.Error(err))
		utils.WriteJSON(w, http.StatusInternalServerError, models.Resp{OK: false, Info: "internal error"})
		return
	}
	utils.WriteJSON(w, http.StatusOK, models.TokenResp{
		Token:     token,
		ExpiresIn: int(accessTokenTTL.Seconds()),
	})
}

// --- Image Handlers ---
func (h *Handlers) UploadImage(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		utils.WriteJSON(w, http.StatusUnauthorized, models.Resp{OK: false, Info: "unauthorized"})
		return
	}

	body, err := h.readImageBody(r)
	if err != nil {
		status := http.StatusUnsupportedMediaType
		if errors.Is(err, errImageTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		utils.WriteJSON(w, status, models.Resp{OK: false, Info: err.Error()})
		return
	}

	rev, err := h.store.SaveImage(r.Context(), body)
	if err != nil {
		h.logger.Error("image save failed", zap.Error(err))
		utils.WriteJSON(w, http.StatusInternalServerError, models.Resp{OK: false, Info: "failed to store image"})
		return
	}

	// Tell connected displays there is a new image to pull.
	h.hub.Broadcast(models.ImageMessage{Type: models.MessageTypeImage, Rev: rev})
	utils.WriteJSON(w, http.StatusOK, models.ImageUploadResp{OK: true, Rev: rev})
}

var errImageTooLarge = errors.New("image too large")

// readImageBody accepts either a raw image/png body or a multipart
// form with a "file" part, enforcing the configured size limit.
func (h *Handlers) readImageBody(r *http.Request) ([]byte, error) {
	contentType := r.Header.Get("Content-Type")

	if strings.HasPrefix(contentType, "multipart/form-data") {
		if err := r.ParseMultipartForm(h.cfg.ImageMaxBytes); err != nil {
			return nil, errors.New("invalid multipart form")
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return nil, errors.New("multipart field 'file' required")
		}
		defer file.Close()
		if ct := header.Header.Get("Content-Type"); !strings.HasPrefix(strings.ToLower(ct), "image/png") {
			return nil, errors.New("only image/png allowed")
		}
		body, err := io.ReadAll(io.LimitReader(file, h.cfg.ImageMaxBytes+1))
		if err != nil {
			return nil, errors.New("failed to read upload")
		}
		if int64(len(body)) > h.cfg.ImageMaxBytes {
			return nil, errImageTooLarge
		}
		return body, nil
	}

	if !strings.HasPrefix(strings.ToLower(contentType), "image/png") {
		return nil, errors.New("send raw PNG with Content-Type: image/png or use multipart 'file'")
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.ImageMaxBytes+1))
	if err != nil || len(body) == 0 {
		return nil, errors.New("empty or unreadable body")
	}
	if int64(len(body)) > h.cfg.ImageMaxBytes {
		return nil, errImageTooLarge
	}
	return body, nil
}

func (h *Handlers) GetImage(w http.ResponseWriter, r *http.Request) {
	data, rev, err := h.store.LoadImage(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNoImage) {
			http.Error(w, "no image", http.StatusNotFound)
			return
		}
		h.logger.Error("image load failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	etag := fmt.Sprintf(`"%d"`, rev)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(data)
}

// --- WebSocket Handler ---
func (h *Handlers) WS(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := hub.NewClient(h.hub, conn)
	h.hub.Register(client)
	h.logger.Info("websocket client connected", zap.Int("clients", h.hub.Len()))

	// Blocks until the peer disconnects; inbound frames are discarded.
	client.ReadLoop()
	h.logger.Info("websocket client disconnected", zap.Int("clients", h.hub.Len()))
}
