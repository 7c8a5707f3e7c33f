package interfaces

import (
	"encoding/json"
	"net/http"
	"storefront/internal/pkg/logger"
	"storefront/internal/service/support/application"

	"github.com/pkg/errors"
)

const maxChatBody = 64 << 10

type SupportHandler struct {
	service *application.ChatService
}

func NewSupportHandler(service *application.ChatService) *SupportHandler {
	return &SupportHandler{service: service}
}

func (h *SupportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/support/chat", h.handleChat)
}

func (h *SupportHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req application.ChatRequest
	// 请求体不是合法 JSON 时 chatInput 按空值转发
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody)).Decode(&req); err != nil {
		logger.Ctx(r.Context()).Debug().Err(err).Msg("support chat body is not valid JSON, forwarding empty chatInput")
	}

	resp, err := h.service.Forward(r.Context(), req)
	if err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Msg("support proxy error")
		if errors.Is(err, application.ErrNotConfigured) {
			writeMessage(w, http.StatusInternalServerError, "Support webhook is not configured on the server.")
			return
		}
		writeMessage(w, http.StatusBadGateway, "Failed to reach support service.")
		return
	}

	contentType := resp.ContentType
	if contentType == "" {
		contentType = "application/json"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(resp.StatusCode)
	w.Write(resp.Body)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"message": message})
}
