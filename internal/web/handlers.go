package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/chatrelay/chatrelay/internal/settings"
	"github.com/chatrelay/chatrelay/pkg/models"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeMessages parses the shared chat request body and reports a client
// error itself when the payload is unusable.
func decodeMessages(w http.ResponseWriter, r *http.Request) ([]models.Message, bool) {
	var payload struct {
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	if len(payload.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "messages must be a non-empty array")
		return nil, false
	}
	history := make([]models.Message, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		role := models.Role(m.Role)
		if !role.Valid() {
			writeError(w, http.StatusBadRequest, "invalid message role: "+m.Role)
			return nil, false
		}
		history = append(history, models.Message{Role: role, Content: m.Content})
	}
	return history, true
}

// handleChat streams the assistant reply incrementally as plain text.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	history, ok := decodeMessages(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	flusher, _ := w.(http.Flusher)

	var streamed int
	result, err := s.turns.StreamTurn(r.Context(), "", history, func(delta string) {
		if _, werr := io.WriteString(w, delta); werr != nil {
			return
		}
		streamed += len(delta)
		if flusher != nil {
			flusher.Flush()
		}
	})
	if err != nil {
		if streamed == 0 {
			writeError(w, http.StatusBadGateway, "model request failed")
		}
		// Mid-stream failure: the status line is already out, nothing more
		// to send.
		return
	}
	// Deltas are a prefix of the final text; emit whatever remains (timeout
	// suffix or fallback).
	if streamed < len(result.Text) {
		io.WriteString(w, result.Text[streamed:])
	}
}

// handleCompletions runs a turn and returns the aggregate result as JSON.
func (s *Server) handleCompletions(w http.ResponseWriter, r *http.Request) {
	history, ok := decodeMessages(w, r)
	if !ok {
		return
	}
	result, err := s.turns.RunTurn(r.Context(), "", history)
	if err != nil {
		writeError(w, http.StatusBadGateway, "model request failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleSettingsGet(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings storage not configured")
		return
	}
	stored, err := s.settings.Get(r.Context())
	if err != nil {
		s.logger.Error("settings load failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	if stored == nil {
		// Nothing persisted yet: show the environment defaults. The key is
		// never echoed in plaintext.
		stored = &settings.Settings{
			Provider:    s.cfg.LLM.Provider,
			Model:       s.cfg.LLM.Model,
			BaseURL:     s.cfg.LLM.BaseURL,
			SystemRole:  s.cfg.LLM.SystemRole,
			MaxTokens:   s.cfg.LLM.MaxTokens,
			Temperature: s.cfg.LLM.Temperature,
			TimeoutMS:   int(s.cfg.LLM.Timeout.Milliseconds()),
		}
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleSettingsPost(w http.ResponseWriter, r *http.Request) {
	if s.settings == nil {
		writeError(w, http.StatusServiceUnavailable, "settings storage not configured")
		return
	}
	var incoming settings.Settings
	if err := json.NewDecoder(r.Body).Decode(&incoming); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.settings.Update(r.Context(), incoming); err != nil {
		if errors.Is(err, settings.ErrMissingField) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("settings update failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store settings")
		return
	}
	stored, err := s.settings.Get(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

// handleReply relays a text message against a LINE reply token.
func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	if s.messenger == nil {
		writeError(w, http.StatusServiceUnavailable, "line channel not configured")
		return
	}
	var payload struct {
		ReplyToken string `json:"replyToken"`
		Text       string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.ReplyToken == "" || payload.Text == "" {
		writeError(w, http.StatusBadRequest, "missing replyToken or text")
		return
	}
	if err := s.messenger.Reply(r.Context(), payload.ReplyToken, payload.Text); err != nil {
		s.logger.Error("reply relay failed", "error", err)
		writeError(w, http.StatusBadGateway, "reply failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "ok")
}
