package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"

	"doulia.com/workflow-audit/internal/core"
	"doulia.com/workflow-audit/internal/report"
)

const (
	maxAttachmentSize = 10 << 20
	maxDictationSize  = 10 << 20

	reportFailureMessage = "Une erreur s'est produite lors de la génération du rapport."
)

type ctxKey int

const sessionKey ctxKey = iota

type APIHandler struct {
	sessions *core.SessionManager
}

func NewAPIHandler(sm *core.SessionManager) *APIHandler {
	return &APIHandler{sessions: sm}
}

// SessionMiddleware resolves {sessionID} into its AuditSession.
func (h *APIHandler) SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := chi.URLParam(r, "sessionID")

		session, err := h.sessions.Get(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, core.ErrInvalidSessionID) {
				http.Error(w, "Session not found", http.StatusNotFound)
				return
			}
			log.Printf("Error loading session %s: %v", sessionID, err)
			http.Error(w, "Failed to load session", http.StatusInternalServerError)
			return
		}

		ctx := context.WithValue(r.Context(), sessionKey, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(r *http.Request) *core.AuditSession {
	return r.Context().Value(sessionKey).(*core.AuditSession)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeSessionError maps controller errors onto HTTP statuses.
func writeSessionError(w http.ResponseWriter, sessionID string, err error) {
	switch {
	case errors.Is(err, core.ErrBusy):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, core.ErrEmptyMessage):
		http.Error(w, "Message content cannot be empty", http.StatusBadRequest)
	case errors.Is(err, core.ErrReportUnavailable):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, core.ErrNoReport):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, core.ErrStale):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, core.ErrUnsupportedFile), errors.Is(err, core.ErrAttachmentRequired):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.Printf("Error in session %s: %v", sessionID, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *APIHandler) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Create(r.Context())
	writeJSON(w, http.StatusCreated, session.State())
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionFrom(r).State())
}

// DeleteSessionHandler is the "new audit" action: the conversation is wiped
// while the session and its playback listeners stay in place.
func (h *APIHandler) DeleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Reset(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

type DraftRequest struct {
	Text string `json:"text"`
}

func (h *APIHandler) SetDraftHandler(w http.ResponseWriter, r *http.Request) {
	var req DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	session := sessionFrom(r)
	session.SetDraft(req.Text)
	writeJSON(w, http.StatusOK, session.State())
}

type PostMessageRequest struct {
	Content string `json:"content"`
}

func (h *APIHandler) PostMessageHandler(w http.ResponseWriter, r *http.Request) {
	var req PostMessageRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	session := sessionFrom(r)
	if _, err := session.Send(r.Context(), req.Content); err != nil {
		writeSessionError(w, session.ID(), err)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

func (h *APIHandler) AttachHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAttachmentSize)
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "A file field is required: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read file: "+err.Error(), http.StatusBadRequest)
		return
	}

	session := sessionFrom(r)
	info, err := session.Attach(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		writeSessionError(w, session.ID(), err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (h *APIHandler) RemoveAttachmentHandler(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).RemoveAttachment()
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) StartDictationHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	if err := session.StartDictation(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, session.State())
}

func (h *APIHandler) StopDictationHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	session.StopDictation()
	writeJSON(w, http.StatusOK, session.State())
}

type DictationResponse struct {
	Transcript string `json:"transcript"`
	Draft      string `json:"draft"`
}

// SubmitDictationHandler takes the raw recording as the request body.
func (h *APIHandler) SubmitDictationHandler(w http.ResponseWriter, r *http.Request) {
	audio, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxDictationSize))
	if err != nil {
		http.Error(w, "Failed to read recording: "+err.Error(), http.StatusBadRequest)
		return
	}
	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	session := sessionFrom(r)
	transcript, err := session.SubmitDictation(r.Context(), audio, mimeType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, DictationResponse{Transcript: transcript, Draft: session.Draft()})
}

func (h *APIHandler) GenerateReportHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	rep, err := session.GenerateReport(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, core.ErrBusy), errors.Is(err, core.ErrReportUnavailable), errors.Is(err, core.ErrStale):
			writeSessionError(w, session.ID(), err)
		default:
			log.Printf("Error generating report for session %s: %v", session.ID(), err)
			http.Error(w, reportFailureMessage, http.StatusBadGateway)
		}
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (h *APIHandler) GetReportHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	rep, err := session.Report()
	if err != nil {
		writeSessionError(w, session.ID(), err)
		return
	}
	if strings.Contains(r.Header.Get("Accept"), "text/markdown") {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.Write([]byte(report.Markdown(rep)))
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

type ShareResponse struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

func (h *APIHandler) ShareReportHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	rep, err := session.Report()
	if err != nil {
		writeSessionError(w, session.ID(), err)
		return
	}
	writeJSON(w, http.StatusOK, ShareResponse{URL: report.ShareURL(rep), Text: report.ShareText(rep)})
}

type EmailResponse struct {
	Sent bool `json:"sent"`
}

func (h *APIHandler) EmailReportHandler(w http.ResponseWriter, r *http.Request) {
	session := sessionFrom(r)
	sent, err := session.EmailReport(r.Context())
	if err != nil {
		writeSessionError(w, session.ID(), err)
		return
	}
	writeJSON(w, http.StatusOK, EmailResponse{Sent: sent})
}

// SpeechHandler returns ?text= spoken by the assistant voice as a WAV file.
func (h *APIHandler) SpeechHandler(w http.ResponseWriter, r *http.Request) {
	text := strings.TrimSpace(r.URL.Query().Get("text"))
	if text == "" {
		http.Error(w, "text query parameter is required", http.StatusBadRequest)
		return
	}

	session := sessionFrom(r)
	wav, ok, err := session.SpeechWAV(r.Context(), text)
	if err != nil {
		log.Printf("Error synthesizing speech for session %s: %v", session.ID(), err)
		http.Error(w, "Failed to synthesize speech", http.StatusBadGateway)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	w.Write(wav)
}

func (h *APIHandler) StopPlaybackHandler(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).StopSpeech()
	w.WriteHeader(http.StatusNoContent)
}

// PlaybackHandler upgrades to the websocket carrying the assistant's voice.
func (h *APIHandler) PlaybackHandler(w http.ResponseWriter, r *http.Request) {
	sessionFrom(r).Broadcaster().ServeHTTP(w, r)
}
