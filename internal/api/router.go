package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling
	r.Use(CORS(allowedOrigins))

	// All API routes will be under /api
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Post("/sessions", apiHandler.CreateSessionHandler)

		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Use(apiHandler.SessionMiddleware)

			r.Get("/", apiHandler.GetSessionHandler)
			r.Delete("/", apiHandler.DeleteSessionHandler)
			r.Put("/draft", apiHandler.SetDraftHandler)
			r.Post("/messages", apiHandler.PostMessageHandler)

			r.Post("/attachment", apiHandler.AttachHandler)
			r.Delete("/attachment", apiHandler.RemoveAttachmentHandler)

			// Dictation
			r.Post("/dictation/start", apiHandler.StartDictationHandler)
			r.Post("/dictation/stop", apiHandler.StopDictationHandler)
			r.Post("/dictation", apiHandler.SubmitDictationHandler)

			// Report
			r.Post("/report", apiHandler.GenerateReportHandler)
			r.Get("/report", apiHandler.GetReportHandler)
			r.Get("/report/share", apiHandler.ShareReportHandler)
			r.Post("/report/email", apiHandler.EmailReportHandler)

			// Speech
			r.Get("/speech", apiHandler.SpeechHandler)
			r.Post("/playback/stop", apiHandler.StopPlaybackHandler)
			r.Get("/playback", apiHandler.PlaybackHandler)
		})
	})

	return r
}
