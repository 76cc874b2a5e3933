package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/counselstack/veritas/internal/model"
	"github.com/counselstack/veritas/internal/pipeline"
	"github.com/counselstack/veritas/internal/review"
	"github.com/counselstack/veritas/internal/store"
)

var servePort int

// asker is the slice of the pipeline the HTTP layer needs.
type asker interface {
	ProcessQuery(ctx context.Context, query string, opts pipeline.QueryOptions) (*model.Answer, error)
	StreamQuery(ctx context.Context, query string, opts pipeline.QueryOptions) <-chan pipeline.Event
}

// reviewer is the slice of the review manager the HTTP layer needs.
type reviewer interface {
	Submit(ctx context.Context, taskID string, sub review.Submission) (*model.ReviewTask, error)
	List(ctx context.Context, filter store.TaskFilter) ([]model.ReviewTask, error)
}

// recordReader is the slice of the store the HTTP layer needs.
type recordReader interface {
	GetRecord(ctx context.Context, id string) (*model.ValidationRecord, error)
	Ping(ctx context.Context) error
}

type server struct {
	ask     asker
	reviews reviewer
	records recordReader
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		s := &server{ask: e.Pipeline, reviews: e.Reviews, records: e.Store}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: s.router(cfg.Server.CORSOrigins),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

func (s *server) router(corsOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/healthz", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/ask", s.handleAsk)
		r.Get("/ask/stream", s.handleAskStream)
		r.Get("/records/{id}", s.handleGetRecord)
		r.Get("/reviews", s.handleListReviews)
		r.Post("/reviews/{id}/decision", s.handleDecision)
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": "store unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// askRequest is the POST /v1/ask body.
type askRequest struct {
	Query        string `json:"query"`
	TopK         int    `json:"top_k,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	DocumentType string `json:"document_type,omitempty"`
}

func (req askRequest) options() pipeline.QueryOptions {
	return pipeline.QueryOptions{
		TopK:         req.TopK,
		Jurisdiction: req.Jurisdiction,
		DocumentType: model.DocumentType(req.DocumentType),
	}
}

func (s *server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	answer, err := s.ask.ProcessQuery(r.Context(), req.Query, req.options())
	if err != nil {
		zap.L().Error("ask failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "query processing failed")
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter is required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	opts := pipeline.QueryOptions{
		Jurisdiction: r.URL.Query().Get("jurisdiction"),
		DocumentType: model.DocumentType(r.URL.Query().Get("doc_type")),
	}
	if k, err := strconv.Atoi(r.URL.Query().Get("top_k")); err == nil {
		opts.TopK = k
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for ev := range s.ask.StreamQuery(r.Context(), query, opts) {
		payload, err := marshalEvent(ev)
		if err != nil {
			zap.L().Warn("stream event marshal failed", zap.Error(err))
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, payload)
		flusher.Flush()
	}
}

// marshalEvent projects an event onto its wire body: only the payload
// matching the tag is sent.
func marshalEvent(ev pipeline.Event) ([]byte, error) {
	switch ev.Type {
	case pipeline.EventSourcesFound:
		return json.Marshal(map[string]any{"sources": ev.Sources})
	case pipeline.EventChunk:
		return json.Marshal(map[string]string{"text": ev.Chunk})
	case pipeline.EventValidationComplete:
		return json.Marshal(map[string]any{"validations": ev.Validations})
	case pipeline.EventDone:
		return json.Marshal(ev.Answer)
	case pipeline.EventError:
		return json.Marshal(map[string]string{"error": ev.Err.Error()})
	default:
		return nil, eris.Errorf("unknown event type %q", ev.Type)
	}
}

func (s *server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.records.GetRecord(r.Context(), id)
	if err != nil {
		zap.L().Error("record load failed", zap.String("record_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "record load failed")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *server) handleListReviews(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.reviews.List(r.Context(), store.TaskFilter{
		Status:   model.TaskStatus(r.URL.Query().Get("status")),
		Priority: model.TaskPriority(r.URL.Query().Get("priority")),
	})
	if err != nil {
		zap.L().Error("review list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "review list failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *server) handleDecision(w http.ResponseWriter, r *http.Request) {
	var sub review.Submission
	if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	task, err := s.reviews.Submit(r.Context(), chi.URLParam(r, "id"), sub)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, task)
	case errors.Is(err, review.ErrNotFound):
		writeError(w, http.StatusNotFound, "task not found")
	case errors.Is(err, review.ErrTerminal):
		writeError(w, http.StatusConflict, "task already decided")
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
