package handle

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"invoice-extractor/api/internal/interactive"
	"invoice-extractor/api/internal/llm"
	"invoice-extractor/api/internal/pipeline"
)

// maxUpload bounds request bodies carrying an invoice.
const maxUpload = 32 << 20

// noFileText is shown when a request carries no usable file.
const noFileText = "No file uploaded"

// Extractor is the part of the pipeline the HTTP surface drives.
type Extractor interface {
	Extract(ctx context.Context, fileName string, data []byte) (pipeline.Document, error)
	Write(ctx context.Context, key string, doc pipeline.Document) (string, error)
	HandleBatch(ctx context.Context, keys []string) pipeline.BatchResult
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Options struct {
	Extractor Extractor
	Asker     *interactive.Service
	Engines   *llm.Engines
	DB        Pinger
	// Persist writes documents produced by /v1/extract to the output bucket.
	Persist bool
	Logger  *slog.Logger
}

type Handle struct {
	ext     Extractor
	ask     *interactive.Service
	engs    *llm.Engines
	db      Pinger
	persist bool
	logger  *slog.Logger
}

func New(opts Options) *Handle {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Handle{
		ext:     opts.Extractor,
		ask:     opts.Asker,
		engs:    opts.Engines,
		db:      opts.DB,
		persist: opts.Persist,
		logger:  opts.Logger,
	}
}

// Routes registers every endpoint on a fresh mux.
func (h *Handle) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.Healthz)
	mux.HandleFunc("/v1/extract", h.Extract)
	mux.HandleFunc("/v1/ask", h.Ask)
	mux.HandleFunc("/v1/events/s3", h.S3Event)
	return mux
}

func (h *Handle) Healthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "db: " + err.Error()})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// requestContext applies X-Request-Timeout or ?timeoutSec, default 180s.
func requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	deadline := 180 * time.Second
	if ts := r.Header.Get("X-Request-Timeout"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	} else if ts := r.URL.Query().Get("timeoutSec"); ts != "" {
		if v, _ := strconv.Atoi(ts); v > 0 {
			deadline = time.Duration(v) * time.Second
		}
	}
	return context.WithTimeout(r.Context(), deadline)
}
