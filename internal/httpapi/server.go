package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/park285/Squares-KakaoTalk-bot/internal/grid"
	"github.com/park285/Squares-KakaoTalk-bot/internal/obslog"
	"github.com/park285/Squares-KakaoTalk-bot/internal/pool"
	"github.com/park285/Squares-KakaoTalk-bot/internal/render"
	"go.uber.org/zap"
)

// UserHeader names the acting user. Authentication happens upstream.
const UserHeader = "X-User-Id"

// Pools is the part of pool.Manager the API drives.
type Pools interface {
	Create(ctx context.Context, req pool.CreateRequest) (*pool.Pool, error)
	Claim(ctx context.Context, poolID string, cell grid.Cell, c grid.Claim) (grid.Claim, error)
	Unclaim(ctx context.Context, poolID string, cell grid.Cell, requester string) error
	SetScore(ctx context.Context, poolID, actor string, q grid.QuarterScore) (grid.WinningCellResult, error)
	LinkEvent(ctx context.Context, poolID, actor, sportPath, eventID string) error
	Board(ctx context.Context, poolID string) (*pool.Board, error)
	Finalize(ctx context.Context, poolID, actor string) (*pool.Board, error)
}

type Server struct {
	pools    Pools
	renderer render.BoardRenderer
	ping     func(ctx context.Context) error
	origins  []string
	now      func() time.Time
}

type Option func(*Server)

// WithHealthCheck sets the dependency probe behind /health.
func WithHealthCheck(ping func(ctx context.Context) error) Option {
	return func(s *Server) { s.ping = ping }
}

func WithCORSOrigins(origins []string) Option { return func(s *Server) { s.origins = origins } }
func WithClock(now func() time.Time) Option   { return func(s *Server) { s.now = now } }

func NewServer(pools Pools, renderer render.BoardRenderer, opts ...Option) *Server {
	s := &Server{pools: pools, renderer: renderer, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", UserHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Group(func(r chi.Router) {
			r.Use(requireUser)
			r.Post("/pools", s.createPool)
			r.Route("/pools/{poolID}", func(r chi.Router) {
				r.Get("/", s.getPool)
				r.Get("/board.png", s.boardPNG)
				r.Post("/claims", s.claim)
				r.Delete("/claims/{row}/{col}", s.unclaim)
				r.Put("/scores/{period}", s.putScore)
				r.Get("/results", s.results)
				r.Put("/event", s.linkEvent)
				r.Post("/finalize", s.finalize)
			})
		})
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status, code := "healthy", http.StatusOK
	if s.ping != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ping(ctx); err != nil {
			obslog.L().Warn("http_health_error", zap.Error(err))
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	respondJSON(w, code, map[string]any{
		"status":    status,
		"timestamp": s.now().UTC(),
		"service":   "squares-bot",
	})
}

type userKey struct{}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(UserHeader)
		if id == "" {
			respondError(w, http.StatusUnauthorized, "missing_user", UserHeader+" header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, id)))
	})
}

func userFrom(r *http.Request) string {
	id, _ := r.Context().Value(userKey{}).(string)
	return id
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		obslog.L().Info("http_request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("took", time.Since(start)),
			zap.String("request_id", chimiddleware.GetReqID(r.Context())),
		)
	})
}
