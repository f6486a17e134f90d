package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"CloudCart/pkg/kit"
)

const (
	maxBodyBytes = 1 << 20
	readyTimeout = 1 * time.Second

	apiName = "CloudCart API"
)

type Server struct {
	Store Store
	Log   *zap.Logger

	Environment string
	Version     string

	// WriteLimiter throttles POST, PUT and DELETE when set.
	WriteLimiter *kit.IPRateLimiter

	Now func() time.Time
}

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	r.Get("/readyz", s.readyz)

	r.Route("/api", func(r chi.Router) {
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			kit.WriteError(w, r, http.StatusNotFound, "Not found")
		})
		r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
			kit.WriteError(w, r, http.StatusMethodNotAllowed, "Method not allowed")
		})

		r.Get("/info", s.info)
		r.Get("/health", s.health)

		r.Route("/products", func(r chi.Router) {
			r.Get("/", s.list)
			r.Get("/{id}", s.get)

			r.Group(func(wr chi.Router) {
				if s.WriteLimiter != nil {
					wr.Use(s.WriteLimiter.Middleware)
				}
				wr.Post("/", s.create)
				wr.Put("/{id}", s.update)
				wr.Delete("/{id}", s.delete)
			})
		})
	})

	return r
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	products, err := s.Store.List(r.Context())
	if err != nil {
		s.serverError(w, r, "list products failed", err)
		return
	}

	if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
		filtered := make([]Product, 0, len(products))
		for _, p := range products {
			if p.Matches(q) {
				filtered = append(filtered, p)
			}
		}
		products = filtered
	}

	kit.WriteList(w, products)
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, MsgNotFound)
		return
	}

	p, err := s.Store.Get(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, r, err, "get product failed", id)
		return
	}
	kit.WriteData(w, http.StatusOK, p)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	f, err := s.decode(w, r)
	if err != nil {
		s.writeStoreError(w, r, err, "decode product failed", 0)
		return
	}

	p, err := s.Store.Create(r.Context(), f)
	if err != nil {
		s.writeStoreError(w, r, err, "create product failed", 0)
		return
	}

	if s.Log != nil {
		s.Log.Debug("product created", zap.Int64("id", p.ID))
	}
	kit.WriteData(w, http.StatusCreated, p)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, MsgNotFound)
		return
	}

	f, err := s.decode(w, r)
	if err != nil {
		s.writeStoreError(w, r, err, "decode product failed", id)
		return
	}

	p, err := s.Store.Update(r.Context(), id, f)
	if err != nil {
		s.writeStoreError(w, r, err, "update product failed", id)
		return
	}
	kit.WriteData(w, http.StatusOK, p)
}

func (s *Server) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		kit.WriteError(w, r, http.StatusNotFound, MsgNotFound)
		return
	}

	if err := s.Store.Delete(r.Context(), id); err != nil {
		s.writeStoreError(w, r, err, "delete product failed", id)
		return
	}

	if s.Log != nil {
		s.Log.Debug("product deleted", zap.Int64("id", id))
	}
	kit.WriteMessage(w, http.StatusOK, MsgDeleted)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (Fields, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	defer func() { _ = r.Body.Close() }()

	return DecodeFields(r.Body)
}

type infoResp struct {
	Message     string    `json:"message"`
	Version     string    `json:"version"`
	Environment string    `json:"environment"`
	Timestamp   time.Time `json:"timestamp"`
}

func (s *Server) info(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, infoResp{
		Message:     apiName,
		Version:     s.Version,
		Environment: s.Environment,
		Timestamp:   s.now(),
	})
}

type healthResp struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Environment string    `json:"environment"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	kit.WriteJSON(w, http.StatusOK, healthResp{
		Status:      "healthy",
		Timestamp:   s.now(),
		Environment: s.Environment,
	})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	if err := s.Store.Ping(ctx); err != nil {
		if s.Log != nil {
			s.Log.Warn("readyz failed", zap.Error(err))
		}
		kit.WriteError(w, r, http.StatusServiceUnavailable, "not ready")
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeStoreError(w http.ResponseWriter, r *http.Request, err error, op string, id int64) {
	var verr *ValidationError
	switch {
	case errors.Is(err, ErrNotFound):
		kit.WriteError(w, r, http.StatusNotFound, MsgNotFound)
	case errors.As(err, &verr):
		kit.WriteError(w, r, http.StatusBadRequest, verr.Msg)
	default:
		s.serverError(w, r, op, err, zap.Int64("id", id))
	}
}

func (s *Server) serverError(w http.ResponseWriter, r *http.Request, msg string, err error, fields ...zap.Field) {
	if s.Log != nil {
		s.Log.Error(msg, append(fields, zap.Error(err))...)
	}
	kit.WriteError(w, r, http.StatusInternalServerError, "Internal server error")
}

func (s *Server) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
