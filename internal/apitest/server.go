// Package apitest is an in-memory stand-in for the catalog backend: the REST
// API and its Socket.IO job channel. Incoming requests are validated against
// the API contract, so tests using it also check that callers conform.
package apitest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	v1 "github.com/acme/catalog-console/api/v1"
	"github.com/acme/catalog-console/pkg/middleware"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	nethttpmiddleware "github.com/oapi-codegen/nethttp-middleware"
)

// Request is a recorded API call.
type Request struct {
	Method    string
	Path      string
	Query     url.Values
	RequestID string
}

type failure struct {
	status  int
	message string
}

type Option func(s *Server)

// WithAutoRun runs a job as soon as a client joins its room.
func WithAutoRun() Option {
	return func(s *Server) {
		s.autoRun = true
	}
}

// WithPingInterval makes the socket endpoint ping clients at d, with the same
// d as ping timeout.
func WithPingInterval(d time.Duration) Option {
	return func(s *Server) {
		s.pingInterval = d
	}
}

// WithProducts seeds the product table.
func WithProducts(products ...v1.Product) Option {
	return func(s *Server) {
		for _, p := range products {
			s.insertProduct(p)
		}
	}
}

// WithWebhooks seeds the webhook table.
func WithWebhooks(webhooks ...v1.Webhook) Option {
	return func(s *Server) {
		for _, w := range webhooks {
			s.nextWebhookID++
			if w.Id == 0 {
				w.Id = s.nextWebhookID
			}
			s.webhooks = append(s.webhooks, w)
		}
	}
}

// Server is the fake backend. All methods are safe for concurrent use.
type Server struct {
	*httptest.Server

	mu            sync.Mutex
	cond          *sync.Cond
	products      []v1.Product
	nextProductID int64
	webhooks      []v1.Webhook
	nextWebhookID int64
	jobs          map[string]*job
	requests      []Request
	failures      map[string]failure
	sockets       map[*socket]struct{}
	joined        []string
	pongs         int

	autoRun      bool
	silent       bool
	pingInterval time.Duration
}

func NewServer(opts ...Option) *Server {
	s := &Server{
		jobs:         map[string]*job{},
		failures:     map[string]failure{},
		sockets:      map[*socket]struct{}{},
		pingInterval: 25 * time.Second,
	}
	s.cond = sync.NewCond(&s.mu)
	for _, o := range opts {
		o(s)
	}

	s.Server = httptest.NewServer(s.router())
	return s
}

func (s *Server) router() http.Handler {
	swagger, err := v1.GetSwagger()
	if err != nil {
		panic(err)
	}
	swagger.Servers = nil

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		middleware.Logger(),
		chimiddleware.Recoverer,
		cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "PUT", "POST", "DELETE", "HEAD", "OPTIONS"},
			AllowedHeaders: []string{"*"},
			MaxAge:         300,
		}),
	)
	r.Use(s.record)
	r.Use(s.injectFailures)

	r.Get("/socket.io/", s.serveSocket)

	r.Group(func(r chi.Router) {
		r.Use(nethttpmiddleware.OapiRequestValidatorWithOptions(swagger, &nethttpmiddleware.Options{
			ErrorHandler: func(w http.ResponseWriter, message string, statusCode int) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(statusCode)
				_ = json.NewEncoder(w).Encode(v1.Error{Error: message})
			},
		}))

		r.Get("/api/health", s.health)
		r.Post("/api/upload", s.upload)
		r.Get("/api/products", s.listProducts)
		r.Post("/api/products", s.createProduct)
		r.Delete("/api/products/delete-all", s.deleteAllProducts)
		r.Put("/api/products/{id}", s.updateProduct)
		r.Delete("/api/products/{id}", s.deleteProduct)
		r.Get("/api/webhooks", s.listWebhooks)
		r.Post("/api/webhooks", s.createWebhook)
		r.Put("/api/webhooks/{id}", s.updateWebhook)
		r.Delete("/api/webhooks/{id}", s.deleteWebhook)
		r.Post("/api/webhooks/test/{id}", s.testWebhook)
	})
	return r
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/socket.io") {
			s.mu.Lock()
			s.requests = append(s.requests, Request{
				Method:    r.Method,
				Path:      r.URL.Path,
				Query:     r.URL.Query(),
				RequestID: middleware.GetRequestIDFromRequest(r),
			})
			s.mu.Unlock()
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		f, ok := s.failures[r.Method+" "+r.URL.Path]
		s.mu.Unlock()
		if ok {
			writeError(w, r, f.status, f.message)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Fail makes every method call on path answer status with message until
// Recover is called.
func (s *Server) Fail(method, path string, status int, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = failure{status: status, message: message}
}

func (s *Server) Recover(method, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failures, method+" "+path)
}

// Requests returns the recorded API calls in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// Count returns how many calls were made with method on path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// ResetRequests forgets the recorded calls.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}

// Products returns the current product table ordered by id.
func (s *Server) Products() []v1.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]v1.Product, len(s.products))
	copy(out, s.products)
	return out
}

// Webhooks returns the current webhook table.
func (s *Server) Webhooks() []v1.Webhook {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]v1.Webhook, len(s.webhooks))
	copy(out, s.webhooks)
	return out
}

// Jobs returns the ids of jobs that were started and not yet run.
func (s *Server) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// insertProduct upserts on the lowercased sku. Callers hold mu or run
// before the server starts.
func (s *Server) insertProduct(p v1.Product) v1.Product {
	for i := range s.products {
		if strings.EqualFold(s.products[i].Sku, p.Sku) {
			s.products[i].Name = p.Name
			s.products[i].Description = p.Description
			return s.products[i]
		}
	}
	s.nextProductID++
	if p.Id == 0 {
		p.Id = s.nextProductID
	} else if p.Id > s.nextProductID {
		s.nextProductID = p.Id
	}
	s.products = append(s.products, p)
	return p
}

func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	render.Status(r, status)
	render.JSON(w, r, v1.Error{Error: message})
}
