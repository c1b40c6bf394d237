package api

import (
	"encoding/json"
	"net/http"

	"golang.org/x/text/message"

	"github.com/rubiojr/statsgrid/pkg/catalog"
	"github.com/rubiojr/statsgrid/pkg/log"
	"github.com/rubiojr/statsgrid/pkg/realtime"
	"github.com/rubiojr/statsgrid/pkg/search"
	"github.com/rubiojr/statsgrid/pkg/storage"
)

type Server struct {
	catalog *catalog.Catalog
	store   *storage.Store
	service *search.Service
	hub     *realtime.Hub
	printer *message.Printer
	logger  *log.Logger
}

// NewServer wires the HTTP API. hub may be nil, in which case the events
// endpoint is not available.
func NewServer(cat *catalog.Catalog, store *storage.Store, service *search.Service, hub *realtime.Hub, lang string) *Server {
	return &Server{
		catalog: cat,
		store:   store,
		service: service,
		hub:     hub,
		printer: search.NewPrinter(lang),
		logger:  log.ForService("api"),
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
