package api

import (
	"net/http"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// Catalog. The indicator routes double as the wire format of the rest
	// datasource, so one statsgrid can serve another.
	mux.HandleFunc("GET /api/datasources", s.HandleListDatasources)
	mux.HandleFunc("GET /api/datasources/{name}/indicators", s.HandleListIndicators)
	mux.HandleFunc("GET /api/datasources/{name}/indicators/{id}", s.HandleIndicatorMetadata)
	mux.HandleFunc("GET /api/datasources/{name}/indicators/{id}/data", s.HandleIndicatorData)

	// Searches and indicator state
	mux.HandleFunc("POST /api/search", s.HandleSearch)
	mux.HandleFunc("GET /api/searches", s.HandleListSearches)
	mux.HandleFunc("GET /api/indicators", s.HandleListStateIndicators)
	mux.HandleFunc("DELETE /api/indicators", s.HandleClearIndicators)
	mux.HandleFunc("GET /api/indicators/active", s.HandleActiveIndicator)
	mux.HandleFunc("DELETE /api/indicators/{hash}", s.HandleRemoveIndicator)

	mux.HandleFunc("GET /api/events", s.HandleEvents)
	mux.HandleFunc("GET /health", s.HandleHealth)
}
