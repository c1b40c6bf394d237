package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/rubiojr/statsgrid/pkg/search"
	"github.com/rubiojr/statsgrid/pkg/version"
)

const defaultSearchLogLimit = 20

// parseRegionsets accepts repeated and comma separated regionset params.
func parseRegionsets(raw []string) ([]int, error) {
	var ids []int
	for _, value := range raw {
		for _, part := range strings.Split(value, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			id, err := core.ParseRegionset(part)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Server) HandleListDatasources(w http.ResponseWriter, r *http.Request) {
	filter, err := parseRegionsets(r.URL.Query()["regionset"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid regionset", err.Error())
		return
	}

	disabled := map[string]bool{}
	if len(filter) > 0 {
		for _, name := range s.catalog.UnsupportedDatasources(r.Context(), filter) {
			disabled[name] = true
		}
	}

	infos := s.catalog.Datasources()
	datasources := make([]DatasourceResponse, len(infos))
	for i, info := range infos {
		datasources[i] = DatasourceResponse{
			DatasourceInfo: info,
			Title:          s.catalog.Title(info.Name),
			Disabled:       disabled[info.Name],
		}
	}

	s.writeJSON(w, http.StatusOK, ListDatasourcesResponse{
		Datasources: datasources,
		Count:       len(datasources),
	})
}

func (s *Server) HandleListIndicators(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if _, ok := s.catalog.Datasource(name); !ok {
		s.writeError(w, http.StatusNotFound, "Datasource not found", fmt.Sprintf("Datasource '%s' does not exist", name))
		return
	}
	filter, err := parseRegionsets(r.URL.Query()["regionset"])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid regionset", err.Error())
		return
	}

	b := search.NewBuilder(s.catalog)
	if err := b.SetDatasource(r.Context(), name); err != nil && !errors.Is(err, search.ErrIndicatorListEmpty) {
		s.writeError(w, http.StatusBadGateway, "Failed to list indicators", err.Error())
		return
	}
	if len(filter) > 0 {
		b.SetRegionsetFilter(r.Context(), filter)
	}

	options := b.IndicatorOptions()
	listing := make([]IndicatorListing, len(options))
	for i, opt := range options {
		listing[i] = IndicatorListing{
			ID:         opt.ID,
			Name:       opt.Title,
			Regionsets: opt.Regionsets,
			Disabled:   opt.Disabled,
		}
	}
	s.writeJSON(w, http.StatusOK, listing)
}

// metadata writes an error response and returns nil when the indicator
// cannot be resolved.
func (s *Server) metadata(w http.ResponseWriter, r *http.Request) *core.IndicatorMetadata {
	name, id := r.PathValue("name"), r.PathValue("id")
	if _, ok := s.catalog.Datasource(name); !ok {
		s.writeError(w, http.StatusNotFound, "Datasource not found", fmt.Sprintf("Datasource '%s' does not exist", name))
		return nil
	}
	md, err := s.catalog.IndicatorMetadata(r.Context(), name, id)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to fetch metadata", err.Error())
		return nil
	}
	if md == nil {
		s.writeError(w, http.StatusNotFound, "Indicator not found", fmt.Sprintf("Indicator '%s' does not exist in '%s'", id, name))
		return nil
	}
	return md
}

func (s *Server) HandleIndicatorMetadata(w http.ResponseWriter, r *http.Request) {
	md := s.metadata(w, r)
	if md == nil {
		return
	}
	s.writeJSON(w, http.StatusOK, md)
}

func (s *Server) HandleIndicatorData(w http.ResponseWriter, r *http.Request) {
	md := s.metadata(w, r)
	if md == nil {
		return
	}

	query := core.DataQuery{
		Datasource: r.PathValue("name"),
		Indicator:  md.ID,
		Selections: core.Selections{},
	}
	if raw := r.URL.Query().Get("regionset"); raw != "" {
		id, err := core.ParseRegionset(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid regionset", err.Error())
			return
		}
		query.Regionset = id
	}
	if raw := r.URL.Query().Get("selectors"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &query.Selections); err != nil {
			s.writeError(w, http.StatusBadRequest, "Invalid selectors", err.Error())
			return
		}
	}

	data, err := s.catalog.IndicatorData(r.Context(), query)
	if err != nil {
		s.writeError(w, http.StatusBadGateway, "Failed to fetch data", err.Error())
		return
	}
	if data == nil {
		data = core.IndicatorData{}
	}
	s.writeJSON(w, http.StatusOK, data)
}

// HandleSearch starts a search from a submitted form. With wait=true the
// search runs to completion and the result is returned.
func (s *Server) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var form search.Form
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return
	}

	values, err := search.BuildRequest(r.Context(), s.catalog, form)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid search", search.Describe(s.printer, err))
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		result, err := s.service.Run(r.Context(), values)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, search.ErrNoIndicators) {
				status = http.StatusBadRequest
			}
			s.writeError(w, status, "Search failed", search.Describe(s.printer, err))
			return
		}
		s.writeJSON(w, http.StatusOK, result)
		return
	}

	id := s.service.Search(r.Context(), values)
	s.writeJSON(w, http.StatusAccepted, SearchStartedResponse{ID: id, Request: values})
}

func (s *Server) HandleListSearches(w http.ResponseWriter, r *http.Request) {
	limit := defaultSearchLogLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit", fmt.Sprintf("limit must be a positive integer, got %q", raw))
			return
		}
		limit = n
	}

	records, err := s.store.ListSearches(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list searches", err.Error())
		return
	}
	if records == nil {
		records = []core.SearchRecord{}
	}
	s.writeJSON(w, http.StatusOK, ListSearchesResponse{Searches: records, Count: len(records)})
}

func (s *Server) HandleListStateIndicators(w http.ResponseWriter, r *http.Request) {
	indicators, err := s.store.ListIndicators(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to list indicators", err.Error())
		return
	}
	active, err := s.store.ActiveIndicator(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to read active indicator", err.Error())
		return
	}
	if indicators == nil {
		indicators = []core.Indicator{}
	}
	s.writeJSON(w, http.StatusOK, ListIndicatorsResponse{
		Indicators: indicators,
		Active:     active,
		Count:      len(indicators),
	})
}

func (s *Server) HandleActiveIndicator(w http.ResponseWriter, r *http.Request) {
	active, err := s.store.ActiveIndicator(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to read active indicator", err.Error())
		return
	}
	if active == "" {
		s.writeError(w, http.StatusNotFound, "No active indicator", "No search has committed an indicator yet")
		return
	}
	ind, err := s.store.GetIndicator(r.Context(), active)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to read indicator", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ActiveIndicatorResponse{Hash: active, Indicator: ind})
}

func (s *Server) HandleRemoveIndicator(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	removed, err := s.store.RemoveIndicator(r.Context(), hash)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to remove indicator", err.Error())
		return
	}
	if !removed {
		s.writeError(w, http.StatusNotFound, "Indicator not found", fmt.Sprintf("Indicator '%s' does not exist", hash))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleClearIndicators(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "Failed to clear indicators", err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	}

	s.writeJSON(w, http.StatusOK, health)
}
