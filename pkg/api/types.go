package api

import (
	"time"

	"github.com/rubiojr/statsgrid/pkg/core"
)

type DatasourceResponse struct {
	core.DatasourceInfo
	Title string `json:"title"`
	// Disabled is set when a regionset filter was given and the datasource
	// has no indicator supporting it.
	Disabled bool `json:"disabled,omitempty"`
}

type ListDatasourcesResponse struct {
	Datasources []DatasourceResponse `json:"datasources"`
	Count       int                  `json:"count"`
}

// IndicatorListing is wire compatible with core.IndicatorInfo.
type IndicatorListing struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Regionsets []int  `json:"regionsets"`
	Disabled   bool   `json:"disabled,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type SearchStartedResponse struct {
	ID      string                  `json:"id"`
	Request core.CommonSearchValues `json:"request"`
}

type ListIndicatorsResponse struct {
	Indicators []core.Indicator `json:"indicators"`
	Active     string           `json:"active,omitempty"`
	Count      int              `json:"count"`
}

type ActiveIndicatorResponse struct {
	Hash      string          `json:"hash"`
	Indicator *core.Indicator `json:"indicator,omitempty"`
}

type ListSearchesResponse struct {
	Searches []core.SearchRecord `json:"searches"`
	Count    int                 `json:"count"`
}

// EventsInit is the first message written on an events connection.
type EventsInit struct {
	Type   string `json:"type"`
	Active string `json:"active_indicator,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}
