// Package search runs multi-indicator statistics searches.
//
// # Overview
//
// A search starts from one set of common values (datasource, indicators,
// selector selections, optional time series and a regionset) and turns it
// into zero or more committed indicators:
//
//   - Refine narrows the common values to each indicator's metadata
//   - Expand splits series and multiselect searches into single value searches
//   - BatchValidator probes every expanded search for data, strictly one at a time
//   - Aggregator folds failed probes back into the searches, builds one
//     notification and commits the survivors to an IndicatorStore
//
// Service ties the stages together and reports progress to a Listener.
//
// # Usage
//
//	svc := search.NewService(backend, store, search.WithLanguage("fi"))
//	res, err := svc.Run(ctx, core.CommonSearchValues{
//		Datasource: "sotkanet",
//		Indicators: []string{"4", "127"},
//		Selections: core.Selections{"sex": core.Scalar("total")},
//		Series:     &core.SeriesSpec{ID: "year", Values: []core.Value{"2019", "2020", "2021"}},
//		Regionset:  1851,
//	})
//
// Builder holds the interactive form state that produces those values.
// Its Snapshot is what gets handed to the service, so a running search is
// never affected by later form edits.
package search
