package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rubiojr/statsgrid/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateIsSequential(t *testing.T) {
	backend := newFakeBackend()
	backend.delay = 5 * time.Millisecond

	var entries []*RefinedSearch
	for _, y := range years(2000, 2009) {
		entries = append(entries, &RefinedSearch{
			Indicator:  "1",
			Selections: core.Selections{"year": core.Scalar(core.Value(y))},
		})
	}

	var observed []core.Value
	v := NewBatchValidator(backend)
	v.onResult = func(res ProbeResult) {
		observed = append(observed, res.Search.Selections["year"].Value)
	}
	got := v.Validate(context.Background(), entries)

	assert.Equal(t, 1, backend.maxFlight, "probes must never overlap")
	probes := backend.probed()
	require.Len(t, probes, len(entries))
	for i, q := range probes {
		assert.Equal(t, entries[i].Selections["year"], q.Selections["year"])
	}
	assert.Equal(t, vals(years(2000, 2009)...), observed)
	assert.Len(t, got.Successful, len(entries))
	assert.Len(t, got.Results, len(entries))
}

func TestValidateClassification(t *testing.T) {
	backend := newFakeBackend()
	backend.hasData = func(q core.DataQuery) bool {
		return q.Indicator != "empty"
	}
	backend.probeErr = func(q core.DataQuery) error {
		if q.Indicator == "broken" {
			return errors.New("connection reset")
		}
		return nil
	}

	entries := []*RefinedSearch{
		{Indicator: "ok", Selections: core.Selections{}},
		{Indicator: "empty", Selections: core.Selections{}},
		{Indicator: "broken", Selections: core.Selections{}},
	}
	got := NewBatchValidator(backend).Validate(context.Background(), entries)

	require.Len(t, got.Successful, 1)
	assert.Equal(t, "ok", got.Successful[0].Indicator)
	require.Len(t, got.Failed, 2)
	assert.True(t, got.HasData("ok"))
	assert.False(t, got.HasData("empty"))
	assert.False(t, got.HasData("broken"))

	assert.NoError(t, got.Results[1].Err)
	assert.ErrorIs(t, got.Results[2].Err, core.ErrProbeFailed)
}

func TestValidateRecordsSeriesOnce(t *testing.T) {
	backend := newFakeBackend()
	series := &RefinedSearch{
		Indicator:  "1",
		Selections: core.Selections{"year": core.Scalar("2010")},
		Series:     &core.SeriesSpec{ID: "year", Values: vals("2010", "2011", "2012")},
	}
	entries := Expand(series)
	entries = append(entries, Expand(&RefinedSearch{
		Indicator:  "2",
		Selections: core.Selections{"sex": core.Multi("male", "female")},
	})...)

	got := NewBatchValidator(backend).Validate(context.Background(), entries)

	require.Len(t, got.Successful, 3)
	assert.Equal(t, "1", got.Successful[0].Indicator)
	assert.Equal(t, core.Scalar("2010"), got.Successful[0].Selections["year"])
	assert.Equal(t, "2", got.Successful[1].Indicator)
	assert.Equal(t, "2", got.Successful[2].Indicator)
}

func TestValidateEmptyBatch(t *testing.T) {
	backend := newFakeBackend()
	got := NewBatchValidator(backend).Validate(context.Background(), nil)
	assert.Empty(t, got.Results)
	assert.Empty(t, backend.probed())
}

func TestProbeQueueHoldsWholeBatch(t *testing.T) {
	entries := make([]*RefinedSearch, 64)
	for i := range entries {
		entries[i] = &RefinedSearch{Indicator: "1"}
	}

	q := newProbeQueue(len(entries))
	for _, e := range entries {
		q.enqueue(e)
	}
	q.close()

	for i := range entries {
		got, ok := q.next()
		require.True(t, ok)
		assert.Same(t, entries[i], got)
	}
	_, ok := q.next()
	assert.False(t, ok)
}
