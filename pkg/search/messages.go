package search

import (
	"errors"

	"github.com/rubiojr/statsgrid/pkg/core"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	msgNoData             = "No data for %d indicators"
	msgPartialData        = "Only partial data for %d indicators"
	msgCannotSeries       = "The selected indicator cannot be displayed as a time series"
	msgIndicatorListEmpty = "The datasource has no indicators"
	msgRegionsetsEmpty    = "The indicator has no regionsets"
	msgNoIndicators       = "No indicators selected"
	msgMetadataError      = "Fetching indicator metadata failed"
)

func init() {
	fi := language.Finnish
	_ = message.SetString(fi, msgNoData, "Ei dataa %d indikaattorille")
	_ = message.SetString(fi, msgPartialData, "Vain osittainen data %d indikaattorille")
	_ = message.SetString(fi, msgCannotSeries, "Valittua indikaattoria ei voi näyttää aikasarjana")
	_ = message.SetString(fi, msgIndicatorListEmpty, "Tietolähteellä ei ole indikaattoreita")
	_ = message.SetString(fi, msgRegionsetsEmpty, "Indikaattorilla ei ole aluejakoja")
	_ = message.SetString(fi, msgNoIndicators, "Indikaattoreita ei ole valittu")
	_ = message.SetString(fi, msgMetadataError, "Indikaattorin metatietojen haku epäonnistui")
}

// NewPrinter returns a message printer for a BCP 47 language tag. Unknown
// tags fall back to English.
func NewPrinter(lang string) *message.Printer {
	tag, err := language.Parse(lang)
	if err != nil {
		tag = language.English
	}
	matcher := language.NewMatcher([]language.Tag{language.English, language.Finnish})
	_, idx, _ := matcher.Match(tag)
	if idx == 1 {
		return message.NewPrinter(language.Finnish)
	}
	return message.NewPrinter(language.English)
}

// Describe returns a user facing message for the builder and service errors,
// or the error text for anything else.
func Describe(p *message.Printer, err error) string {
	switch {
	case errors.Is(err, ErrCannotDisplayAsSeries):
		return p.Sprintf(msgCannotSeries)
	case errors.Is(err, ErrIndicatorListEmpty):
		return p.Sprintf(msgIndicatorListEmpty)
	case errors.Is(err, ErrRegionsetsEmpty):
		return p.Sprintf(msgRegionsetsEmpty)
	case errors.Is(err, ErrNoIndicators):
		return p.Sprintf(msgNoIndicators)
	case errors.Is(err, core.ErrMetadataFetchFailed):
		return p.Sprintf(msgMetadataError)
	}
	return err.Error()
}
