package model

// ExportMIMEType is the content type of bundle exports.
const ExportMIMEType = "text/csv"

// Export is a downloadable rendition of the full series.
type Export struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"-"`
}

// TableRow is one row of the tabular view. Indicators align with the
// indicator columns of the owning Table; nil means undefined.
type TableRow struct {
	OHLCV
	Indicators []*float64 `json:"indicators"`
}

// Table is the recent-rows view including indicator columns.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    []TableRow `json:"rows"`
}

// RangeStats summarises where the latest close sits in the recent range.
type RangeStats struct {
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	LastClose float64 `json:"last_close"`
	Position  float64 `json:"position"`
}

// RenderBundle is everything the presentation surface needs for one run.
type RenderBundle struct {
	Title    string            `json:"title"`
	Symbol   string            `json:"symbol"`
	Primary  IndicatorSeries   `json:"primary"`
	Overlays []IndicatorSeries `json:"overlays"`
	Tail     []OHLCV           `json:"tail"`
	Table    Table             `json:"table"`
	Stats    *RangeStats       `json:"stats,omitempty"`
	Export   Export            `json:"export"`
}
