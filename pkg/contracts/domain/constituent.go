package domain

// UnknownCategory is the label applied when a constituent has no sector or
// industry classification in the master table.
const UnknownCategory = "Unknown"

// Constituent represents one member security of the tracked index.
// The code is always the canonical string form produced at ingestion;
// downstream components never see raw numeric or padded variants.
type Constituent struct {
	Code             string  `json:"code" validate:"required,numeric"`
	Name             string  `json:"name"`
	AdjustmentFactor float64 `json:"adjustment_factor"`
	Sector           string  `json:"sector"`
	Industry         string  `json:"industry"`
}

// Category groups the classification labels of one constituent.
type Category struct {
	Sector   string `json:"sector"`
	Industry string `json:"industry"`
}

// CategoryOrUnknown returns the category for code, defaulting both labels
// to UnknownCategory when the code is not in the map.
func CategoryOrUnknown(categories map[string]Category, code string) Category {
	if c, ok := categories[code]; ok {
		if c.Sector == "" {
			c.Sector = UnknownCategory
		}
		if c.Industry == "" {
			c.Industry = UnknownCategory
		}
		return c
	}
	return Category{Sector: UnknownCategory, Industry: UnknownCategory}
}
