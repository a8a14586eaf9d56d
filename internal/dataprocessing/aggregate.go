package dataprocessing

import (
	"nikkeicli/pkg/contracts/domain"
)

// AggregateByCategory rolls per-constituent contributions up to sector and
// industry totals. Codes missing from the category map are grouped under
// Unknown. The column set of each output table is the union of categories
// observed across all periods; a category with no observation in a period
// stays absent for that row, which is distinct from a zero contribution.
func AggregateByCategory(contributions *TimeSeriesTable, categories map[string]domain.Category) (sectors, industries *TimeSeriesTable) {
	sectors = NewTimeSeriesTable()
	industries = NewTimeSeriesTable()

	for _, period := range contributions.Dates() {
		row, ok := contributions.Row(period)
		if !ok {
			continue
		}

		sectorSums := make(map[string]float64)
		industrySums := make(map[string]float64)
		for code, value := range row {
			cat := domain.CategoryOrUnknown(categories, code)
			sectorSums[cat.Sector] += value
			industrySums[cat.Industry] += value
		}

		sectors.Upsert(period, sectorSums)
		industries.Upsert(period, industrySums)
	}
	return sectors, industries
}
