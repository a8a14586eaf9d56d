// Package dataprocessing implements the contribution attribution core for
// Nikkei 225 analysis: loading the provider's legacy-encoded CSV exports,
// reconciling heterogeneous stock identifiers, decomposing the index's daily
// point change into per-constituent contributions, and rolling those up to
// sector and industry level.
//
// # Pipeline
//
//	LoadTable → BuildFactorMap / BuildCategoryMap → Calculator.Compute →
//	AggregateByCategory → TimeSeriesTable.Upsert
//
// Every transform in this package is a pure, deterministic computation over
// in-memory tables; the only persistence-facing contract is the upsert on
// TimeSeriesTable, which callers serialize themselves.
//
// # Attribution
//
// For each period the calculator sums weighted changes (price change ×
// adjustment factor) over the constituents it could resolve, then allocates
// the observed index change in proportion to each constituent's weighted
// move. The allocation fractions sum to one, so per-period contributions
// conserve the index change. When the total weighted change is within 1e-10
// of zero the period is degenerate and every resolved contribution is
// reported as exactly 0.0.
//
// # Error policy
//
// Problems local to one row, identifier, or period are recovered with a
// documented default (skip or zero) so a single bad data point never aborts
// a batch. Only a table that no candidate encoding can decode is fatal to
// the load call, surfaced as *DecodeError.
package dataprocessing
