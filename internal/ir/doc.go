// Package ir provides the literal value types shared by the cohort query
// model, the SQL compiler and the portable serialization format.
//
// This package contains value definitions only. All other internal packages
// import ir; ir imports nothing internal.
//
// Key design constraints:
//   - NO float types anywhere - thresholds and counts use int64
//   - Dates travel as ISO-8601 IRString values ("2020-02-01")
//   - IRArray literals are code lists; they only appear under an equality filter
//   - All serialized forms use RFC 8785 key ordering
package ir
