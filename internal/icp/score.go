// Package icp computes weighted fit scores for candidates against an
// ideal-customer-profile.
package icp

import (
	"math"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/prospect-cli/internal/model"
)

// Per-factor sub-scores. Industry and location are binary; the two range
// factors additionally award a half score for immediate ordinal
// neighbors.
const (
	subMiss     = 0
	subAdjacent = 50
	subExact    = 100
)

var fold = cases.Fold()

// Score computes the 0-100 fit score for a candidate against a profile.
// It is pure and deterministic: no I/O, no clock, no mutation. Weight
// validation is the caller's job (see model.ValidateWeights); Score
// computes with whatever weights it is given.
func Score(c model.Candidate, p model.ICPProfile) int {
	w := p.Weights
	sum := industryScore(c, p)*w.Industry +
		locationScore(c, p)*w.Location +
		rangeScore(c.EmployeeSizeRange, p.CompanySizeRanges, model.EmployeeSizeBuckets)*w.EmployeeSize +
		rangeScore(c.RevenueRange, p.RevenueRanges, model.RevenueBuckets)*w.Revenue

	return int(math.Round(float64(sum) / 100))
}

// industryScore is 100 when the candidate's industry is one of the
// profile's industries. A missing industry on either side scores 0.
func industryScore(c model.Candidate, p model.ICPProfile) int {
	if c.Industry == "" || len(p.Industries) == 0 {
		return subMiss
	}
	want := norm(c.Industry)
	for _, ind := range p.Industries {
		if norm(ind) == want {
			return subExact
		}
	}
	return subMiss
}

// locationScore is 100 unconditionally for nationwide profiles,
// otherwise 100 on set membership.
func locationScore(c model.Candidate, p model.ICPProfile) int {
	if p.IsNationwide {
		return subExact
	}
	if c.Location == "" || len(p.Locations) == 0 {
		return subMiss
	}
	want := norm(c.Location)
	for _, loc := range p.Locations {
		if norm(loc) == want {
			return subExact
		}
	}
	return subMiss
}

// rangeScore implements the exact/adjacent rule over an ordinal bucket
// list: exact membership scores 100, an index distance of exactly 1 from
// any selected bucket scores 50, anything else 0. Buckets missing from
// the ordinal list score 0 rather than erroring.
func rangeScore(candidate string, selected []string, ordinal []string) int {
	if candidate == "" || len(selected) == 0 {
		return subMiss
	}
	ci := bucketIndex(ordinal, candidate)
	if ci < 0 {
		return subMiss
	}

	best := subMiss
	for _, sel := range selected {
		si := bucketIndex(ordinal, sel)
		if si < 0 {
			continue
		}
		switch dist := abs(ci - si); {
		case dist == 0:
			return subExact
		case dist == 1 && best < subAdjacent:
			best = subAdjacent
		}
	}
	return best
}

func bucketIndex(ordinal []string, s string) int {
	want := norm(s)
	for i, b := range ordinal {
		if norm(b) == want {
			return i
		}
	}
	return -1
}

// norm case-folds and trims so "software" and " Software " match.
func norm(s string) string {
	return fold.String(strings.TrimSpace(s))
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
