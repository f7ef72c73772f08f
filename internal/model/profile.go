package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// EmployeeSizeBuckets is the canonical ordinal list of employee-count
// ranges. Adjacency for scoring is index distance in this list.
var EmployeeSizeBuckets = []string{
	"1-10", "11-50", "51-200", "201-500", "501-1000", "1001-5000", "5001+",
}

// RevenueBuckets is the canonical ordinal list of annual-revenue ranges.
var RevenueBuckets = []string{
	"<$1M", "$1M-$5M", "$5M-$10M", "$10M-$50M", "$50M-$100M", "$100M-$500M", "$500M+",
}

// Weights distributes 100 points across the four fit factors.
type Weights struct {
	Industry     int `json:"industry" yaml:"industry"`
	Location     int `json:"location" yaml:"location"`
	EmployeeSize int `json:"employee_size" yaml:"employee_size"`
	Revenue      int `json:"revenue" yaml:"revenue"`
}

// ErrInvalidWeights is returned when a weight set is negative or does not
// sum to 100. It blocks persistence and rescoring, never the pure scorer.
var ErrInvalidWeights = eris.New("model: weights must be non-negative and sum to 100")

// ValidateWeights enforces the sum-to-100 invariant. Callers must run
// this before persisting a profile or starting a rescoring pass.
func ValidateWeights(w Weights) error {
	if w.Industry < 0 || w.Location < 0 || w.EmployeeSize < 0 || w.Revenue < 0 {
		return ErrInvalidWeights
	}
	if w.Industry+w.Location+w.EmployeeSize+w.Revenue != 100 {
		return ErrInvalidWeights
	}
	return nil
}

// ICPProfile is the user-defined ideal-customer-profile used for scoring.
type ICPProfile struct {
	UserID            string    `json:"user_id" yaml:"-"`
	Industries        []string  `json:"industries" yaml:"industries"`
	Locations         []string  `json:"locations" yaml:"locations"`
	IsNationwide      bool      `json:"is_nationwide" yaml:"is_nationwide"`
	CompanySizeRanges []string  `json:"company_size_ranges" yaml:"company_size_ranges"`
	RevenueRanges     []string  `json:"revenue_ranges" yaml:"revenue_ranges"`
	Weights           Weights   `json:"weights" yaml:"weights"`
	UpdatedAt         time.Time `json:"updated_at" yaml:"-"`
}

// ValidateBuckets rejects selected ranges that are not members of the
// canonical ordinal lists. Candidates may carry unknown buckets (they
// score zero); profiles may not.
func (p ICPProfile) ValidateBuckets() error {
	for _, b := range p.CompanySizeRanges {
		if indexOf(EmployeeSizeBuckets, b) < 0 {
			return eris.Errorf("model: unknown employee-size bucket %q", b)
		}
	}
	for _, b := range p.RevenueRanges {
		if indexOf(RevenueBuckets, b) < 0 {
			return eris.Errorf("model: unknown revenue bucket %q", b)
		}
	}
	return nil
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}
