package profiling

import (
	"github.com/montanaflynn/stats"
)

// Summary holds descriptive statistics for a numeric column
type Summary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	StdDev   float64 `json:"std_dev"`
	Q25      float64 `json:"q25"`
	Q75      float64 `json:"q75"`
	Outliers int     `json:"outliers"`
}

// DistributionAnalyzer computes numeric summaries
type DistributionAnalyzer struct{}

// NewDistributionAnalyzer creates a new distribution analyzer
func NewDistributionAnalyzer() *DistributionAnalyzer {
	return &DistributionAnalyzer{}
}

// Summarize computes the summary of data. It fails on an empty slice.
func (da *DistributionAnalyzer) Summarize(data []float64) (Summary, error) {
	var s Summary
	var err error

	if s.Min, err = stats.Min(data); err != nil {
		return Summary{}, err
	}
	if s.Max, err = stats.Max(data); err != nil {
		return Summary{}, err
	}
	if s.Mean, err = stats.Mean(data); err != nil {
		return Summary{}, err
	}
	if s.Median, err = stats.Median(data); err != nil {
		return Summary{}, err
	}
	// sample deviation is undefined for one value; report 0
	if len(data) > 1 {
		if s.StdDev, err = stats.StandardDeviationSample(data); err != nil {
			return Summary{}, err
		}
	}

	// Quartiles for IQR-based outlier detection
	if s.Q25, err = stats.PercentileNearestRank(data, 25); err != nil {
		return Summary{}, err
	}
	if s.Q75, err = stats.PercentileNearestRank(data, 75); err != nil {
		return Summary{}, err
	}
	s.Outliers = detectOutliers(data, s.Q25, s.Q75)

	return s, nil
}

// detectOutliers counts values outside 1.5 IQR of the quartiles
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lowerBound := q25 - 1.5*iqr
	upperBound := q75 + 1.5*iqr

	outlierCount := 0
	for _, x := range data {
		if x < lowerBound || x > upperBound {
			outlierCount++
		}
	}
	return outlierCount
}
