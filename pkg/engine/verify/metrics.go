package verify

import "math"

// Metrics is a confusion matrix with its derived ratios. Ratios with an empty
// denominator are 0, never NaN.
type Metrics struct {
	TruePositives  int     `json:"true_positives"`
	TrueNegatives  int     `json:"true_negatives"`
	FalsePositives int     `json:"false_positives"`
	FalseNegatives int     `json:"false_negatives"`
	Precision      float64 `json:"precision"`
	Recall         float64 `json:"recall"`
	Accuracy       float64 `json:"accuracy"`
	F1Score        float64 `json:"f1_score"`
}

func ComputeMetrics(tp, tn, fp, fn int) Metrics {
	m := Metrics{TruePositives: tp, TrueNegatives: tn, FalsePositives: fp, FalseNegatives: fn}
	m.Precision = ratio(tp, tp+fp)
	m.Recall = ratio(tp, tp+fn)
	m.Accuracy = ratio(tp+tn, tp+tn+fp+fn)
	if m.Precision+m.Recall > 0 {
		m.F1Score = round4(2 * m.Precision * m.Recall / (m.Precision + m.Recall))
	}
	return m
}

func (m Metrics) Total() int {
	return m.TruePositives + m.TrueNegatives + m.FalsePositives + m.FalseNegatives
}

func ratio(num, den int) float64 {
	if den <= 0 {
		return 0
	}
	return round4(float64(num) / float64(den))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
