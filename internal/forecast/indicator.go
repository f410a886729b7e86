package forecast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"traffic-platform/internal/models"
)

// Indicator levels
const (
	LevelSimilar = "similar"
	LevelHigher  = "higher"
	LevelLower   = "lower"
	LevelUnknown = "unknown"
)

const referenceWeeks = 52

var indicatorTexts = map[string]string{
	LevelSimilar: "This location looks like it will have traffic similar to other equivalent weekdays in the past year.",
	LevelHigher:  "This location looks like it will have higher than average traffic compared to equivalent weekdays in the past year.",
	LevelLower:   "This location looks like it will have lower than average traffic compared to equivalent weekdays in the past year.",
	LevelUnknown: "There is not enough history on this weekday to compare against.",
}

// NewIndicator compares a predicted value with the mean of the same weekday
// over the preceding 52 weeks. Only weeks present in the series count.
func NewIndicator(series models.DailySeries, target time.Time, predicted float64) models.Indicator {
	target = dayOf(target)

	byDate := make(map[time.Time]float64, len(series.Points))
	for _, p := range series.Points {
		byDate[p.Date] = p.Value
	}

	var past []float64
	for w := 1; w <= referenceWeeks; w++ {
		if v, ok := byDate[target.AddDate(0, 0, -7*w)]; ok && !math.IsNaN(v) {
			past = append(past, v)
		}
	}

	if len(past) == 0 {
		return models.Indicator{Percent: 100, Level: LevelUnknown, Text: indicatorTexts[LevelUnknown]}
	}

	reference := stat.Mean(past, nil)
	if reference == 0 {
		return models.Indicator{Percent: 100, Reference: 0, Level: LevelUnknown, Text: indicatorTexts[LevelUnknown]}
	}

	percent := int(math.Round((predicted-reference)/reference*100)) + 100

	level := LevelSimilar
	switch {
	case percent > 100:
		level = LevelHigher
	case percent < 100:
		level = LevelLower
	}

	return models.Indicator{
		Percent:   percent,
		Reference: reference,
		Level:     level,
		Text:      indicatorTexts[level],
	}
}
