// Package fog grades Freezing of Gait severity from trial statistics.
//
// Both grades are ordinal 0-4 and are computed independently from the same
// inputs. Thresholds are fixed clinical constants.
package fog

import "github.com/roach88/fogtimer/internal/trial"

// Clinical thresholds.
const (
	// UnableThresholdMs is the total frozen time above which both grades are 4.
	UnableThresholdMs int64 = 60000

	SeverePercent   = 50.0
	ModeratePercent = 10.0

	// BriefEpisodeMs is the exclusive upper bound of a brief single episode.
	BriefEpisodeMs int64 = 1000

	// LongEpisodeMs is the exclusive lower bound of a long episode.
	LongEpisodeMs int64 = 2000
)

// Cumulative grades severity by total frozen time and proportion.
type Cumulative int

// Frequency grades severity by episode count and length.
type Frequency int

var cumulativeText = [...]string{
	"0 = No Freezing",
	"1 = Mild",
	"2 = Moderate",
	"3 = Severe",
	"4 = Unable/assistance required",
}

var frequencyText = [...]string{
	"0 = No freezing",
	"1 = 1 brief FoG episode",
	"2 = Multiple brief FoG episodes OR 1 long-lasting FoG episode",
	"3 = Many long FoG episodes",
	"4 = Unable/assistance required",
}

func (g Cumulative) String() string {
	if g < 0 || int(g) >= len(cumulativeText) {
		return "unknown"
	}
	return cumulativeText[g]
}

func (g Frequency) String() string {
	if g < 0 || int(g) >= len(frequencyText) {
		return "unknown"
	}
	return frequencyText[g]
}

// Describe returns the grade text for the given episode count. Grade 2
// covers both several brief episodes and one long episode; the text names
// the case that applies.
func (g Frequency) Describe(freezeCount int) string {
	if g == 2 && freezeCount > 1 {
		return "2 = Multiple brief FoG episodes"
	}
	return g.String()
}

// Classify computes both grades. It is pure and deterministic.
func Classify(totalDurationMs, totalFrozenMs int64, freezeCount int, events []trial.FreezeEvent) (Cumulative, Frequency) {
	percent := trial.PercentOf(totalFrozenMs, totalDurationMs)
	return classifyCumulative(totalFrozenMs, percent), classifyFrequency(totalFrozenMs, freezeCount, events)
}

func classifyCumulative(totalFrozenMs int64, percent float64) Cumulative {
	switch {
	case totalFrozenMs > UnableThresholdMs:
		return 4
	case percent > SeverePercent:
		return 3
	case percent > ModeratePercent:
		return 2
	case totalFrozenMs > 0:
		return 1
	default:
		return 0
	}
}

func classifyFrequency(totalFrozenMs int64, freezeCount int, events []trial.FreezeEvent) Frequency {
	switch {
	case totalFrozenMs > UnableThresholdMs:
		return 4
	case freezeCount == 0:
		return 0
	case freezeCount == 1:
		var d int64
		if len(events) > 0 {
			d = events[0].DurationMs
		}
		if d < BriefEpisodeMs {
			return 1
		}
		// Single episodes of 1000-2000ms fold into grade 2 along with
		// episodes over 2000ms. The rubric leaves this band undefined.
		return 2
	default:
		for _, ev := range events {
			if ev.DurationMs > LongEpisodeMs {
				return 3
			}
		}
		return 2
	}
}
