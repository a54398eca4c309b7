package truth

import (
	"math"
	"sort"
)

// FaceTrackingSample is one camera frame's worth of features, submitted
// by the answerer's phone while they speak.
type FaceTrackingSample struct {
	EyeBlinkRate    float64 `json:"eyeBlinkRate"`
	EyeMovement     float64 `json:"eyeMovement"`
	FacialTremor    float64 `json:"facialTremor"`
	NostrilMovement float64 `json:"nostrilMovement"`
	StressLevel     float64 `json:"stressLevel"`
	MicroExpression string  `json:"microExpression,omitempty"`
	Timestamp       int64   `json:"timestamp"`
}

// DetectionResult is the verdict shown on the host screen.
type DetectionResult struct {
	IsLie      bool           `json:"isLie"`
	Confidence int            `json:"confidence"`
	Comment    string         `json:"comment"`
	Scores     map[string]int `json:"scores,omitempty"`
}

// minSamples is the smallest run the detector will commit to a verdict on.
const minSamples = 5

// lieThreshold is the overall score at and above which the verdict flips
// to a lie.
const lieThreshold = 7

// Analyze turns a run of face-tracking samples into a verdict. The
// computation is deterministic: equal inputs give equal results.
func Analyze(samples []FaceTrackingSample) DetectionResult {
	n := len(samples)
	if n == 0 {
		return DetectionResult{Comment: "측정된 데이터가 없습니다"}
	}
	if n < minSamples {
		return DetectionResult{Comment: "판정하기에는 데이터가 부족합니다"}
	}

	blink := channel(samples, func(s FaceTrackingSample) float64 { return s.EyeBlinkRate })
	eye := channel(samples, func(s FaceTrackingSample) float64 { return s.EyeMovement })
	tremor := channel(samples, func(s FaceTrackingSample) float64 { return s.FacialTremor })
	nostril := channel(samples, func(s FaceTrackingSample) float64 { return s.NostrilMovement })
	stress := channel(samples, func(s FaceTrackingSample) float64 { return s.StressLevel })

	blinkScore := clampInt(int(math.Round(median(blink)/3*100)), 0, 100)
	eyeScore := clampInt(int(math.Round(median(eye)*300)), 0, 100)
	tremorScore := clampInt(int(math.Round(median(tremor)*300)), 0, 100)
	nostrilScore := clampInt(int(math.Round(median(nostril)*300)), 0, 100)

	volatility := int(math.Round(
		clampFloat(stddev(blink)*100, 0, 30) +
			clampFloat(stddev(eye)*100, 0, 30) +
			clampFloat(stddev(tremor)*50, 0, 20) +
			clampFloat(stddev(nostril)*50, 0, 20)))

	trend := math.Max(0, mean(stress[n/2:])-mean(stress[:n/2]))

	nervous := 0
	for _, s := range samples {
		if s.MicroExpression == "nervous" {
			nervous++
		}
	}
	microScore := int(math.Round(float64(nervous) / float64(n) * 30))

	base := int(math.Round(
		float64(blinkScore)*0.25 +
			float64(eyeScore)*0.25 +
			float64(tremorScore)*0.15 +
			float64(nostrilScore)*0.15 +
			float64(volatility)*0.2 +
			trend*0.1 +
			float64(microScore)*0.1))

	strong := 0
	for _, score := range []int{blinkScore, eyeScore, tremorScore, nostrilScore} {
		if score >= 50 {
			strong++
		}
	}
	bonus := 0
	switch {
	case strong >= 3:
		bonus = 15
	case strong >= 2:
		bonus = 10
	}

	overall := clampInt(base+bonus, 0, 100)
	return DetectionResult{
		IsLie:      overall >= lieThreshold,
		Confidence: overall,
		Comment:    verdictComment(overall, strongestChannel(blinkScore, eyeScore, tremorScore, nostrilScore)),
		Scores: map[string]int{
			"blink":      blinkScore,
			"eye":        eyeScore,
			"tremor":     tremorScore,
			"nostril":    nostrilScore,
			"volatility": volatility,
			"micro":      microScore,
		},
	}
}

func channel(samples []FaceTrackingSample, pick func(FaceTrackingSample) float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = pick(s)
	}
	return out
}

// median averages the two middle values on even-length input.
func median(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation.
func stddev(values []float64) float64 {
	m := mean(values)
	sum := 0.0
	for _, v := range values {
		sum += (v - m) * (v - m)
	}
	return math.Sqrt(sum / float64(len(values)))
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

var channelLabels = map[string]string{
	"blink":   "눈 깜빡임",
	"eye":     "시선 움직임",
	"tremor":  "얼굴 떨림",
	"nostril": "콧볼 움직임",
}

func strongestChannel(blink, eye, tremor, nostril int) string {
	best, bestScore := "blink", blink
	for _, entry := range []struct {
		name  string
		score int
	}{{"eye", eye}, {"tremor", tremor}, {"nostril", nostril}} {
		if entry.score > bestScore {
			best, bestScore = entry.name, entry.score
		}
	}
	return best
}

func verdictComment(overall int, channel string) string {
	label := channelLabels[channel]
	switch {
	case overall >= 70:
		return label + " 신호가 매우 강합니다. 거짓말이 거의 확실합니다"
	case overall >= 40:
		return label + " 신호가 뚜렷합니다. 거짓말일 가능성이 높습니다"
	case overall >= lieThreshold:
		return label + " 신호가 감지되었습니다. 조금 수상합니다"
	default:
		return "특이 신호가 없습니다. 진실을 말하고 있는 것으로 보입니다"
	}
}
