package reasoning

import (
	"strings"

	"github.com/ShayCichocki/hive/pkg/models"
)

// Quality score weights. Mean confidence carries the largest single weight
// so that uniformly raising confidence never lowers the score.
const (
	weightDiversity  = 0.20
	weightTrend      = 0.20
	weightConfidence = 0.25
	weightDepth      = 0.15
	weightFlow       = 0.20
)

// ScoreChain computes a quality score in [0,1] for a reasoning chain from:
// step-type diversity, the least-squares trend of confidence across steps,
// mean confidence, mean reasoning depth, and a logical-flow heuristic that
// expects each step to textually follow from its predecessor (the first two
// steps are exempt). Empty chains score zero.
func ScoreChain(chain *models.ReasoningChain) float64 {
	if chain == nil || len(chain.Steps) == 0 {
		return 0
	}

	score := weightDiversity*diversityScore(chain.Steps) +
		weightTrend*trendScore(chain.Steps) +
		weightConfidence*meanConfidence(chain.Steps) +
		weightDepth*depthScore(chain.Steps) +
		weightFlow*flowScore(chain.Steps)

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// diversityScore rewards chains using at least three distinct step types.
func diversityScore(steps []models.ChainOfThoughtStep) float64 {
	seen := make(map[models.ChainStepType]struct{})
	for _, s := range steps {
		seen[s.Type] = struct{}{}
	}
	if len(seen) >= 3 {
		return 1
	}
	return float64(len(seen)) / 3
}

// trendScore maps the least-squares slope of confidence across steps into
// [0,1]: a flat chain scores 0.5, positive trends are rewarded, and steep
// negative trends are penalized toward zero.
func trendScore(steps []models.ChainOfThoughtStep) float64 {
	n := len(steps)
	if n < 2 {
		return 0.5
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, s := range steps {
		x := float64(i)
		sumX += x
		sumY += s.Confidence
		sumXY += x * s.Confidence
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	if denom == 0 {
		return 0.5
	}
	slope := (fn*sumXY - sumX*sumY) / denom

	v := 0.5 + slope*5
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func meanConfidence(steps []models.ChainOfThoughtStep) float64 {
	var sum float64
	for _, s := range steps {
		sum += s.Confidence
	}
	return sum / float64(len(steps))
}

// depthScore measures the mean length of reasoning text, saturating at a
// modest paragraph.
func depthScore(steps []models.ChainOfThoughtStep) float64 {
	var total int
	for _, s := range steps {
		total += len(s.Reasoning)
	}
	mean := float64(total) / float64(len(steps))
	v := mean / 120
	if v > 1 {
		return 1
	}
	return v
}

// flowScore is the fraction of steps (exempting the first two) whose text
// references or causally follows from the prior step: either an explicit
// "step"/"following" marker or a shared substantive token.
func flowScore(steps []models.ChainOfThoughtStep) float64 {
	if len(steps) <= 2 {
		return 1
	}

	eligible := 0
	passed := 0
	for i := 2; i < len(steps); i++ {
		eligible++
		if followsFrom(steps[i], steps[i-1]) {
			passed++
		}
	}
	return float64(passed) / float64(eligible)
}

// followsFrom reports whether step textually references its predecessor.
func followsFrom(step, prev models.ChainOfThoughtStep) bool {
	text := strings.ToLower(step.Content + " " + step.Reasoning)
	if strings.Contains(text, "step") || strings.Contains(text, "following") || strings.Contains(text, "follows") {
		return true
	}
	for _, tok := range strings.Fields(strings.ToLower(prev.Content)) {
		tok = strings.Trim(tok, ".,;:!?")
		if len(tok) >= 5 && strings.Contains(text, tok) {
			return true
		}
	}
	return false
}
