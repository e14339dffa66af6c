package service

import (
	"math"
	"strconv"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Grade counts answers matching the key. Answers for ids outside the key are
// ignored; the total is the size of the key.
func Grade(answerKey map[string]string, answers map[int]int) (score, total int) {
	total = len(answerKey)
	for qid, correct := range answerKey {
		id, err := strconv.Atoi(qid)
		if err != nil {
			continue
		}
		if picked, ok := answers[id]; ok && strconv.Itoa(picked) == correct {
			score++
		}
	}
	return score, total
}

// scholarshipTier is the lowest percentage that earns a tier.
type scholarshipTier struct {
	min     float64
	percent int
	message string
}

var scholarshipTiers = []scholarshipTier{
	{100, 95, "Great scholarship opportunity for a brilliant mind - Congratulations!"},
	{90, 70, "What a score - Well Done!"},
	{75, 50, "Good effort!"},
	{50, 25, "Quarter Scholarship - Keep Trying!"},
}

// Scholarship maps a score percentage to a scholarship percent and message.
func Scholarship(percentage float64) (int, string) {
	for _, tier := range scholarshipTiers {
		if percentage >= tier.min {
			return tier.percent, tier.message
		}
	}
	return 10, "A scholarship for participation - Don't give up, keep learning!"
}

// Summarize builds the score view for a persisted result.
func Summarize(r model.TestResult) model.ScoreSummary {
	var pct float64
	if r.TotalQuestions > 0 {
		pct = float64(r.Score) / float64(r.TotalQuestions) * 100
	}
	scholarship, message := Scholarship(pct)
	return model.ScoreSummary{
		Score:              r.Score,
		Total:              r.TotalQuestions,
		Percentage:         math.Round(pct*100) / 100,
		ScholarshipPercent: scholarship,
		ScholarshipMessage: message,
		TabSwitches:        r.TabSwitches,
		SubmissionType:     r.SubmissionType,
		AssignedSet:        r.AssignedSet,
	}
}
