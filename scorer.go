package pdfquiz

// Score summarizes a finished quiz
type Score struct {
	Correct    int `json:"correct"`
	Attempted  int `json:"attempted"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}

// ScoreSession compares every answer slot with the correct option. It does not
// modify the session.
func ScoreSession(s *QuizSession) Score {
	score := Score{Total: len(s.Questions)}
	for i, q := range s.Questions {
		if i >= len(s.Answers) {
			break
		}
		a := s.Answers[i]
		if !a.Answered() {
			continue
		}
		score.Attempted++
		if int(a) == q.CorrectAnswer {
			score.Correct++
		}
	}
	if score.Total > 0 {
		// round half up; both operands are non-negative
		score.Percentage = (200*score.Correct + score.Total) / (2 * score.Total)
	}
	return score
}

// Grade returns the feedback line for the percentage
func (s Score) Grade() string {
	switch {
	case s.Percentage >= 90:
		return "Excellent!"
	case s.Percentage >= 80:
		return "Great Job!"
	case s.Percentage >= 70:
		return "Good Work!"
	case s.Percentage >= 60:
		return "Fair"
	default:
		return "Need Improvement"
	}
}

// QuestionReview pairs a question with what the user chose
type QuestionReview struct {
	Number   int      `json:"number"`
	Question Question `json:"question"`
	Answer   Answer   `json:"answer"`
	Correct  bool     `json:"correct"`
}

// Review lists every question with the user's answer
func Review(s *QuizSession) []QuestionReview {
	out := make([]QuestionReview, 0, len(s.Questions))
	for i, q := range s.Questions {
		a := Unanswered
		if i < len(s.Answers) {
			a = s.Answers[i]
		}
		out = append(out, QuestionReview{
			Number:   i + 1,
			Question: q.clone(),
			Answer:   a,
			Correct:  a.Answered() && int(a) == q.CorrectAnswer,
		})
	}
	return out
}
