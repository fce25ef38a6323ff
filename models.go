package pdfquiz

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// OptionsPerQuestion is the number of choices every question carries.
	OptionsPerQuestion = 4
	// DefaultNumQuestions is how many questions a generation asks for.
	DefaultNumQuestions = 10

	DefaultTimeLimit = 10
	MinTimeLimit     = 1
	MaxTimeLimit     = 120
)

// TimePresets are the quick-pick time limits offered at the timer step
var TimePresets = []int{5, 10, 15, 20, 30}

// Question represents a single quiz question with multiple choice answers
type Question struct {
	ID            int      `json:"id"`
	Text          string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"` // 0-based index
}

func (q Question) clone() Question {
	q.Options = append([]string(nil), q.Options...)
	return q
}

// Answer is a per-question answer slot: Unanswered or a selected option index
type Answer int

// Unanswered marks a slot the user never filled
const Unanswered Answer = -1

// Answered reports whether an option was selected.
func (a Answer) Answered() bool {
	return a >= 0
}

// MarshalJSON renders an unanswered slot as null.
func (a Answer) MarshalJSON() ([]byte, error) {
	if !a.Answered() {
		return []byte("null"), nil
	}
	return json.Marshal(int(a))
}

// UnmarshalJSON accepts null or an option index.
func (a *Answer) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*a = Unanswered
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if v < 0 {
		*a = Unanswered
		return nil
	}
	*a = Answer(v)
	return nil
}

// QuizSession holds the generated questions and the user's answers
type QuizSession struct {
	ID        string     `json:"id"`
	Questions []Question `json:"questions"`
	Answers   []Answer   `json:"answers"`
	TimeLimit int        `json:"time_limit"` // minutes
	CreatedAt time.Time  `json:"created_at"`
	frozen    bool
}

// NewQuizSession creates an empty session for a generation attempt
func NewQuizSession(timeLimit int) *QuizSession {
	return &QuizSession{
		ID:        uuid.NewString(),
		TimeLimit: timeLimit,
		CreatedAt: time.Now(),
	}
}

// Populate installs the generated questions and one unanswered slot per question.
func (s *QuizSession) Populate(questions []Question) {
	s.Questions = make([]Question, len(questions))
	for i, q := range questions {
		s.Questions[i] = q.clone()
	}
	s.Answers = make([]Answer, len(questions))
	for i := range s.Answers {
		s.Answers[i] = Unanswered
	}
}

// Question returns a copy of the question at index i
func (s *QuizSession) Question(i int) (Question, bool) {
	if i < 0 || i >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[i].clone(), true
}

// SetAnswer records option for question i. Selecting the same option twice is a no-op.
func (s *QuizSession) SetAnswer(i, option int) error {
	if s.frozen {
		return ErrSessionFrozen
	}
	if i < 0 || i >= len(s.Questions) {
		return InvalidInput("question %d does not exist", i+1)
	}
	if option < 0 || option >= len(s.Questions[i].Options) {
		return InvalidInput("option %d is out of range", option)
	}
	s.Answers[i] = Answer(option)
	return nil
}

// Freeze stops any further answer changes.
func (s *QuizSession) Freeze() {
	s.frozen = true
}

// Frozen reports whether answers are locked for scoring.
func (s *QuizSession) Frozen() bool {
	return s.frozen
}

// AnsweredCount returns how many slots hold an answer.
func (s *QuizSession) AnsweredCount() int {
	n := 0
	for _, a := range s.Answers {
		if a.Answered() {
			n++
		}
	}
	return n
}

// Phase is the active stage of the quiz workflow
type Phase int

const (
	PhaseIntake Phase = iota
	PhaseTiming
	PhasePending // questions requested, countdown running
	PhaseAnswering
	PhaseScoring
)

// String returns the lowercase phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIntake:
		return "intake"
	case PhaseTiming:
		return "timing"
	case PhasePending:
		return "pending"
	case PhaseAnswering:
		return "answering"
	case PhaseScoring:
		return "scoring"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// MarshalText lets phases travel as strings in JSON views.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText parses a phase name written by MarshalText.
func (p *Phase) UnmarshalText(text []byte) error {
	for candidate := PhaseIntake; candidate <= PhaseScoring; candidate++ {
		if candidate.String() == string(text) {
			*p = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown phase %q", text)
}

// GenerationRequest represents a request to generate questions
type GenerationRequest struct {
	Title          string `json:"title"`
	NumQuestions   int    `json:"num_questions"`
	SourceMaterial string `json:"source_material,omitempty"`
}
