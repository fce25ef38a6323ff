package pdfquiz

// View is an immutable snapshot of the controller for renderers
type View struct {
	Phase        Phase  `json:"phase"`
	Attempt      uint64 `json:"attempt"`
	DocumentName string `json:"document_name,omitempty"`
	TimeLimit    int    `json:"time_limit"`
	Presets      []int  `json:"presets"`

	Clock *ClockView `json:"clock,omitempty"`
	// Loading is set while the countdown waits on generation.
	Loading bool `json:"loading"`
	Ready   bool `json:"ready"`

	Current       int       `json:"current"`
	Total         int       `json:"total"`
	Question      *QuestionView `json:"question,omitempty"`
	Selected      Answer        `json:"selected"`
	Answers       []Answer      `json:"answers,omitempty"`
	AnsweredCount int           `json:"answered_count"`
	IsLast        bool          `json:"is_last"`

	Score  *Score           `json:"score,omitempty"`
	Grade  string           `json:"grade,omitempty"`
	Review []QuestionReview `json:"review,omitempty"`

	Error *ErrorView `json:"error,omitempty"`
}

// QuestionView is a question as shown while answering, without its correct option
type QuestionView struct {
	ID      int      `json:"id"`
	Text    string   `json:"question"`
	Options []string `json:"options"`
}

// ClockView is the countdown part of a View
type ClockView struct {
	Remaining int     `json:"remaining"`
	Display   string  `json:"display"`
	Progress  float64 `json:"progress"`
	Paused    bool    `json:"paused"`
	Expired   bool    `json:"expired"`
}

// ErrorView is a surfaced pipeline failure
type ErrorView struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// View returns a snapshot of the current state
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		Phase:     c.phase,
		Attempt:   c.attempt,
		TimeLimit: c.timeLimit,
		Presets:   append([]int(nil), TimePresets...),
		Selected:  Unanswered,
	}
	if c.doc != nil {
		v.DocumentName = c.doc.Name
	}
	if c.lastErr != nil {
		v.Error = &ErrorView{Kind: KindOf(c.lastErr), Message: Message(c.lastErr)}
	}

	if c.phase == PhasePending && c.clock != nil {
		v.Clock = &ClockView{
			Remaining: c.clock.Remaining(),
			Display:   c.clock.Format(),
			Progress:  c.clock.Progress(),
			Paused:    c.clock.Paused(),
			Expired:   c.clock.Expired(),
		}
		v.Loading = !c.generated
		v.Ready = c.generated
	}

	if c.session == nil || (c.phase != PhaseAnswering && c.phase != PhaseScoring) {
		return v
	}

	// questions stay hidden until Answering
	v.Total = len(c.session.Questions)
	v.Answers = append([]Answer(nil), c.session.Answers...)
	v.AnsweredCount = c.session.AnsweredCount()

	switch c.phase {
	case PhaseAnswering:
		v.Current = c.current
		v.IsLast = c.current == v.Total-1
		if q, ok := c.session.Question(c.current); ok {
			v.Question = &QuestionView{ID: q.ID, Text: q.Text, Options: q.Options}
			v.Selected = c.session.Answers[c.current]
		}
	case PhaseScoring:
		score := ScoreSession(c.session)
		v.Score = &score
		v.Grade = score.Grade()
		v.Review = Review(c.session)
	}
	return v
}
