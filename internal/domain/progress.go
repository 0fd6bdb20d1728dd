package domain

import "time"

// HighScore is the best result recorded for one category.
type HighScore struct {
	Score         int       `json:"score"`
	Percentage    int       `json:"percentage"`
	CorrectCount  int       `json:"correctCount"`
	QuestionCount int       `json:"questionCount"`
	AchievedAt    time.Time `json:"achievedAt"`
}

// Stats aggregate every completed session.
type Stats struct {
	QuizzesCompleted  int                     `json:"quizzesCompleted"`
	QuestionsAnswered int                     `json:"questionsAnswered"`
	CorrectAnswers    int                     `json:"correctAnswers"`
	TotalPoints       int                     `json:"totalPoints"`
	HintsUsed         int                     `json:"hintsUsed"`
	BestStreak        int                     `json:"bestStreak"`
	TotalTimeMs       int64                   `json:"totalTimeMs"`
	Categories        map[string]CategoryStat `json:"categories"`
	LastPlayedAt      time.Time               `json:"lastPlayedAt"`
}

// Accuracy is the share of correct answers in percent.
func (s Stats) Accuracy() float64 {
	if s.QuestionsAnswered == 0 {
		return 0
	}
	return float64(s.CorrectAnswers) / float64(s.QuestionsAnswered) * 100
}

// CategoryStat represents stats for a specific category.
type CategoryStat struct {
	Played   int `json:"played"`
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
}

// QuestionReport is a player's complaint about a question.
type QuestionReport struct {
	QuestionID string    `json:"questionId"`
	Category   string    `json:"category"`
	PackID     string    `json:"packId,omitempty"`
	Reason     string    `json:"reason"`
	Details    string    `json:"details,omitempty"`
	ReportedAt time.Time `json:"reportedAt"`
}
