package domain

import (
	"html"
	"math/rand"
	"strings"
)

// Normalize decodes HTML entities such as &quot; and &#039;. Unknown entities pass through.
func Normalize(text string) string {
	return html.UnescapeString(text)
}

// AnswersMatch compares a selected answer to the correct one after normalization,
// ignoring surrounding whitespace and case.
func AnswersMatch(answer, correct string) bool {
	a := strings.TrimSpace(Normalize(answer))
	c := strings.TrimSpace(Normalize(correct))
	return strings.EqualFold(a, c)
}

// NewQuestion normalizes rec and shuffles its answers once using rng.
// Every distractor present is kept; the count is never padded or checked.
func NewQuestion(rec QuestionRecord, rng *rand.Rand) Question {
	correct := Normalize(rec.CorrectAnswer)
	answers := make([]string, 0, len(rec.IncorrectAnswers)+1)
	answers = append(answers, correct)
	for _, incorrect := range rec.IncorrectAnswers {
		answers = append(answers, Normalize(incorrect))
	}
	rng.Shuffle(len(answers), func(i, j int) {
		answers[i], answers[j] = answers[j], answers[i]
	})

	return Question{
		Text:          Normalize(rec.Question),
		CorrectAnswer: correct,
		AllAnswers:    answers,
		Difficulty:    rec.Difficulty,
		Category:      Normalize(rec.Category),
	}
}

// BuildQuestions converts a fetched batch into session questions.
func BuildQuestions(records []QuestionRecord, rng *rand.Rand) []Question {
	questions := make([]Question, 0, len(records))
	for _, rec := range records {
		questions = append(questions, NewQuestion(rec, rng))
	}
	return questions
}
