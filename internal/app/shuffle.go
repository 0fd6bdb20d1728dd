package app

import (
	"math/rand/v2"

	"quizpack/internal/domain"
)

// ShuffleOptions returns a copy of q with its options permuted (Fisher-Yates) along with the
// order used: order[i] is the canonical index of the option now shown at position i.
// CorrectIndex and IncorrectExplanations are remapped to follow their options; q is untouched.
func ShuffleOptions(q domain.Question, rnd *rand.Rand) (domain.Question, []int) {
	order := identityOrder(len(q.Options))
	rnd.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return applyOptionOrder(q, order), order
}

func applyOptionOrder(q domain.Question, order []int) domain.Question {
	c := q.Clone()
	position := make([]int, len(order)) // canonical index -> presented index
	for i, orig := range order {
		c.Options[i] = q.Options[orig]
		position[orig] = i
	}
	if q.CorrectIndex >= 0 && q.CorrectIndex < len(position) {
		c.CorrectIndex = position[q.CorrectIndex]
	}
	if q.IncorrectExplanations != nil {
		c.IncorrectExplanations = make(map[int]string, len(q.IncorrectExplanations))
		for idx, text := range q.IncorrectExplanations {
			if idx >= 0 && idx < len(position) {
				c.IncorrectExplanations[position[idx]] = text
			}
		}
	}
	return c
}

func identityOrder(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	return order
}

// validOrder reports whether order is a permutation of 0..n-1.
func validOrder(order []int, n int) bool {
	if len(order) != n {
		return false
	}
	seen := make([]bool, n)
	for _, idx := range order {
		if idx < 0 || idx >= n || seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}
