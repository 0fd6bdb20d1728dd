// Package questions holds the packs compiled into the binary. They are registered as the
// builtin source and are always available, authenticated or not.
package questions

import "quizpack/internal/domain"

// Builtin returns fresh copies of the compiled-in packs. Category and points may be left
// empty on questions; the resolver fills them from the category key and difficulty.
func Builtin() []domain.Pack {
	return []domain.Pack{generalKnowledge(), goFundamentals()}
}

func generalKnowledge() domain.Pack {
	return domain.Pack{
		ID:      "general-knowledge",
		Name:    "General Knowledge",
		Version: "1.0",
		Author:  "quizpack",
		Categories: map[string][]domain.Question{
			"science": {
				{
					ID:                 "sci-water-boil",
					Text:               "At sea level, at what temperature does water boil?",
					Options:            []string{"90 °C", "100 °C", "110 °C", "120 °C"},
					CorrectIndex:       1,
					CorrectExplanation: "Pure water boils at 100 °C under one standard atmosphere.",
					IncorrectExplanations: map[int]string{
						0: "Water boils near 90 °C only at high altitude.",
					},
					Difficulty: domain.DifficultyEasy,
					Hints:      []string{"It is a round number on the Celsius scale."},
				},
				{
					ID:                 "sci-planet-red",
					Text:               "Which planet is known as the Red Planet?",
					Options:            []string{"Venus", "Jupiter", "Mars", "Mercury"},
					CorrectIndex:       2,
					CorrectExplanation: "Iron oxide on its surface gives Mars its colour.",
					Difficulty:         domain.DifficultyEasy,
					Hints:              []string{"It is the fourth planet from the Sun.", "Rovers named Curiosity and Perseverance explore it."},
				},
				{
					ID:                 "sci-photosynthesis-gas",
					Text:               "Which gas do plants absorb for photosynthesis?",
					Options:            []string{"Oxygen", "Nitrogen", "Carbon dioxide", "Helium"},
					CorrectIndex:       2,
					CorrectExplanation: "Plants fix carbon from CO2 and release oxygen.",
					IncorrectExplanations: map[int]string{
						0: "Oxygen is released by photosynthesis, not absorbed.",
					},
					Difficulty: domain.DifficultyMedium,
					Hints:      []string{"Animals exhale it."},
				},
				{
					ID:                 "sci-speed-light",
					Text:               "Roughly how fast does light travel in a vacuum?",
					Options:            []string{"300 km/s", "3,000 km/s", "300,000 km/s", "3,000,000 km/s"},
					CorrectIndex:       2,
					CorrectExplanation: "c is about 299,792 km/s.",
					Difficulty:         domain.DifficultyMedium,
					Hints:              []string{"Light from the Moon takes a little over a second to reach us."},
				},
				{
					ID:                 "sci-noble-gas",
					Text:               "Which of these elements is a noble gas?",
					Options:            []string{"Chlorine", "Argon", "Hydrogen", "Sodium"},
					CorrectIndex:       1,
					CorrectExplanation: "Argon sits in group 18 with a full outer shell.",
					IncorrectExplanations: map[int]string{
						0: "Chlorine is a halogen and highly reactive.",
						3: "Sodium is an alkali metal.",
					},
					Difficulty: domain.DifficultyHard,
					Hints:      []string{"It makes up almost 1% of Earth's atmosphere.", "Its symbol is Ar."},
				},
			},
			"geography": {
				{
					ID:                 "geo-largest-ocean",
					Text:               "What is the largest ocean on Earth?",
					Options:            []string{"Atlantic", "Indian", "Arctic", "Pacific"},
					CorrectIndex:       3,
					CorrectExplanation: "The Pacific covers about a third of the planet's surface.",
					Difficulty:         domain.DifficultyEasy,
					Hints:              []string{"Its name means peaceful."},
				},
				{
					ID:                 "geo-capital-australia",
					Text:               "What is the capital of Australia?",
					Options:            []string{"Sydney", "Melbourne", "Canberra", "Perth"},
					CorrectIndex:       2,
					CorrectExplanation: "Canberra was purpose-built as a compromise between Sydney and Melbourne.",
					IncorrectExplanations: map[int]string{
						0: "Sydney is the largest city, not the capital.",
						1: "Melbourne was the temporary seat of government until 1927.",
					},
					Difficulty: domain.DifficultyMedium,
					Hints:      []string{"It is not the largest city."},
				},
				{
					ID:                 "geo-longest-river",
					Text:               "Which river is usually ranked the longest in the world?",
					Options:            []string{"Amazon", "Nile", "Yangtze", "Mississippi"},
					CorrectIndex:       1,
					CorrectExplanation: "The Nile is about 6,650 km long, though some surveys favour the Amazon.",
					Difficulty:         domain.DifficultyHard,
					Hints:              []string{"It flows north into the Mediterranean."},
				},
			},
		},
	}
}

func goFundamentals() domain.Pack {
	return domain.Pack{
		ID:      "go-fundamentals",
		Name:    "Go Fundamentals",
		Version: "1.0",
		Author:  "quizpack",
		Categories: map[string][]domain.Question{
			"go-basics": {
				{
					ID:                 "go-zero-int",
					Text:               "What is the zero value of an int in Go?",
					Options:            []string{"nil", "0", "undefined", "-1"},
					CorrectIndex:       1,
					CorrectExplanation: "Numeric types start at 0.",
					IncorrectExplanations: map[int]string{
						0: "nil is the zero value for pointers, maps, slices, channels, funcs and interfaces.",
					},
					Difficulty: domain.DifficultyEasy,
					Hints:      []string{"Every type has a zero value; for numbers it is the obvious one."},
				},
				{
					ID:           "go-short-decl",
					Text:         "Which statement declares and initializes x inside a function?",
					Options:      []string{"x := 1", "let x = 1", "var x == 1", "x = 1 as int"},
					CorrectIndex: 0,
					Difficulty:   domain.DifficultyEasy,
				},
				{
					ID:                 "go-slice-append",
					Text:               "What does this print?",
					CodeSnippet:        "s := make([]int, 0, 1)\na := append(s, 1)\nb := append(s, 2)\nfmt.Println(a[0], b[0])",
					Options:            []string{"1 2", "2 2", "1 1", "It panics"},
					CorrectIndex:       1,
					CorrectExplanation: "Both appends write into the same backing array because capacity is 1.",
					Difficulty:         domain.DifficultyMedium,
					Hints:              []string{"Look at the capacity passed to make.", "append reuses the backing array when it has room."},
				},
				{
					ID:                 "go-defer-order",
					Text:               "In which order do deferred calls run?",
					Options:            []string{"First in, first out", "Last in, first out", "Random order", "Alphabetical order"},
					CorrectIndex:       1,
					CorrectExplanation: "Deferred calls are pushed on a stack.",
					Difficulty:         domain.DifficultyMedium,
				},
			},
			"concurrency": {
				{
					ID:                 "go-chan-close-read",
					Text:               "What does receiving from a closed, empty channel return?",
					Options:            []string{"It blocks forever", "It panics", "The zero value immediately", "An error"},
					CorrectIndex:       2,
					CorrectExplanation: "Receives on a closed channel complete immediately with the zero value and ok == false.",
					IncorrectExplanations: map[int]string{
						1: "Sending on a closed channel panics; receiving does not.",
					},
					Difficulty: domain.DifficultyMedium,
					Hints:      []string{"Use the two-value receive form to tell the difference."},
				},
				{
					ID:                 "go-waitgroup",
					Text:               "Which type waits for a collection of goroutines to finish?",
					Options:            []string{"sync.Mutex", "sync.WaitGroup", "sync.Once", "context.Context"},
					CorrectIndex:       1,
					CorrectExplanation: "Add, Done and Wait coordinate completion.",
					Difficulty:         domain.DifficultyEasy,
				},
				{
					ID:                 "go-nil-chan-select",
					Text:               "What happens to a select case that receives from a nil channel?",
					Options:            []string{"It panics", "It is never chosen", "It returns the zero value", "It closes the channel"},
					CorrectIndex:       1,
					CorrectExplanation: "Operations on a nil channel block forever, so select skips that case.",
					Difficulty:         domain.DifficultyHard,
					Hints:              []string{"This is a common way to disable a case dynamically."},
				},
			},
		},
	}
}
