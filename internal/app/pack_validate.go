package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"quizpack/internal/domain"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Wire shapes. Pointers distinguish a missing field from its zero value.
type rawPack struct {
	PackID       *string                    `json:"packId"`
	PackName     *string                    `json:"packName"`
	PackVersion  json.RawMessage            `json:"packVersion"`
	Author       string                     `json:"author"`
	ContactEmail string                     `json:"contactEmail"`
	Categories   map[string]json.RawMessage `json:"categories"`
}

type rawCategory struct {
	Questions *[]rawQuestion `json:"questions"`
}

type rawQuestion struct {
	ID                    *string           `json:"id"`
	Text                  *string           `json:"text"`
	Options               []string          `json:"options"`
	CorrectIndex          *int              `json:"correctIndex"`
	CorrectExplanation    string            `json:"correctExplanation"`
	IncorrectExplanations map[string]string `json:"incorrectExplanations"`
	Category              *string           `json:"category"`
	Difficulty            *string           `json:"difficulty"`
	Points                *int              `json:"points"`
	Hints                 []string          `json:"hints"`
	ImageURL              string            `json:"imageUrl"`
	CodeSnippet           string            `json:"codeSnippet"`
}

// ParsePack decodes and fully validates a pack payload. packId is required.
func ParsePack(data []byte) (domain.Pack, error) {
	return parsePack(data, nil)
}

// parsePack normalizes both category shapes (bare arrays and {questions: [...]}) into the
// canonical map. generateID, when set, supplies a pack id for payloads that omit one.
func parsePack(data []byte, generateID func() string) (domain.Pack, error) {
	var raw rawPack
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&raw); err != nil {
		return domain.Pack{}, &domain.ValidationError{Field: "payload", Reason: err.Error()}
	}

	pack := domain.Pack{
		Author:       strings.TrimSpace(raw.Author),
		ContactEmail: strings.TrimSpace(raw.ContactEmail),
		Version:      versionString(raw.PackVersion),
	}
	switch {
	case raw.PackID != nil && strings.TrimSpace(*raw.PackID) != "":
		pack.ID = strings.TrimSpace(*raw.PackID)
	case generateID != nil:
		pack.ID = generateID()
	default:
		return domain.Pack{}, &domain.ValidationError{Field: "packId", Reason: "missing"}
	}
	if raw.PackName == nil || strings.TrimSpace(*raw.PackName) == "" {
		return domain.Pack{}, &domain.ValidationError{PackID: pack.ID, Field: "packName", Reason: "missing"}
	}
	pack.Name = strings.TrimSpace(*raw.PackName)
	if raw.Categories == nil {
		return domain.Pack{}, &domain.ValidationError{PackID: pack.ID, Field: "categories", Reason: "missing or not an object"}
	}

	pack.Categories = make(map[string][]domain.Question, len(raw.Categories))
	for _, name := range sortedKeys(raw.Categories) {
		items, err := decodeCategory(pack.ID, name, raw.Categories[name])
		if err != nil {
			return domain.Pack{}, err
		}
		questions := make([]domain.Question, 0, len(items))
		for i, item := range items {
			q, err := convertQuestion(pack.ID, name, i, item)
			if err != nil {
				return domain.Pack{}, err
			}
			questions = append(questions, q)
		}
		pack.Categories[name] = questions
	}

	if err := ValidatePack(pack); err != nil {
		return domain.Pack{}, err
	}
	return pack, nil
}

func decodeCategory(packID, name string, data json.RawMessage) ([]rawQuestion, error) {
	field := "categories." + name
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []rawQuestion
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, &domain.ValidationError{PackID: packID, Field: field, Reason: err.Error()}
		}
		return items, nil
	}
	var cat rawCategory
	if err := json.Unmarshal(trimmed, &cat); err != nil {
		return nil, &domain.ValidationError{PackID: packID, Field: field, Reason: err.Error()}
	}
	if cat.Questions == nil {
		return nil, &domain.ValidationError{PackID: packID, Field: field + ".questions", Reason: "missing"}
	}
	return *cat.Questions, nil
}

func convertQuestion(packID, category string, pos int, raw rawQuestion) (domain.Question, error) {
	qid := ""
	if raw.ID != nil {
		qid = strings.TrimSpace(*raw.ID)
	}
	if qid == "" {
		return domain.Question{}, &domain.ValidationError{
			PackID: packID,
			Field:  "id",
			Reason: fmt.Sprintf("missing on question %d of category %q", pos, category),
		}
	}
	missing := func(field string) error {
		return &domain.ValidationError{PackID: packID, QuestionID: qid, Field: field, Reason: "missing"}
	}
	switch {
	case raw.Text == nil:
		return domain.Question{}, missing("text")
	case raw.Options == nil:
		return domain.Question{}, missing("options")
	case raw.CorrectIndex == nil:
		return domain.Question{}, missing("correctIndex")
	case raw.Category == nil:
		return domain.Question{}, missing("category")
	case raw.Difficulty == nil:
		return domain.Question{}, missing("difficulty")
	case raw.Points == nil:
		return domain.Question{}, missing("points")
	}

	q := domain.Question{
		ID:                 qid,
		Text:               *raw.Text,
		Options:            raw.Options,
		CorrectIndex:       *raw.CorrectIndex,
		CorrectExplanation: raw.CorrectExplanation,
		Category:           strings.TrimSpace(*raw.Category),
		Difficulty:         domain.Difficulty(strings.ToLower(strings.TrimSpace(*raw.Difficulty))),
		Points:             *raw.Points,
		Hints:              raw.Hints,
		ImageURL:           raw.ImageURL,
		CodeSnippet:        raw.CodeSnippet,
	}
	if len(raw.IncorrectExplanations) > 0 {
		q.IncorrectExplanations = make(map[int]string, len(raw.IncorrectExplanations))
		for key, text := range raw.IncorrectExplanations {
			idx, err := strconv.Atoi(strings.TrimSpace(key))
			if err != nil {
				return domain.Question{}, &domain.ValidationError{
					PackID: packID, QuestionID: qid, Field: "incorrectExplanations",
					Reason: fmt.Sprintf("key %q is not an option index", key),
				}
			}
			q.IncorrectExplanations[idx] = text
		}
	}
	return q, nil
}

// ValidatePack checks a pack already in canonical shape. It is applied to decoded
// payloads and to pack cache entries read back from storage.
func ValidatePack(pack domain.Pack) error {
	if strings.TrimSpace(pack.ID) == "" {
		return &domain.ValidationError{Field: "packId", Reason: "missing"}
	}
	if strings.TrimSpace(pack.Name) == "" {
		return &domain.ValidationError{PackID: pack.ID, Field: "packName", Reason: "missing"}
	}
	if pack.ContactEmail != "" && !emailPattern.MatchString(pack.ContactEmail) {
		return &domain.ValidationError{PackID: pack.ID, Field: "contactEmail", Reason: "not an email address"}
	}
	if pack.Categories == nil {
		return &domain.ValidationError{PackID: pack.ID, Field: "categories", Reason: "missing"}
	}
	for _, name := range sortedKeys(pack.Categories) {
		if strings.TrimSpace(name) == "" {
			return &domain.ValidationError{PackID: pack.ID, Field: "categories", Reason: "empty category name"}
		}
		seen := make(map[string]struct{}, len(pack.Categories[name]))
		for _, q := range pack.Categories[name] {
			if err := validateQuestion(pack.ID, q); err != nil {
				return err
			}
			if _, dup := seen[q.ID]; dup {
				return &domain.ValidationError{PackID: pack.ID, QuestionID: q.ID, Field: "id", Reason: "duplicate in category " + name}
			}
			seen[q.ID] = struct{}{}
		}
	}
	return nil
}

func validateQuestion(packID string, q domain.Question) error {
	invalid := func(field, reason string) error {
		return &domain.ValidationError{PackID: packID, QuestionID: q.ID, Field: field, Reason: reason}
	}
	switch {
	case strings.TrimSpace(q.ID) == "":
		return invalid("id", "missing")
	case strings.TrimSpace(q.Text) == "":
		return invalid("text", "empty")
	case len(q.Options) < 2:
		return invalid("options", fmt.Sprintf("need at least 2, got %d", len(q.Options)))
	case q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options):
		return invalid("correctIndex", fmt.Sprintf("%d out of range for %d options", q.CorrectIndex, len(q.Options)))
	case q.Category == "":
		return invalid("category", "missing")
	case !q.Difficulty.Valid():
		return invalid("difficulty", fmt.Sprintf("%q is not easy, medium or hard", q.Difficulty))
	case q.Points <= 0:
		return invalid("points", "must be positive")
	}
	for idx := range q.IncorrectExplanations {
		if idx < 0 || idx >= len(q.Options) {
			return invalid("incorrectExplanations", fmt.Sprintf("index %d out of range", idx))
		}
		if idx == q.CorrectIndex {
			return invalid("incorrectExplanations", "explains the correct option")
		}
	}
	return nil
}

// versionString accepts both "1.2" and 1.2 for packVersion.
func versionString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
