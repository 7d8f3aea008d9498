package insight

import (
	"fmt"
	"strings"
)

// Stage is the writer's current phase of the alchemical transformation scale.
type Stage string

// Recognized stages, in order of the transformation.
const (
	Nigredo    Stage = "Nigredo"
	Albedo     Stage = "Albedo"
	Citrinitas Stage = "Citrinitas"
	Rubedo     Stage = "Rubedo"
)

// DefaultStage is used when a stage label is not recognized.
const DefaultStage = Nigredo

// stages documents the whole scale; every system instruction lists all four.
var stages = []struct {
	stage       Stage
	description string
}{
	{Nigredo, "ciemność, introspekcja, oczyszczenie"},
	{Albedo, "klarowność, oświecenie, jasność"},
	{Citrinitas, "złocenie, mądrość, integracja"},
	{Rubedo, "spełnienie, pełnia, transformacja"},
}

// Stages returns the recognized stages in scale order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	for i, s := range stages {
		out[i] = s.stage
	}
	return out
}

// ParseStage maps a label to a Stage, ignoring case and surrounding whitespace.
// Unknown labels yield DefaultStage and false.
func ParseStage(label string) (Stage, bool) {
	label = strings.TrimSpace(label)
	for _, s := range stages {
		if strings.EqualFold(label, string(s.stage)) {
			return s.stage, true
		}
	}
	return DefaultStage, false
}

// Description returns the short vocabulary for the stage.
func (s Stage) Description() string {
	for _, known := range stages {
		if known.stage == s {
			return known.description
		}
	}
	return DefaultStage.Description()
}

// Prompt is the instruction pair sent to a provider.
type Prompt struct {
	System string // System instruction, built from the stage
	User   string // Journal text, verbatim
}

// Validate checks that the prompt carries something to reflect on.
func (p Prompt) Validate() error {
	if strings.TrimSpace(p.User) == "" {
		return &ValidationError{Field: "journalEntry", Reason: "must not be empty"}
	}
	if p.System == "" {
		return &ValidationError{Field: "system", Reason: "must not be empty"}
	}
	return nil
}

// Compose renders the system instruction for stageLabel and pairs it with
// the journal text. It never fails: unknown stages fall back to DefaultStage.
func Compose(journalText, stageLabel string) Prompt {
	stage, _ := ParseStage(stageLabel)
	return Prompt{
		System: renderSystem(stage),
		User:   journalText,
	}
}

func renderSystem(stage Stage) string {
	var sections []string

	// Persona
	sections = append(sections,
		"Jesteś empatycznym przewodnikiem duchowym wspierającym transformację świadomości.")

	// Current stage and the full scale
	scale := fmt.Sprintf("Użytkownik jest w fazie %s alchemicznej transformacji:\n", stage)
	for _, s := range stages {
		scale += fmt.Sprintf("- %s: %s\n", s.stage, s.description)
	}
	sections = append(sections, strings.TrimSpace(scale))

	// Language and structure
	sections = append(sections, strings.Join([]string{
		"WAŻNE: Odpowiadaj TYLKO po polsku w 3-4 pełnych zdaniach:",
		"1. Uznaj doświadczenie użytkownika z empatią",
		"2. Połącz je z obecną fazą transformacji",
		"3. Zaproponuj praktyczny insight lub pytanie refleksyjne",
		"4. Zachęć do dalszej praktyki",
	}, "\n"))

	// Format constraints, always last
	sections = append(sections, "Nie używaj samych emoji. Pisz pełne, mądre zdania po polsku.")

	return strings.Join(sections, "\n\n")
}
