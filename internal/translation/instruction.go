// internal/translation/instruction.go
package translation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"translator-back/internal/llm"
	"translator-back/internal/models"
)

// DetectLanguage is the source value asking the model to work out the
// source language itself.
const DetectLanguage = "Detect language"

const titleMaxRunes = 60

// IsDetect reports whether source is the detect-language sentinel.
func IsDetect(source string) bool {
	return strings.EqualFold(strings.TrimSpace(source), DetectLanguage)
}

// BuildInstruction composes the user message for one translation turn.
func BuildInstruction(source, target, content, prompt string) string {
	var instruction string
	if IsDetect(source) {
		instruction = fmt.Sprintf("Detect the source language and translate the following content to %s: %s.", target, content)
	} else {
		instruction = fmt.Sprintf("Translate the following content from %s to %s: %s.", source, target, content)
	}
	if prompt = strings.TrimSpace(prompt); prompt != "" {
		instruction += " Consider the following prompt or context: " + prompt
	}
	return instruction
}

// ReplayHistory converts stored messages into model messages. Internal
// system entries are not replayed.
func ReplayHistory(history []models.Message) []llm.Message {
	out := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		switch m.Role {
		case models.RoleUser:
			out = append(out, llm.Message{Role: llm.RoleUser, Content: m.Content})
		case models.RoleBot:
			out = append(out, llm.Message{Role: llm.RoleAssistant, Content: m.Content})
		}
	}
	return out
}

// Title is the first non-blank line of content, cut to a display length.
func Title(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if utf8.RuneCountInString(line) <= titleMaxRunes {
			return line
		}
		return strings.TrimSpace(string([]rune(line)[:titleMaxRunes]))
	}
	return ""
}
