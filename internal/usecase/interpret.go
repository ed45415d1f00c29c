package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"document-assistant/internal/domain"
)

// FallbackJustification is used whenever the model does not supply one.
const FallbackJustification = "See answer above for document references"

const challengeSize = 3

type groundedAnswerPayload struct {
	Answer        string `json:"answer"`
	Justification string `json:"justification"`
	SourceSnippet string `json:"source_snippet"`
	Confidence    string `json:"confidence"`
}

func parseSummary(raw string) string {
	return strings.TrimSpace(raw)
}

// parseGroundedAnswer never fails. The second return value reports whether
// the raw text fallback was used.
func parseGroundedAnswer(raw string) (domain.GroundedAnswer, bool) {
	payload, err := decodeGroundedAnswer(stripCodeFence(raw))
	if err != nil || strings.TrimSpace(payload.Answer) == "" {
		return domain.GroundedAnswer{
			Answer:        strings.TrimSpace(raw),
			Justification: FallbackJustification,
			SourceSnippet: "",
			Confidence:    domain.ConfidenceMedium,
		}, true
	}

	justification := payload.Justification
	if strings.TrimSpace(justification) == "" {
		justification = FallbackJustification
	}
	return domain.GroundedAnswer{
		Answer:        payload.Answer,
		Justification: justification,
		SourceSnippet: truncateRunes(payload.SourceSnippet, maxSnippetChars),
		Confidence:    normalizeConfidence(payload.Confidence),
	}, false
}

func decodeGroundedAnswer(raw string) (groundedAnswerPayload, error) {
	var out groundedAnswerPayload
	dec := json.NewDecoder(bytes.NewBufferString(raw))
	if err := dec.Decode(&out); err != nil {
		return groundedAnswerPayload{}, fmt.Errorf("usecase: decode grounded answer: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return groundedAnswerPayload{}, errors.New("usecase: decode grounded answer: multiple JSON values")
		}
		return groundedAnswerPayload{}, fmt.Errorf("usecase: decode grounded answer trailing data: %w", err)
	}
	return out, nil
}

// stripCodeFence removes a leading ``` marker (with optional language label)
// and a trailing ``` marker.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexAny(s, "\n{["); i >= 0 {
		s = s[i:]
	} else {
		s = ""
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func normalizeConfidence(s string) domain.Confidence {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high":
		return domain.ConfidenceHigh
	case "low":
		return domain.ConfidenceLow
	default:
		return domain.ConfidenceMedium
	}
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// parseChallenge prefers numbered "1." "2." "3." lines and degrades to
// splitting the whole text on '?' when fewer than three are present. The
// result may hold fewer than three questions; it is never padded.
func parseChallenge(raw string) domain.ChallengeSet {
	if qs := numberedQuestions(raw); len(qs) >= challengeSize {
		return domain.ChallengeSet{Questions: qs[:challengeSize], Strategy: domain.StrategyStructured}
	}
	return domain.ChallengeSet{Questions: splitQuestions(raw), Strategy: domain.StrategyDegraded}
}

func numberedQuestions(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "1.") && !strings.HasPrefix(line, "2.") && !strings.HasPrefix(line, "3.") {
			continue
		}
		if q := strings.TrimSpace(line[2:]); q != "" {
			out = append(out, q)
		}
	}
	return out
}

// splitQuestions drops empty fragments before taking the first challengeSize.
func splitQuestions(raw string) []string {
	out := make([]string, 0, challengeSize)
	for _, fragment := range strings.Split(raw, "?") {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}
		out = append(out, fragment+"?")
		if len(out) == challengeSize {
			break
		}
	}
	return out
}

func parseEvaluation(raw string) domain.Evaluation {
	return domain.Evaluation{RawNarrative: raw}
}
