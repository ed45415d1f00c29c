package usecase

import (
	"fmt"
	"strings"

	"document-assistant/internal/domain"
)

// DefaultHistoryWindow is the number of most recent turns replayed into an
// answer prompt. Older turns are dropped.
const DefaultHistoryWindow = 3

const maxSnippetChars = 200

func buildSummaryPrompt(content string) string {
	return strings.Join([]string{
		"Please provide a concise summary of the following document in no more than 150 words.",
		"Focus on the main points, key findings, and essential information:",
		"",
		content,
	}, "\n")
}

func buildAnswerPrompt(content, question string, history []domain.Turn, window int) string {
	return strings.Join([]string{
		"Based on the following document, please answer the question with consideration of any previous conversation context.",
		"",
		"Document:",
		content,
		historyContext(history, window),
		"Current Question: " + strings.TrimSpace(question),
		"",
		"Output Contract:",
		answerContract(),
	}, "\n")
}

// historyContext renders at most window trailing turns, oldest first.
func historyContext(history []domain.Turn, window int) string {
	if window <= 0 || len(history) == 0 {
		return ""
	}
	if len(history) > window {
		history = history[len(history)-window:]
	}

	var b strings.Builder
	b.WriteString("\nPrevious conversation context:\n")
	for i, t := range history {
		fmt.Fprintf(&b, "Q%d: %s\nA%d: %s\n", i+1, t.Question, i+1, t.Answer)
	}
	return b.String()
}

func answerContract() string {
	return strings.Join([]string{
		"Return JSON only, with exactly these string keys:",
		`{`,
		`  "answer": "your detailed answer",`,
		`  "justification": "specific reference to the document content with section or paragraph information",`,
		fmt.Sprintf(`  "source_snippet": "the exact text from the document that supports the answer, at most %d characters",`, maxSnippetChars),
		`  "confidence": "High, Medium or Low depending on how well the document supports the answer"`,
		`}`,
		"The source_snippet must be copied verbatim from the document.",
	}, "\n")
}

func buildChallengePrompt(content string) string {
	return strings.Join([]string{
		"Based on the following document, generate exactly 3 challenging questions that test:",
		"- Deep comprehension and understanding",
		"- Logical reasoning and inference",
		"- Critical thinking about the content",
		"",
		"The questions should require more than simple recall and should test the reader's ability to analyze, synthesize, and draw conclusions from the document.",
		"",
		"Document:",
		content,
		"",
		"Provide exactly 3 questions, one per line, numbered as \"1. \", \"2. \" and \"3. \".",
	}, "\n")
}

func buildEvaluationPrompt(content, question, userAnswer string) string {
	return strings.Join([]string{
		"Based on the following document, evaluate the user's answer to the given question.",
		"",
		"Document:",
		content,
		"",
		"Question: " + strings.TrimSpace(question),
		"User's Answer: " + strings.TrimSpace(userAnswer),
		"",
		"Evaluate the answer and provide:",
		"- A score from 1-10 (10 being excellent)",
		"- Feedback on the answer's accuracy and completeness",
		"- The correct or ideal answer with justification from the document",
		"- Specific references to document sections that support the evaluation",
		"",
		"Format your response as:",
		"Score: [1-10]",
		"Feedback: [Your feedback here]",
		"Correct Answer: [Ideal answer here]",
		"Justification: [Document references and explanation]",
	}, "\n")
}
