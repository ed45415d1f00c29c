package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"document-assistant/internal/usecase"
)

var (
	outputJSON bool
	quizNoEval bool
)

// Colors are disabled automatically when stdout is not a terminal.
var (
	heading = color.New(color.Bold, color.FgCyan)
	muted   = color.New(color.Faint)
)

var summarizeCmd = &cobra.Command{
	Use:   "summarize <file>",
	Short: "Summarize a PDF or TXT file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

var askCmd = &cobra.Command{
	Use:   "ask <file> <question>",
	Short: "Answer a question grounded in a PDF or TXT file",
	Args:  cobra.ExactArgs(2),
	RunE:  runAsk,
}

var quizCmd = &cobra.Command{
	Use:   "quiz <file>",
	Short: "Generate comprehension questions and grade answers read from stdin",
	Long: `Generates three comprehension questions for the file. Each question is
printed and one line is read from stdin as the answer, which is then evaluated
against the document. Use --no-eval to only print the questions.`,
	Args: cobra.ExactArgs(1),
	RunE: runQuiz,
}

func init() {
	summarizeCmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	askCmd.Flags().BoolVar(&outputJSON, "json", false, "output as JSON")
	quizCmd.Flags().BoolVar(&quizNoEval, "no-eval", false, "print questions without reading answers")
	rootCmd.AddCommand(summarizeCmd, askCmd, quizCmd)
}

// uploadFile runs the upload pipeline on a local file.
func uploadFile(ctx context.Context, rt *runtime, path string) (usecase.UploadOutput, error) {
	f, err := os.Open(path)
	if err != nil {
		return usecase.UploadOutput{}, fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	return rt.svc.Upload(ctx, usecase.UploadInput{Filename: filepath.Base(path), Body: f})
}

func runSummarize(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	out, err := uploadFile(ctx, rt, args[0])
	if err != nil {
		return fmt.Errorf("summarize failed: %w", err)
	}
	if outputJSON {
		return printJSON(cmd, map[string]string{
			"document_id": out.DocumentID,
			"filename":    out.Filename,
			"summary":     out.Summary,
		})
	}
	cmd.Printf("%s\n\n%s\n", heading.Sprint(out.Filename), out.Summary)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	up, err := uploadFile(ctx, rt, args[0])
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	answer, err := rt.svc.Answer(ctx, usecase.AnswerInput{DocumentID: up.DocumentID, Question: args[1]})
	if err != nil {
		return fmt.Errorf("ask failed: %w", err)
	}
	if outputJSON {
		return printJSON(cmd, answer)
	}
	cmd.Println(answer.Answer)
	cmd.Println()
	cmd.Printf("%s %s\n", heading.Sprint("Justification:"), answer.Justification)
	if answer.SourceSnippet != "" {
		cmd.Printf("%s %s\n", heading.Sprint("Source:"), muted.Sprintf("%q", answer.SourceSnippet))
	}
	cmd.Printf("%s %s\n", heading.Sprint("Confidence:"), answer.Confidence)
	return nil
}

func runQuiz(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	rt, err := newRuntime(ctx)
	if err != nil {
		return err
	}
	defer rt.close(context.Background())

	up, err := uploadFile(ctx, rt, args[0])
	if err != nil {
		return fmt.Errorf("quiz failed: %w", err)
	}
	set, err := rt.svc.Challenge(ctx, up.DocumentID)
	if err != nil {
		return fmt.Errorf("quiz failed: %w", err)
	}
	if len(set.Questions) == 0 {
		cmd.Println("No questions could be generated.")
		return nil
	}

	in := bufio.NewScanner(cmd.InOrStdin())
	for i, q := range set.Questions {
		cmd.Printf("%s %s\n", heading.Sprintf("Q%d:", i+1), q)
		if quizNoEval {
			continue
		}
		cmd.Print("> ")
		if !in.Scan() {
			cmd.Println()
			break
		}
		answer := strings.TrimSpace(in.Text())

		eval, err := rt.svc.Evaluate(ctx, usecase.EvaluateInput{
			DocumentID: up.DocumentID,
			Question:   q,
			Answer:     answer,
		})
		if err != nil {
			return fmt.Errorf("quiz failed: %w", err)
		}
		cmd.Printf("%s\n\n", eval.RawNarrative)
	}
	return in.Err()
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
