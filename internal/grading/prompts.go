package grading

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kurid3v/AVinci/internal/models"
)

const essaySystemInstruction = `You are an experienced, fair and consistent essay examiner.
Grade strictly against the rubric you are given. For every rubric criterion return one
detailedFeedback entry whose score lies between 0 and that criterion's maximum.
Feedback must be specific, cite the essay and explain what would earn more points.
Never award points for content the essay does not contain.
Respond only with JSON matching the requested schema.`

const readingSystemInstruction = `You are grading short written answers to reading comprehension questions.
Compare each answer with the question's grading criteria and the passage. Award a score between 0
and the question maximum in proportion to how completely the answer meets the criteria, and give a
one or two sentence rationale. Respond only with JSON matching the requested schema.`

const distributionSystemInstruction = `You split a student's free-form answer sheet into answers for individual questions.
Each question is listed with its id, type and, for multiple choice, its options with their ids and letters.
For multiple-choice questions return selectedOptionId set to the id of the chosen option.
For short-answer questions return the student's text for that question in writtenAnswer, unchanged.
Omit questions the student did not answer. Respond only with a JSON array.`

const rubricSystemInstruction = `You convert a free-text marking rubric into a list of criteria.
Return one entry per criterion with its name and maximum score. Respond only with a JSON array.`

const similaritySystemInstruction = `You detect overlap between student essays.
Compare the target essay with each numbered essay and report the highest similarity percentage
(0 to 100), the zero-based index of that essay, and a short explanation. Paraphrased ideas count
as similar; a shared topic alone does not. Respond only with JSON matching the requested schema.`

const extractionSystemInstruction = `You digitise teaching material. Read the provided text or images and
reproduce the assignment faithfully without inventing content. Respond only with JSON matching the requested schema.`

const imageToTextSystemInstruction = `You transcribe handwritten or printed student work. Return the text exactly as
written, preserving paragraphs. Do not correct spelling or grammar and do not add commentary.`

func buildEssayPrompt(input EssayInput) string {
	var b strings.Builder

	if input.Reference != nil {
		b.WriteString("## Reference example\n")
		b.WriteString("Below is an essay for the same assignment together with feedback a teacher reviewed. ")
		b.WriteString("Use it ONLY to calibrate the style, tone and level of detail of your feedback. ")
		b.WriteString("Do not loosen the rubric because of it and do not inflate scores because the example scored high. ")
		b.WriteString("Grade the student essay on its own merits.\n\n")
		b.WriteString("### Reference essay\n")
		b.WriteString(input.Reference.Essay)
		b.WriteString("\n\n### Reference feedback\n")
		if raw, err := json.Marshal(input.Reference.Feedback); err == nil {
			b.Write(raw)
		}
		b.WriteString("\n\n")
	}

	b.WriteString("## Assignment prompt\n")
	b.WriteString(strings.TrimSpace(input.Prompt))
	b.WriteString("\n\n## Rubric\n")
	switch {
	case strings.TrimSpace(input.RawRubric) != "":
		b.WriteString(strings.TrimSpace(input.RawRubric))
	case len(input.RubricItems) > 0:
		for _, item := range input.RubricItems {
			fmt.Fprintf(&b, "- %s (max %g points)\n", item.Criterion, item.MaxScore)
		}
	default:
		b.WriteString("No rubric was provided. Assess content, organisation, language use and mechanics.")
	}

	if len(input.RubricItems) > 0 && strings.TrimSpace(input.RawRubric) != "" {
		b.WriteString("\n\nScore each of these criteria separately:\n")
		for _, item := range input.RubricItems {
			fmt.Fprintf(&b, "- %s (max %g points)\n", item.Criterion, item.MaxScore)
		}
	}

	fmt.Fprintf(&b, "\n\n## Target maximum score\n%g\n", input.MaxScore())
	b.WriteString("\n## Student essay\n")
	b.WriteString(input.Essay)
	b.WriteString("\n\nReturn JSON.")
	return b.String()
}

func buildShortAnswerPrompt(problem models.Problem, pending []pendingAnswer) string {
	var b strings.Builder
	if passage := strings.TrimSpace(problem.Passage); passage != "" {
		b.WriteString("## Passage\n")
		b.WriteString(passage)
		b.WriteString("\n\n")
	}

	b.WriteString("## Answers to grade\n")
	for _, item := range pending {
		fmt.Fprintf(&b, "\n### Question id: %s (max %g points)\n", item.question.ID, item.question.EffectiveMaxScore())
		b.WriteString(item.question.QuestionText)
		if criteria := strings.TrimSpace(item.question.GradingCriteria); criteria != "" {
			b.WriteString("\nGrading criteria: ")
			b.WriteString(criteria)
		}
		b.WriteString("\nStudent answer: ")
		b.WriteString(item.answer.WrittenAnswer)
		b.WriteString("\n")
	}
	b.WriteString("\nReturn one grade per question id listed above. Return JSON.")
	return b.String()
}

func buildDistributionPrompt(raw string, questions []models.Question) string {
	var b strings.Builder
	b.WriteString("## Questions\n")
	for i, question := range questions {
		fmt.Fprintf(&b, "%d. id=%s type=%s\n   %s\n", i+1, question.ID, question.QuestionType, question.QuestionText)
		for j, option := range question.Options {
			fmt.Fprintf(&b, "   %s) id=%s %s\n", optionLetter(j), option.ID, option.Text)
		}
	}
	b.WriteString("\n## Student answer sheet\n")
	b.WriteString(raw)
	b.WriteString("\n\nReturn JSON.")
	return b.String()
}

func buildSimilarityPrompt(essay string, corpus []string) string {
	var b strings.Builder
	b.WriteString("## Target essay\n")
	b.WriteString(essay)
	b.WriteString("\n\n## Other essays\n")
	for i, other := range corpus {
		fmt.Fprintf(&b, "\n### Essay %d\n%s\n", i, other)
	}
	b.WriteString("\nReturn JSON.")
	return b.String()
}

func buildExtractionPrompt(source SourceMaterial, task string) string {
	var b strings.Builder
	b.WriteString(task)
	if text := strings.TrimSpace(source.Text); text != "" {
		b.WriteString("\n\n## Source text\n")
		b.WriteString(text)
	}
	if len(source.Images) > 0 {
		fmt.Fprintf(&b, "\n\n%d page image(s) are attached.", len(source.Images))
	}
	b.WriteString("\n\nReturn JSON.")
	return b.String()
}

func optionLetter(index int) string {
	if index < 26 {
		return string(rune('A' + index))
	}
	return fmt.Sprintf("%d", index+1)
}
