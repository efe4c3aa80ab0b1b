package prompt

import "fmt"

// ReportSystemPrompt grounds the assistant in the analysis report. Exactly
// one of the two forms is used: when the report body is available it is
// embedded verbatim, otherwise the assistant is pointed at the report URL.
func ReportSystemPrompt(inlineHTML, reportURL string) string {
	if inlineHTML != "" {
		return fmt.Sprintf(`You are an assistant helping the user understand a document-analysis report.
The full report HTML is below. Ground every answer in this report and say so when the report does not contain the answer.

Report:
%s`, inlineHTML)
	}
	return fmt.Sprintf(`You are an assistant helping the user understand a document-analysis report.
The rendered report is available at %s. Answer questions about the analysis and say so when you cannot know the answer without the report contents.`, reportURL)
}
