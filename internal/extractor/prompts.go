package extractor

import (
	"strings"
)

const basePrompt = "You are a financial statement parser for PDF bank and credit card statements.\n\n" +
	"Task:\n" +
	"- Identify which bank issued the attached statement.\n" +
	"- Parse ALL transactions in the statement.\n" +
	"- Output STRICT JSON only (no comments, no trailing commas, no extra text).\n\n" +
	"Output a single JSON object with these fields:\n" +
	"- \"bank_key\": string, one of the supported statement keys below, or \"unknown\"\n" +
	"- \"confidence\": number between 0 and 1, how sure you are that every transaction was read correctly\n" +
	"- \"page_count\": number of pages in the statement\n" +
	"- \"statement_period\": object {\"start\": \"YYYY-MM-DD\", \"end\": \"YYYY-MM-DD\"} or null\n" +
	"- \"warnings\": array of strings describing anything you could not read\n" +
	"- \"transactions\": array of objects, each with:\n" +
	"  - \"date\": string, ISO format \"YYYY-MM-DD\" (transaction date, not posting date)\n" +
	"  - \"description\": string, as printed\n" +
	"  - \"amount\": number (positive for money IN, negative for money OUT)\n" +
	"  - \"currency\": string, ISO 4217 code (e.g. \"USD\")\n" +
	"  - \"type\": \"debit\" or \"credit\"\n\n"

const rulesPrompt = "Rules:\n" +
	"- If the statement has separate debit / credit columns, convert to a single signed \"amount\".\n" +
	"- Skip opening balances, closing balances, subtotals and interest summaries.\n" +
	"- Never invent transactions; if a row is unreadable, add a warning instead.\n\n" +
	"Return ONLY valid raw JSON.\n" +
	"Do NOT wrap the response in code fences.\n" +
	"Do NOT use ```json or any Markdown.\n" +
	"Output must begin with \"{\" and end with \"}\".\n"

// buildPrompt returns the model instructions. When forced is non-nil the model
// is told which format to expect.
func buildPrompt(forced *ParserInfo) string {
	var b strings.Builder
	b.WriteString(basePrompt)

	b.WriteString("Supported statement keys:\n")
	for _, key := range AvailableParsers() {
		p := parsers[key]
		b.WriteString("  - " + p.Key + ": " + p.Name + " (default currency " + p.DefaultCurrency + ")\n")
	}
	b.WriteString("\n")

	if forced != nil {
		b.WriteString("The user says this is a " + forced.Name + ". Report the bank you actually see in \"bank_key\".\n")
		for _, h := range forced.Hints {
			b.WriteString("- " + h + "\n")
		}
		b.WriteString("\n")
	} else {
		b.WriteString("FORMAT HINTS:\n")
		for _, key := range AvailableParsers() {
			for _, h := range parsers[key].Hints {
				b.WriteString("- [" + key + "] " + h + "\n")
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(rulesPrompt)
	return b.String()
}
