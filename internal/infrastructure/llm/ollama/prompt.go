package ollama

const maxPromptSnippet = 4000

func buildEnrichmentPrompt(text string) string {
	snippet := text
	if len(snippet) > maxPromptSnippet {
		snippet = snippet[:maxPromptSnippet]
	}

	return `You analyze scanned documents.
Return a strict JSON object with keys:
title (short string), extracted_date (YYYY-MM-DD or null, the date the document was issued),
tags (array of 1 to 5 short lowercase topic words), summary (one or two sentences).
No markdown, no extra keys.

Document:
` + snippet
}
