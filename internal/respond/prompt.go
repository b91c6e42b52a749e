package respond

import (
	"fmt"
	"sort"
	"strings"
)

const informationSystemPrompt = `You are a helpful assistant answering questions about the user's personal documents. Answer using ONLY the provided document excerpt. If the excerpt does not contain the answer, say so plainly. Respond in concise markdown.`

const retrievalSystemPrompt = `You are a helpful assistant. The user asked for one or more of their uploaded files. Present the download links below as a short, friendly markdown message. Use the exact URLs given; never invent or alter links.`

// NoContextMessage is returned when the search found nothing relevant.
const NoContextMessage = "I couldn't find anything relevant to that in your documents. Try rephrasing, or upload the file you have in mind."

// buildInformationPrompt embeds the best-matching passage into the system
// prompt for an information query.
func buildInformationPrompt(passage string) string {
	var sb strings.Builder
	sb.WriteString(informationSystemPrompt)
	sb.WriteString("\n\nDocument excerpt:\n")
	sb.WriteString(passage)
	return sb.String()
}

// buildRetrievalPrompt lists the requested files and their download links,
// with the best-matching passage so the model can speak to the content.
func buildRetrievalPrompt(fileURLs map[string]string, passage string) string {
	var sb strings.Builder
	sb.WriteString(retrievalSystemPrompt)
	sb.WriteString("\n\nFiles:\n")
	sb.WriteString(linkList(fileURLs))
	if passage != "" {
		sb.WriteString("\n\nExcerpt from the best-matching document:\n")
		sb.WriteString(passage)
	}
	return sb.String()
}

// linkList renders fileURLs as markdown bullet links, sorted by filename for
// stable output.
func linkList(fileURLs map[string]string) string {
	names := make([]string, 0, len(fileURLs))
	for name := range fileURLs {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "- [%s](%s)\n", name, fileURLs[name])
	}
	return strings.TrimRight(sb.String(), "\n")
}
