package research

import (
	"fmt"
	"strings"
	"time"
)

func currentDate() string {
	return time.Now().Format("January 2, 2006")
}

const queryWriterSystemPrompt = `You are a research query planner.
Generate sophisticated and diverse web search queries that together cover the
question. Each query should target one specific aspect; do not generate more
queries than requested.`

// QueryListSchema is appended to the planner system prompt so the model
// returns a parseable JSON object.
func QueryListSchema() string {
	return `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "items": {
        "type": "string"
      },
      "description": "List of distinct web search queries"
    }
  },
  "required": ["queries"]
}`
}

func buildQueryWriterInput(question string, count int) string {
	return fmt.Sprintf(`Current date: %s
Question: %s
Number of queries: %d`, currentDate(), question, count)
}

const summarizerSystemPrompt = `You are a research analyst.
Synthesize the key information from the search results below, highlight
important findings, and note contradictions or gaps. Reference sources by
their position number using the [1], [2] format.`

func buildSummarizerInput(query string, sources []SearchResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Current date: %s\n", currentDate())
	fmt.Fprintf(&sb, "Search query: %s\n\nSearch results:\n", query)
	for i, s := range sources {
		fmt.Fprintf(&sb, "\n[%d] %s\nURL: %s\nSnippet: %s\n---\n", i+1, s.Title, s.URL, s.Snippet)
	}
	return sb.String()
}

const reflectionSystemPrompt = `You are a research supervisor.
Review the gathered summaries and decide whether they are sufficient to
answer the question. If not, describe the specific knowledge gap that
remains and propose follow-up search queries that would close it.`

func ReflectionSchema() string {
	return `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:{
  "type": "object",
  "properties": {
    "is_sufficient": {
      "type": "boolean",
      "description": "Whether the summaries answer the question"
    },
    "knowledge_gap": {
      "type": "string",
      "description": "What is still missing, empty if sufficient"
    },
    "follow_up_queries": {
      "type": "array",
      "items": {
        "type": "string"
      },
      "description": "Queries to close the gap, empty if sufficient"
    }
  },
  "required": ["is_sufficient", "knowledge_gap", "follow_up_queries"]
}`
}

func buildReflectionInput(question string, findings []Finding) string {
	texts := make([]string, 0, len(findings))
	for _, f := range findings {
		texts = append(texts, f.Text)
	}
	return fmt.Sprintf(`Current date: %s
Question: %s

Summaries:
%s`, currentDate(), question, strings.Join(texts, "\n\n---\n\n"))
}

const answerSystemPrompt = `You are a research writer.
Write a well-structured answer to the question based solely on the provided
summaries. Keep the markdown citation links from the summaries intact.`

func buildAnswerInput(question string, findings []Finding) string {
	texts := make([]string, 0, len(findings))
	for _, f := range findings {
		texts = append(texts, f.Text)
	}
	return fmt.Sprintf(`Current date: %s
Question: %s

Summaries:
%s`, currentDate(), question, strings.Join(texts, "\n---\n\n"))
}
