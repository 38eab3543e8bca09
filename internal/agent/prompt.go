package agent

import (
	"fmt"
	"time"

	"github.com/toolzflow/toolbridge/internal/provider"
)

const toolsPrompt = `
You are an expert in composing functions. You are given a question and a set of possible functions.
Based on the question, you will need to make one or more function/tool calls to achieve the purpose.
You should only return the function call in tools call sections.

Always add references for search results at the end of each sentence like this:
<sentence1>[1](<link1>).
<sentence2>[2](<link2>).

Each unique link has unique reference number.

Never include image url in the response for generated images. Do not say you can't display image.
Do not use semi-colons when describing the image. Never use html, always use Markdown.
`

// ToolsSystemPrompt returns the instructions sent whenever tools are offered.
func ToolsSystemPrompt(now time.Time) string {
	return fmt.Sprintf("\nToday is %s.\n%s", now.Format("2006-01-02"), toolsPrompt)
}

// WithToolsPrompt appends the tools prompt to a leading system message, or
// inserts one when the conversation has none. messages is not modified.
func WithToolsPrompt(messages []provider.Message, now time.Time) []provider.Message {
	prompt := ToolsSystemPrompt(now)
	out := make([]provider.Message, 0, len(messages)+1)
	if len(messages) > 0 && messages[0].Role == "system" {
		first := messages[0]
		first.Content += prompt
		out = append(out, first)
		return append(out, messages[1:]...)
	}
	out = append(out, provider.Message{Role: "system", Content: prompt})
	return append(out, messages...)
}
