package llm

import "fmt"

// RenderChatSystem builds the system instruction for repository Q&A. The
// evidence block is assembled upstream and already fits the context budget.
func RenderChatSystem(evidenceBlock string) string {
	return fmt.Sprintf(`You are an expert code analyst. You are analyzing a software project.
You have access to the following relevant code from the repository:

%s

---

Instructions:
- Answer questions based on the code above.
- Reference specific files and functions when relevant.
- If the code doesn't contain enough information to fully answer, say so.
- Use markdown formatting for clarity.
- Be concise but thorough.`, evidenceBlock)
}

// RenderEditPrompt builds the single-turn prompt asking for a complete
// replacement of one file. All providers share this text so their outputs
// stay comparable.
func RenderEditPrompt(req EditRequest) string {
	evidence := req.Evidence
	if evidence == "" {
		evidence = "(no additional context)"
	}
	return fmt.Sprintf(`You are an expert software engineer. You need to modify a source file.

Here is relevant context from the project:

%s

---

File to modify: %s

`+"```"+`
%s
`+"```"+`

---

Modification instruction:
%s

---

IMPORTANT RULES:
1. Return the COMPLETE modified file content.
2. Do NOT omit any existing code unless the instruction specifically asks to remove it.
3. Do NOT add explanatory comments unless asked.
4. Return ONLY the code, no markdown code fences, no explanations before or after.
5. Preserve the original formatting style, indentation, and conventions.`,
		evidence, req.FilePath, req.FileContent, req.Instruction)
}
