package generator

import (
	"fmt"
	"strings"

	"taskdeploy-backend/models"
)

const appSystemPrompt = "You are a code generator that outputs production-ready HTML files with inline CSS and JavaScript."

const appRules = `--- RULES ---
- Generate a complete, self-contained index.html file with inline CSS and JavaScript
- The code must be simple, readable, and work as-is (no build steps or npm dependencies)
- Use CDN links for any external libraries (e.g., Bootstrap, marked.js, highlight.js from jsdelivr or cdnjs)
- Handle all checks specified above
- Do NOT use localStorage, sessionStorage, or any browser storage APIs unless explicitly required by the brief
- Avoid secrets, API keys, and any credentials in the code
- Make the app functional and production-ready
- Include proper error handling
- Respond with ONLY the HTML code, no explanations or markdown formatting`

// attachmentURLPreview bounds how much of an attachment URL reaches the
// prompt; data URIs can be megabytes long.
const attachmentURLPreview = 100

func bulletList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("- ")
		b.WriteString(item)
	}
	return b.String()
}

func attachmentsSection(attachments []models.Attachment) string {
	if len(attachments) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("\n--- ATTACHMENTS ---\n")
	for _, att := range attachments {
		url := att.URL
		if runes := []rune(url); len(runes) > attachmentURLPreview {
			url = string(runes[:attachmentURLPreview])
		}
		fmt.Fprintf(&b, "- %s: %s...\n", att.Name, url)
	}
	return b.String()
}

func appPrompt(brief string, checks []string, attachments []models.Attachment) string {
	return fmt.Sprintf(`
You are an expert web developer.
Create a minimal working app that satisfies this task:

--- BRIEF ---
%s

--- CHECKS / REQUIREMENTS ---
%s
%s

%s
`, brief, bulletList(checks), attachmentsSection(attachments), appRules)
}

func readmePrompt(brief string, checks []string, projectName string, round int) string {
	return fmt.Sprintf(`
Write a professional README.md for this project.

Project Name: %s
Round: %d

--- BRIEF ---
%s

--- CHECKS ---
%s

The README should include:
1. Project title and brief description
2. Features (based on checks)
3. Setup & Usage Instructions (how to open/use the app)
4. File Structure (list key files and their purpose)
5. Technologies Used
6. License (MIT)

Make it professional, clear, and well-formatted in Markdown.
`, projectName, round, brief, bulletList(checks))
}
