// Package generation turns a question and retrieved snippets into an answer.
package generation

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

// MaxPromptSnippets caps how many snippets reach the model.
const MaxPromptSnippets = 20

//go:embed templates/*.txt
var promptTemplates embed.FS

var (
	systemTmpl = mustParse("templates/system.txt")
	userTmpl   = mustParse("templates/user.txt")
)

type Prompt struct {
	System string
	User   string
}

type PromptData struct {
	Query    string
	Snippets []string
}

func mustParse(name string) *template.Template {
	content, err := promptTemplates.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("template not found: %s: %v", name, err))
	}
	return template.Must(template.New(name).Funcs(templateFuncs()).Parse(string(content)))
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"join": strings.Join,
	}
}

// RenderPrompt builds the system and user messages for a question.
func RenderPrompt(query string, snippets []string) (Prompt, error) {
	if len(snippets) > MaxPromptSnippets {
		snippets = snippets[:MaxPromptSnippets]
	}
	data := PromptData{Query: query, Snippets: snippets}

	system, err := render(systemTmpl, data)
	if err != nil {
		return Prompt{}, err
	}
	user, err := render(userTmpl, data)
	if err != nil {
		return Prompt{}, err
	}
	return Prompt{System: system, User: user}, nil
}

func render(tmpl *template.Template, data PromptData) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return strings.TrimRight(buf.String(), "\n"), nil
}

func (p Prompt) String() string {
	return "[system]\n" + p.System + "\n\n[user]\n" + p.User
}
