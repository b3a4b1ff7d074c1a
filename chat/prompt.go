package chat

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fabfab/pdf-rag/domain"
)

//go:embed prompts.yaml
var promptPacks []byte

const DefaultLanguage = "en"

// Prompt is one language's grounding template plus the labels the
// interactive loop prints.
type Prompt struct {
	Language      string `yaml:"-"`
	Refusal       string `yaml:"refusal"`
	Intro         string `yaml:"intro"`
	QuestionLabel string `yaml:"question_label"`
	AnswerLabel   string `yaml:"answer_label"`
	ErrorLabel    string `yaml:"error_label"`
	Goodbye       string `yaml:"goodbye"`
	Template      string `yaml:"template"`
}

var defaultPrompt = mustLoadPrompt(DefaultLanguage)

func parsePromptPacks() (map[string]Prompt, error) {
	packs := map[string]Prompt{}
	if err := yaml.Unmarshal(promptPacks, &packs); err != nil {
		return nil, fmt.Errorf("parse prompt packs: %w", err)
	}
	return packs, nil
}

func packNames(packs map[string]Prompt) string {
	langs := make([]string, 0, len(packs))
	for lang := range packs {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return strings.Join(langs, ", ")
}

// LoadPrompt returns the pack for lang; an empty lang selects English.
func LoadPrompt(lang string) (Prompt, error) {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if lang == "" {
		lang = DefaultLanguage
	}

	packs, err := parsePromptPacks()
	if err != nil {
		return Prompt{}, domain.WrapError(domain.ErrConfig, "load prompt", err)
	}
	p, ok := packs[lang]
	if !ok {
		return Prompt{}, domain.WrapError(domain.ErrConfig, "load prompt", fmt.Errorf("unsupported prompt language %q (available: %s)", lang, packNames(packs)))
	}
	if p.Template == "" || p.Refusal == "" {
		return Prompt{}, domain.WrapError(domain.ErrConfig, "load prompt", fmt.Errorf("prompt pack %q is incomplete", lang))
	}
	p.Language = lang
	return p, nil
}

func mustLoadPrompt(lang string) Prompt {
	p, err := LoadPrompt(lang)
	if err != nil {
		panic(err)
	}
	return p
}

// Build fills the template. Placeholders inside context or question are left
// untouched.
func (p Prompt) Build(context, question string) string {
	return strings.NewReplacer(
		"{context}", context,
		"{question}", question,
		"{refusal}", p.Refusal,
	).Replace(p.Template)
}

// BuildPrompt fills the English template.
func BuildPrompt(context, question string) string {
	return defaultPrompt.Build(context, question)
}
