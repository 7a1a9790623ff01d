// Package dialog renders the skill's spoken feedback.
package dialog

import (
	"bytes"
	"strings"
	"sync"
	"text/template"
)

// Language of the dialog table.
type Language string

const (
	EN Language = "en"
	RU Language = "ru"
)

var (
	mu      sync.RWMutex
	current = EN
)

var templates = map[Language]map[string]string{
	EN: {
		"start":               "Ok, I am ready for dictation.",
		"already_dictating":   "I am already taking dictation{{with .name}} for {{.}}{{end}}.",
		"restarted":           "Starting a new dictation. The previous one was discarded.",
		"stop":                "Dictation stopped.",
		"saved":               "Dictation saved with name {{.name}}.",
		"save_failed":         "I could not save the dictation {{.name}}. It is still open, try stopping again.",
		"not_dictating":       "I am not dictating at this moment.",
		"undo":                "Removed: {{.text}}",
		"nothing_to_undo":     "There is nothing to undo.",
		"autocomplete":        "{{.text}}",
		"autocomplete_failed": "Auto complete is not available right now.",
		"dictation":           "Here is your last dictation{{with .name}}, {{.}}{{end}}. {{.text}}",
		"no_dictation":        "You have no saved dictations.",
	},
	RU: {
		"start":               "Хорошо, я готов к диктовке.",
		"already_dictating":   "Я уже записываю диктовку{{with .name}} {{.}}{{end}}.",
		"restarted":           "Начинаю новую диктовку. Предыдущая удалена.",
		"stop":                "Диктовка остановлена.",
		"saved":               "Диктовка сохранена под именем {{.name}}.",
		"save_failed":         "Не удалось сохранить диктовку {{.name}}. Она всё ещё открыта, попробуйте остановить снова.",
		"not_dictating":       "Сейчас я не записываю диктовку.",
		"undo":                "Удалено: {{.text}}",
		"nothing_to_undo":     "Нечего отменять.",
		"autocomplete":        "{{.text}}",
		"autocomplete_failed": "Автодополнение сейчас недоступно.",
		"dictation":           "Ваша последняя диктовка{{with .name}}, {{.}}{{end}}. {{.text}}",
		"no_dictation":        "У вас нет сохранённых диктовок.",
	},
}

// SetLanguage switches the table used by Render. Unknown languages are ignored.
func SetLanguage(lang Language) {
	mu.Lock()
	defer mu.Unlock()
	if _, ok := templates[lang]; ok {
		current = lang
	}
}

// Current returns the active language.
func Current() Language {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// Render renders dialog id with data in the active language, falling back to
// English and then to the id itself.
func Render(id string, data map[string]string) string {
	mu.RLock()
	lang := current
	mu.RUnlock()

	src, ok := templates[lang][id]
	if !ok {
		src, ok = templates[EN][id]
	}
	if !ok {
		return id
	}

	tmpl, err := template.New(id).Option("missingkey=zero").Parse(src)
	if err != nil {
		return src
	}
	if data == nil {
		data = map[string]string{}
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return src
	}
	return strings.TrimSpace(buf.String())
}
