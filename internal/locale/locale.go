// Package locale resolves the localized title and body of journey push
// notifications from the locale tag reported by the matching oracle.
package locale

import (
	"strings"

	"github.com/kursadbilgin/journey-dispatch/internal/domain"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// DefaultTag is used when the oracle reports no locale.
const DefaultTag = "en"

// Text is a localized notification title and body.
type Text struct {
	Title string
	Body  string
}

// supported maps normalized tags to catalog languages.
var supported = map[string]language.Tag{
	"en":    language.English,
	"ko":    language.Korean,
	"ja":    language.Japanese,
	"es":    language.Spanish,
	"fr":    language.French,
	"pt":    language.Portuguese,
	"pt_BR": language.BrazilianPortuguese,
	"zh":    language.Chinese,
}

// prefixes are checked in order after the exact pt-BR and pt- rules.
var prefixes = []string{"zh", "en", "es", "fr", "ja", "ko"}

// Normalize maps a device locale tag onto the template key space. Unknown
// tags are returned unchanged and resolve to English at lookup time.
func Normalize(tag string) string {
	if tag == "" {
		return DefaultTag
	}
	if tag == "pt-BR" {
		return "pt_BR"
	}
	if strings.HasPrefix(tag, "pt-") {
		return "pt"
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(tag, prefix) {
			return prefix
		}
	}
	return tag
}

// Resolve normalizes rawTag and returns the templates for kind.
func Resolve(kind domain.Kind, rawTag string) Text {
	return defaultCatalog.resolve(kind, Normalize(rawTag))
}

type templates struct {
	builder *catalog.Builder
}

var defaultCatalog = mustBuild()

func mustBuild() *templates {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, entries := range messages {
		for normalized, text := range entries {
			tag := supported[normalized]
			if err := b.SetString(tag, key, text); err != nil {
				panic("locale: register " + key + " for " + normalized + ": " + err.Error())
			}
		}
	}
	return &templates{builder: b}
}

func (t *templates) resolve(kind domain.Kind, normalized string) Text {
	tag, ok := supported[normalized]
	if !ok {
		tag = language.English
	}
	prefix := kind.String()
	if kind != domain.KindResult {
		prefix = domain.KindAssigned.String()
	}

	p := message.NewPrinter(tag, message.Catalog(t.builder))
	return Text{
		Title: p.Sprintf(prefix + ".title"),
		Body:  p.Sprintf(prefix + ".body"),
	}
}

// messages is keyed by message key, then by normalized tag.
var messages = map[string]map[string]string{
	"assigned.title": {
		"en":    "New message",
		"ko":    "새 메시지",
		"ja":    "新しいメッセージ",
		"es":    "Nuevo mensaje",
		"fr":    "Nouveau message",
		"pt":    "Nova mensagem",
		"pt_BR": "Nova mensagem",
		"zh":    "新消息",
	},
	"assigned.body": {
		"en":    "A new relay message has arrived.",
		"ko":    "새 릴레이 메시지가 도착했어요.",
		"ja":    "新しいリレーメッセージが届きました。",
		"es":    "Llegó un nuevo mensaje de relé.",
		"fr":    "Un nouveau message relais est arrivé.",
		"pt":    "Chegou uma nova mensagem de relé.",
		"pt_BR": "Chegou uma nova mensagem de relé.",
		"zh":    "新的转发消息已到达。",
	},
	"result.title": {
		"en":    "Result ready",
		"ko":    "결과 도착",
		"ja":    "結果が到着",
		"es":    "Resultados listos",
		"fr":    "Résultat disponible",
		"pt":    "Resultado disponível",
		"pt_BR": "Resultado disponível",
		"zh":    "结果已到达",
	},
	"result.body": {
		"en":    "Your relay result is ready.",
		"ko":    "릴레이 결과를 확인해 주세요.",
		"ja":    "リレー結果を確認してください。",
		"es":    "Consulta el resultado del relé.",
		"fr":    "Consultez le résultat du relais.",
		"pt":    "Veja o resultado do relé.",
		"pt_BR": "Confira o resultado do relé.",
		"zh":    "请查看转发结果。",
	},
}
