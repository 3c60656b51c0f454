package language

import "strings"

type pluralRule struct {
	suffix         string
	replacement    string
	afterConsonant bool
}

const (
	DEFAULT_SUFFIX = ``
)

var (
	languagePluralRules = map[string][]pluralRule{
		"en": {
			{"fe", "ves", false},         // knife -> knives
			{"f", "ves", false},          // wolf -> wolves
			{"is", "es", false},          // analysis -> analyses
			{"on", "a", false},           // phenomenon -> phenomena
			{"y", "ies", true},           // baby -> babies (handled with consonant condition)
			{"o", "oes", false},          // hero -> heroes
			{"sh", "shes", false},        // dish -> dishes
			{"ch", "ches", false},        // watch -> watches
			{"x", "xes", false},          // box -> boxes
			{"s", "ses", false},          // bus -> buses
			{DEFAULT_SUFFIX, "s", false}, // default to add to end if nothing else matches.
		},
	}

	// Checked in order, so longer suffixes must come first.
	languageSingularRules = map[string][]pluralRule{
		"en": {
			{"ies", "y", false},     // babies -> baby
			{"ves", "f", false},     // wolves -> wolf, knives -> knife (see singularVes)
			{"yses", "ysis", false}, // analyses -> analysis
			{"oes", "o", false},     // heroes -> hero
			{"shes", "sh", false},   // dishes -> dish
			{"ches", "ch", false},   // watches -> watch
			{"xes", "x", false},     // boxes -> box
			{"ses", "s", false},     // buses -> bus
			{"s", "", false},        // cats -> cat
		},
	}
)

// isConsonant checks if a letter is a consonant
func isConsonant(ch byte) bool {
	return !strings.ContainsRune("aeiouAEIOU", rune(ch))
}

func Pluralize(word string, language ...string) string {

	lang := `en`
	if len(language) > 0 && language[0] != `` {
		lang = language[0]
	}

	pluralReplacements, ok := languagePluralRules[lang]
	if !ok {
		return word
	}

	wordLen := len(word)

	defaultSuffix := ``

	for _, rule := range pluralReplacements {
		// empty suffix is
		if rule.suffix == DEFAULT_SUFFIX {
			defaultSuffix = rule.replacement
			continue
		}
		// See if suffix matches
		if strings.HasSuffix(word, rule.suffix) {
			// Skip if requires the special consonant rule
			if rule.afterConsonant && (wordLen <= 1 || !isConsonant(word[wordLen-2])) {
				continue
			}

			return word[:wordLen-len(rule.suffix)] + rule.replacement
		}
	}

	return word + defaultSuffix
}

func Singularize(word string, language ...string) string {

	lang := `en`
	if len(language) > 0 && language[0] != `` {
		lang = language[0]
	}

	singularReplacements, ok := languageSingularRules[lang]
	if !ok {
		return word
	}

	wordLen := len(word)

	for _, rule := range singularReplacements {
		if !strings.HasSuffix(word, rule.suffix) || wordLen <= len(rule.suffix) {
			continue
		}

		stem := word[:wordLen-len(rule.suffix)]

		if rule.suffix == "ves" {
			return singularVes(stem)
		}

		return stem + rule.replacement
	}

	return word
}

// knives -> knife, lives -> life, but wolves -> wolf
func singularVes(stem string) string {
	if strings.HasSuffix(stem, "i") {
		return stem + "fe"
	}
	return stem + "f"
}

// ListNames joins names for display: "A", "A and B", "A, B and C"
func ListNames(names []string) string {
	switch len(names) {
	case 0:
		return ``
	case 1:
		return names[0]
	case 2:
		return names[0] + ` and ` + names[1]
	}
	return strings.Join(names[:len(names)-1], `, `) + ` and ` + names[len(names)-1]
}
