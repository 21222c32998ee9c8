// Package labels holds the bilingual (Hungarian/English) vocabulary of the
// resistance report. Tokens outside the vocabulary pass through unchanged.
package labels

import (
	"golang.org/x/text/language"

	"github.com/hivdr-report/internal/domain"
)

// Key identifies one entry of the report vocabulary
type Key int

const (
	KeyDrugClassName Key = iota
	KeyComments
	KeyPRMajor
	KeyPRAccessory
	KeyPROther
	KeyINMajor
	KeyINAccessory
	KeyINOther
	KeyNRTIMutations
	KeyNNRTIMutations
	KeyRTOtherMutations
	KeyClassPI
	KeyClassNRTI
	KeyClassNNRTI
	KeyClassINSTI
	KeyClassOtherRT
	KeySusceptible
	KeyPotentialLowLevel
	KeyLowLevel
	KeyIntermediate
	KeyHighLevel
	KeyNoMutations
	KeyNoComments
	KeyCaptionName
	KeyCaptionResult
	KeyCaptionQueriedAt
	KeyCaptionDatabase
	KeyCaptionSequence
	KeyCaptionSubtype
	KeyCaptionValidation
	KeyReportTitle
)

// Localization holds both renditions of a vocabulary entry
type Localization struct {
	Hungarian string
	English   string
}

// In returns the rendition for a supported language tag
func (l Localization) In(tag language.Tag) string {
	if tag == language.English {
		return l.English
	}
	return l.Hungarian
}

type entry struct {
	token string
	text  Localization
}

// firstColumn covers row labels (column A)
var firstColumn = map[Key]entry{
	KeyDrugClassName:    {domain.DrugClassNameLabel, Localization{"Gyógyszercsoport", "Drug Class Name"}},
	KeyComments:         {domain.CommentsLabel, Localization{"Megjegyzések", "Comments"}},
	KeyPRMajor:          {"PRMajor", Localization{"PI elsődleges mutációk:", "PI major mutations:"}},
	KeyPRAccessory:      {"PRAccessory", Localization{"PI másodlagos mutációk:", "PI accessory mutations:"}},
	KeyPROther:          {"PROther", Localization{"PI egyéb mutációk:", "PI other mutations:"}},
	KeyINMajor:          {"INMajor", Localization{"INI elsődleges mutációk:", "INSTI major mutations:"}},
	KeyINAccessory:      {"INAccessory", Localization{"INI másodlagos mutációk:", "INSTI accessory mutations:"}},
	KeyINOther:          {"INOther", Localization{"INI egyéb mutációk:", "INSTI other mutations:"}},
	KeyNRTIMutations:    {"NRTI", Localization{"NRTI mutációk", "NRTI mutations"}},
	KeyNNRTIMutations:   {"NNRTI", Localization{"NNRTI mutációk", "NNRTI mutations"}},
	KeyRTOtherMutations: {"Other", Localization{"Egyéb RT mutációk", "Other RT mutations"}},
}

// secondColumn covers class names and fixed-vocabulary values (column B)
var secondColumn = map[Key]entry{
	KeyClassPI:           {"PI", Localization{"Proteáz inhibitorok (PI)", "Protease inhibitors (PI)"}},
	KeyClassNRTI:         {"NRTI", Localization{"Nukleozid reverz transzkriptáz inhibitorok (NRTI)", "Nucleoside reverse transcriptase inhibitors (NRTI)"}},
	KeyClassNNRTI:        {"NNRTI", Localization{"Nem nukleozid reverz transzkriptáz inhibitorok (NNRTI)", "Non-nucleoside reverse transcriptase inhibitors (NNRTI)"}},
	KeyClassINSTI:        {"INSTI", Localization{"Integráz inhibitorok (INI)", "Integrase strand transfer inhibitors (INSTI)"}},
	KeyClassOtherRT:      {domain.OtherRTClassName, Localization{"Egyéb reverz transzkriptáz (RT) mutációk", domain.OtherRTClassName}},
	KeySusceptible:       {"Susceptible", Localization{"nem rezisztens", "Susceptible"}},
	KeyPotentialLowLevel: {"Potential Low-Level Resistance", Localization{"lehetséges alacsony fokú rezisztencia", "Potential Low-Level Resistance"}},
	KeyLowLevel:          {"Low-Level Resistance", Localization{"alacsony fokú rezisztencia", "Low-Level Resistance"}},
	KeyIntermediate:      {"Intermediate Resistance", Localization{"mérsékelt rezisztencia", "Intermediate Resistance"}},
	KeyHighLevel:         {"High-Level Resistance", Localization{"magas fokú rezisztencia", "High-Level Resistance"}},
	KeyNoMutations:       {domain.NoMutations, Localization{"nincs", "none"}},
	KeyNoComments:        {domain.NoComments, Localization{"nincs megjegyzés", "no comments"}},
}

// captions are fixed strings of the worksheet layout, never looked up by token
var captions = map[Key]Localization{
	KeyCaptionName:       {"Megnevezés", "Name"},
	KeyCaptionResult:     {"Eredmény", "Result"},
	KeyCaptionQueriedAt:  {"Lekérdezés időpontja", "Queried at"},
	KeyCaptionDatabase:   {"Adatbázis verzió", "Database version"},
	KeyCaptionSequence:   {"Szekvencia", "Sequence"},
	KeyCaptionSubtype:    {"Altípus", "Subtype"},
	KeyCaptionValidation: {"Minőségellenőrzés", "Sequence quality"},
	KeyReportTitle:       {"HIV-1 törzsek gyógyszerrezisztenciájának meghatározása genomikus szekvenálással", "Genotypic drug resistance of HIV-1 strains"},
}

var supported = []language.Tag{language.Hungarian, language.English}

var matcher = language.NewMatcher(supported)

// Translator renders vocabulary tokens in one language
type Translator struct {
	tag    language.Tag
	first  map[string]string
	second map[string]string
}

// NewTranslator creates a translator for the closest supported language.
// Unknown or empty tags fall back to Hungarian.
func NewTranslator(lang string) *Translator {
	tag := Match(lang)
	t := &Translator{
		tag:    tag,
		first:  make(map[string]string, len(firstColumn)),
		second: make(map[string]string, len(secondColumn)),
	}
	for _, e := range firstColumn {
		t.first[e.token] = e.text.In(tag)
	}
	for _, e := range secondColumn {
		t.second[e.token] = e.text.In(tag)
	}
	return t
}

// Match resolves a language name or BCP 47 tag to a supported language
func Match(lang string) language.Tag {
	if lang == "" {
		return language.Hungarian
	}
	requested, _, err := language.ParseAcceptLanguage(lang)
	if err != nil || len(requested) == 0 {
		return language.Hungarian
	}
	_, index, confidence := matcher.Match(requested...)
	if confidence == language.No {
		return language.Hungarian
	}
	return supported[index]
}

// IsSupported reports whether lang resolves to a supported language. The
// empty string selects the default and is supported.
func IsSupported(lang string) bool {
	if lang == "" {
		return true
	}
	requested, _, err := language.ParseAcceptLanguage(lang)
	if err != nil || len(requested) == 0 {
		return false
	}
	_, _, confidence := matcher.Match(requested...)
	return confidence != language.No
}

// Language returns the translator's language
func (t *Translator) Language() language.Tag {
	return t.tag
}

// Label translates a first-column token
func (t *Translator) Label(token string) string {
	if s, ok := t.first[token]; ok {
		return s
	}
	return token
}

// Value translates a second-column token
func (t *Translator) Value(token string) string {
	if s, ok := t.second[token]; ok {
		return s
	}
	return token
}

// Caption returns a fixed worksheet caption
func (t *Translator) Caption(key Key) string {
	return captions[key].In(t.tag)
}
