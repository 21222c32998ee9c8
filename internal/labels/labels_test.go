package labels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"

	"github.com/hivdr-report/internal/domain"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		input    string
		expected language.Tag
	}{
		{"", language.Hungarian},
		{"hu", language.Hungarian},
		{"hu-HU", language.Hungarian},
		{"en", language.English},
		{"en-US", language.English},
		{"de", language.Hungarian},
		{"not a tag!", language.Hungarian},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, Match(tt.input))
		})
	}
}

func TestTranslator_KnownTokensAreReplaced(t *testing.T) {
	hu := NewTranslator("hu")

	assert.Equal(t, "PI elsődleges mutációk:", hu.Label("PRMajor"))
	assert.Equal(t, "NRTI mutációk", hu.Label("NRTI"))
	assert.Equal(t, "Gyógyszercsoport", hu.Label(domain.DrugClassNameLabel))
	assert.Equal(t, "nem rezisztens", hu.Value("Susceptible"))
	assert.Equal(t, "magas fokú rezisztencia", hu.Value("High-Level Resistance"))
	assert.Equal(t, "Nem nukleozid reverz transzkriptáz inhibitorok (NNRTI)", hu.Value("NNRTI"))
	assert.Equal(t, "Nukleozid reverz transzkriptáz inhibitorok (NRTI)", hu.Value("NRTI"))
	assert.Equal(t, "nincs megjegyzés", hu.Value(domain.NoComments))

	en := NewTranslator("en")
	assert.Equal(t, "PI major mutations:", en.Label("PRMajor"))
	assert.Equal(t, "Susceptible", en.Value("Susceptible"))
	assert.Equal(t, "Comments", en.Label(domain.CommentsLabel))
}

func TestTranslator_UnknownTokensPassThrough(t *testing.T) {
	for _, lang := range []string{"hu", "en"} {
		tr := NewTranslator(lang)

		assert.Equal(t, "lamivudine (3TC)", tr.Label("lamivudine (3TC)"))
		assert.Equal(t, "CAMajor", tr.Label("CAMajor"))
		assert.Equal(t, "M184V, K65R", tr.Value("M184V, K65R"))
		assert.Equal(t, "", tr.Value(""))
	}
}

func TestTranslator_Idempotent(t *testing.T) {
	tokens := []string{
		domain.DrugClassNameLabel, domain.CommentsLabel, "PRMajor", "INAccessory", "NRTI", "NNRTI",
		"Other", "PI", "INSTI", "Susceptible", "Low-Level Resistance", "Intermediate Resistance",
		"High-Level Resistance", domain.NoComments, domain.NoMutations, domain.OtherRTClassName,
		"dolutegravir (DTG)",
	}

	for _, lang := range []string{"hu", "en"} {
		tr := NewTranslator(lang)
		for _, token := range tokens {
			once := tr.Label(token)
			assert.Equal(t, once, tr.Label(once), "label %q in %s", token, lang)

			once = tr.Value(token)
			assert.Equal(t, once, tr.Value(once), "value %q in %s", token, lang)
		}
	}
}

func TestTranslator_Captions(t *testing.T) {
	assert.Equal(t, "Megnevezés", NewTranslator("hu").Caption(KeyCaptionName))
	assert.Equal(t, "Result", NewTranslator("en").Caption(KeyCaptionResult))
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported(""))
	assert.True(t, IsSupported("hu"))
	assert.True(t, IsSupported("en-GB"))
	assert.False(t, IsSupported("de"))
	assert.False(t, IsSupported("not a tag!"))
}
