/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package vocab

import "sort"

// LangString is a natural-language string with optional per-language values,
// as expressed by the paired ActivityStreams properties such as 'name' and
// 'nameMap'.
type LangString struct {
	value  string
	byLang map[string]string
}

// NewLangString returns a LangString with a language-independent value.
func NewLangString(value string) *LangString {
	return &LangString{value: value}
}

// NewLangStringMap returns a LangString with per-language values.
func NewLangStringMap(values map[string]string) *LangString {
	return &LangString{byLang: values}
}

func newLangString(value string, values map[string]string) *LangString {
	if value == "" && len(values) == 0 {
		return nil
	}

	return &LangString{value: value, byLang: values}
}

// String returns the language-independent value. If only per-language values
// exist then the value for the first language (in lexical order) is returned.
func (s *LangString) String() string {
	if s == nil {
		return ""
	}

	if s.value != "" {
		return s.value
	}

	langs := s.Languages()

	if len(langs) == 0 {
		return ""
	}

	return s.byLang[langs[0]]
}

// Get returns the value for the given language tag, or an empty string if no
// value exists for that language.
func (s *LangString) Get(lang string) string {
	if s == nil {
		return ""
	}

	return s.byLang[lang]
}

// Languages returns the language tags for which values exist, in lexical order.
func (s *LangString) Languages() []string {
	if s == nil || len(s.byLang) == 0 {
		return nil
	}

	langs := make([]string, 0, len(s.byLang))

	for lang := range s.byLang {
		langs = append(langs, lang)
	}

	sort.Strings(langs)

	return langs
}

// Map returns the per-language values.
func (s *LangString) Map() map[string]string {
	if s == nil {
		return nil
	}

	return s.byLang
}
