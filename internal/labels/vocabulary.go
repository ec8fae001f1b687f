package labels

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"vdiff/internal/services"
)

// Vocabulary is the immutable set of label ids a detector may emit plus the
// error-class subset.
type Vocabulary struct {
	ids        []string
	known      Set
	errorClass Set
	names      map[language.Tag]map[string]string
	matcher    language.Matcher
	tags       []language.Tag
}

// NewVocabulary validates ids and errorClass. Every error-class id must be in
// the vocabulary.
func NewVocabulary(ids, errorClass []string) (*Vocabulary, error) {
	if len(ids) == 0 {
		return nil, services.NewConfigError("labels.vocabulary", "must include at least one label")
	}
	known := make(Set, len(ids))
	ordered := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			return nil, services.NewConfigError("labels.vocabulary", "contains an empty label id")
		}
		if known.Has(id) {
			continue
		}
		known.Add(id)
		ordered = append(ordered, id)
	}
	errSet := make(Set, len(errorClass))
	for _, id := range errorClass {
		id = strings.TrimSpace(id)
		if !known.Has(id) {
			return nil, services.NewConfigError("labels.error_class", "references %q which is not in the vocabulary", id)
		}
		errSet.Add(id)
	}
	return &Vocabulary{ids: ordered, known: known, errorClass: errSet}, nil
}

// WithDisplayNames attaches localized display names keyed by BCP 47 tag and
// label id. Unknown tags are rejected.
func (v *Vocabulary) WithDisplayNames(table map[string]map[string]string) (*Vocabulary, error) {
	clone := *v
	clone.names = make(map[language.Tag]map[string]string, len(table))
	clone.tags = nil
	keys := make([]string, 0, len(table))
	for key := range table {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	for _, key := range keys {
		tag, err := language.Parse(key)
		if err != nil {
			return nil, services.NewConfigError("labels.display_names", "has invalid locale %q", key)
		}
		names := make(map[string]string, len(table[key]))
		for id, name := range table[key] {
			names[id] = name
		}
		clone.names[tag] = names
		clone.tags = append(clone.tags, tag)
	}
	if len(clone.tags) > 0 {
		clone.matcher = language.NewMatcher(clone.tags)
	} else {
		clone.matcher = nil
	}
	return &clone, nil
}

// IDs returns the vocabulary in declaration order.
func (v *Vocabulary) IDs() []string {
	return slices.Clone(v.ids)
}

// Known reports whether id belongs to the vocabulary.
func (v *Vocabulary) Known(id string) bool {
	return v.known.Has(id)
}

// IsErrorClass reports whether id is an error-class label.
func (v *Vocabulary) IsErrorClass(id string) bool {
	return v.errorClass.Has(id)
}

// ErrorClass returns a copy of the error-class subset.
func (v *Vocabulary) ErrorClass() Set {
	return v.errorClass.Clone()
}

// ErrorSubset returns the error-class members of set.
func (v *Vocabulary) ErrorSubset(set Set) Set {
	return set.Intersect(v.errorClass)
}

// Localizer resolves display names for one locale.
type Localizer struct {
	names map[string]string
	title cases.Caser
}

// Localizer picks the closest configured display-name table for locale,
// falling back to the first configured table. Ids without a configured name
// are title-cased.
func (v *Vocabulary) Localizer(locale string) Localizer {
	tag, err := language.Parse(strings.TrimSpace(locale))
	if err != nil {
		tag = language.Und
	}
	loc := Localizer{title: cases.Title(tag)}
	if v.matcher == nil {
		return loc
	}
	_, idx, _ := v.matcher.Match(tag)
	loc.names = v.names[v.tags[idx]]
	return loc
}

// Name returns the display name for id.
func (l Localizer) Name(id string) string {
	if name, ok := l.names[id]; ok && strings.TrimSpace(name) != "" {
		return name
	}
	return l.title.String(id)
}

// Join renders set as display names joined with ", " in vocabulary order.
func (l Localizer) Join(v *Vocabulary, set Set) string {
	if set.Empty() {
		return ""
	}
	names := make([]string, 0, set.Len())
	seen := make(Set, set.Len())
	for _, id := range v.ids {
		if set.Has(id) {
			names = append(names, l.Name(id))
			seen.Add(id)
		}
	}
	for _, id := range set.Sorted() {
		if !seen.Has(id) {
			names = append(names, l.Name(id))
		}
	}
	return strings.Join(names, ", ")
}
