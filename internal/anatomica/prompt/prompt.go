// Package prompt maps taxonomy sections to the fixed natural-language query
// templates sent to the generation service.
//
// The set of supported sections is closed: each template spells out the
// structure expected of the generated description for that kind of anatomy.
// A section label outside the set maps to SectionUnknown, which has no
// template — callers must treat it as a failed request rather than invent a
// generic query.
package prompt

import "fmt"

// Section identifies a supported top-level taxonomy section.
type Section int

const (
	SectionUnknown Section = iota
	SectionOsteologie
	SectionArthrologie
	SectionMyologie
	SectionVascularisation
	SectionLymphatiques
	SectionInnervation
)

// String returns the canonical section label.
func (s Section) String() string {
	switch s {
	case SectionOsteologie:
		return "Osteologie"
	case SectionArthrologie:
		return "Arthrologie"
	case SectionMyologie:
		return "Myologie"
	case SectionVascularisation:
		return "Vascularisation"
	case SectionLymphatiques:
		return "Lymphatiques"
	case SectionInnervation:
		return "Innervation"
	default:
		return "Unknown"
	}
}

// FromLabel maps a taxonomy section label to its Section, or SectionUnknown
// for labels outside the supported set.
func FromLabel(label string) Section {
	switch label {
	case "Osteologie":
		return SectionOsteologie
	case "Arthrologie":
		return SectionArthrologie
	case "Myologie":
		return SectionMyologie
	case "Vascularisation":
		return SectionVascularisation
	case "Lymphatiques":
		return SectionLymphatiques
	case "Innervation":
		return SectionInnervation
	default:
		return SectionUnknown
	}
}

// templates holds one fixed French query per supported section. The %s verb
// receives the leaf item's display name.
var templates = map[Section]string{
	SectionOsteologie:      "Donner une Definition, une Description, une Orientation, une Situation, et des Repères palpables de : %s.",
	SectionArthrologie:     "Donner Type d'articulation, Surfaces articulaires, Moyens d'union, Muscles moteurs, Mouvement de l'articulation : %s.",
	SectionMyologie:        "Décrire l'origine, trajet, terminaison, action et l'innervation du muscle : %s.",
	SectionVascularisation: "Donner la vascularisation, l'origine et les branches principales de : %s.",
	SectionLymphatiques:    "Décrire la distribution et les structures cibles du système lymphatique de : %s.",
	SectionInnervation:     "Donner les nerfs principaux, les branches et les cibles d'innervation de : %s.",
}

// For builds the generation query for a section and item name. The second
// return value is false when the section has no template (SectionUnknown).
func For(s Section, itemName string) (string, bool) {
	tmpl, ok := templates[s]
	if !ok {
		return "", false
	}
	return fmt.Sprintf(tmpl, itemName), true
}
