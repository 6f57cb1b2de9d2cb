package standards

import "unicode/utf8"

// MinDescriptionLength is the length a description must exceed before a
// parsed standard is considered ready to import without review.
const MinDescriptionLength = 10

// Standard is a single teaching objective.
type Standard struct {
	Code        string   `json:"code" validate:"required,stdcode"`
	Description string   `json:"description" validate:"required"`
	Keywords    []string `json:"keywords,omitempty"`
	Valid       bool     `json:"valid"`
}

// Domain groups related standards under a short code such as MS-ESS2.
type Domain struct {
	Code      string     `json:"code" validate:"required,stdcode"`
	Name      string     `json:"name" validate:"required"`
	Standards []Standard `json:"standards" validate:"dive"`
}

// Tree is an ordered collection of domains.
type Tree []Domain

// KeywordFunc annotates a description with search keywords.
type KeywordFunc func(description string) []string

// NewStandard builds a standard and flags short descriptions for review.
func NewStandard(code, description string) Standard {
	return Standard{
		Code:        code,
		Description: description,
		Valid:       IsValidDescription(description),
	}
}

// IsValidDescription reports whether description is long enough.
func IsValidDescription(description string) bool {
	return utf8.RuneCountInString(description) > MinDescriptionLength
}

func (t Tree) DomainCount() int { return len(t) }

func (t Tree) StandardCount() int {
	n := 0
	for _, d := range t {
		n += len(d.Standards)
	}
	return n
}

// InvalidCount is the number of standards that need review.
func (t Tree) InvalidCount() int {
	n := 0
	for _, d := range t {
		for _, s := range d.Standards {
			if !s.Valid {
				n++
			}
		}
	}
	return n
}

func (t Tree) Empty() bool { return len(t) == 0 }

// Clone returns a deep copy of t.
func (t Tree) Clone() Tree {
	if t == nil {
		return nil
	}
	out := make(Tree, len(t))
	for i, d := range t {
		out[i] = Domain{Code: d.Code, Name: d.Name, Standards: make([]Standard, len(d.Standards))}
		for j, s := range d.Standards {
			s.Keywords = append([]string(nil), s.Keywords...)
			out[i].Standards[j] = s
		}
	}
	return out
}

// WithKeywords returns a copy of t with keywords extracted once per standard.
func (t Tree) WithKeywords(extract KeywordFunc) Tree {
	out := t.Clone()
	for i := range out {
		for j := range out[i].Standards {
			out[i].Standards[j].Keywords = extract(out[i].Standards[j].Description)
		}
	}
	return out
}

// Domain returns the domain with the given code.
func (t Tree) Domain(code string) (*Domain, bool) {
	i := t.domainIndex(code)
	if i < 0 {
		return nil, false
	}
	return &t[i], true
}

func (t Tree) domainIndex(code string) int {
	for i := range t {
		if t[i].Code == code {
			return i
		}
	}
	return -1
}

func (d *Domain) standardIndex(code string) int {
	for i := range d.Standards {
		if d.Standards[i].Code == code {
			return i
		}
	}
	return -1
}
