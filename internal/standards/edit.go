package standards

import (
	"errors"
	"fmt"
	"strings"

	"github.com/DeafMist/standards-desk/backend/internal/validation"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrDuplicateCode = errors.New("code already exists")
)

// DomainInput is the add/edit domain form.
type DomainInput struct {
	Code string `json:"code" validate:"required,stdcode"`
	Name string `json:"name" validate:"required"`
}

// StandardInput is the add/edit standard form.
type StandardInput struct {
	Code        string `json:"code" validate:"required,stdcode"`
	Description string `json:"description" validate:"required"`
}

func (in *DomainInput) clean() {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
}

func (in *StandardInput) clean() {
	in.Code = strings.TrimSpace(in.Code)
	in.Description = strings.TrimSpace(in.Description)
}

// AddDomain appends an empty domain.
func (t *Tree) AddDomain(in DomainInput) error {
	in.clean()
	if err := validation.Struct(in); err != nil {
		return err
	}
	if t.domainIndex(in.Code) >= 0 {
		return fmt.Errorf("domain %s: %w", in.Code, ErrDuplicateCode)
	}
	*t = append(*t, Domain{Code: in.Code, Name: in.Name, Standards: []Standard{}})
	return nil
}

// UpdateDomain changes the code and name of the domain identified by code.
func (t *Tree) UpdateDomain(code string, in DomainInput) error {
	in.clean()
	if err := validation.Struct(in); err != nil {
		return err
	}
	i := t.domainIndex(code)
	if i < 0 {
		return fmt.Errorf("domain %s: %w", code, ErrNotFound)
	}
	if in.Code != code && t.domainIndex(in.Code) >= 0 {
		return fmt.Errorf("domain %s: %w", in.Code, ErrDuplicateCode)
	}
	(*t)[i].Code = in.Code
	(*t)[i].Name = in.Name
	return nil
}

// DeleteDomain removes the domain and every standard in it.
func (t *Tree) DeleteDomain(code string) error {
	i := t.domainIndex(code)
	if i < 0 {
		return fmt.Errorf("domain %s: %w", code, ErrNotFound)
	}
	*t = append((*t)[:i], (*t)[i+1:]...)
	return nil
}

// AddStandard appends a standard to a domain. extract may be nil.
func (t *Tree) AddStandard(domainCode string, in StandardInput, extract KeywordFunc) (Standard, error) {
	in.clean()
	if err := validation.Struct(in); err != nil {
		return Standard{}, err
	}
	d, ok := t.Domain(domainCode)
	if !ok {
		return Standard{}, fmt.Errorf("domain %s: %w", domainCode, ErrNotFound)
	}
	if d.standardIndex(in.Code) >= 0 {
		return Standard{}, fmt.Errorf("standard %s: %w", in.Code, ErrDuplicateCode)
	}

	s := buildStandard(in, extract)
	d.Standards = append(d.Standards, s)
	return s, nil
}

// UpdateStandard replaces the standard identified by code. Keywords and
// validity are recomputed from the new description.
func (t *Tree) UpdateStandard(domainCode, code string, in StandardInput, extract KeywordFunc) (Standard, error) {
	in.clean()
	if err := validation.Struct(in); err != nil {
		return Standard{}, err
	}
	d, ok := t.Domain(domainCode)
	if !ok {
		return Standard{}, fmt.Errorf("domain %s: %w", domainCode, ErrNotFound)
	}
	i := d.standardIndex(code)
	if i < 0 {
		return Standard{}, fmt.Errorf("standard %s: %w", code, ErrNotFound)
	}
	if in.Code != code && d.standardIndex(in.Code) >= 0 {
		return Standard{}, fmt.Errorf("standard %s: %w", in.Code, ErrDuplicateCode)
	}

	s := buildStandard(in, extract)
	d.Standards[i] = s
	return s, nil
}

// DeleteStandard removes a standard. The domain stays even when it ends up empty.
func (t *Tree) DeleteStandard(domainCode, code string) error {
	d, ok := t.Domain(domainCode)
	if !ok {
		return fmt.Errorf("domain %s: %w", domainCode, ErrNotFound)
	}
	i := d.standardIndex(code)
	if i < 0 {
		return fmt.Errorf("standard %s: %w", code, ErrNotFound)
	}
	d.Standards = append(d.Standards[:i], d.Standards[i+1:]...)
	return nil
}

func buildStandard(in StandardInput, extract KeywordFunc) Standard {
	s := NewStandard(in.Code, in.Description)
	if extract != nil {
		s.Keywords = extract(in.Description)
	}
	return s
}

// Normalize rebuilds a client-supplied tree the way the parser would have
// built it. Validity is recomputed from each description, stale keywords are
// cleared and domains without standards are dropped. A domain code repeated
// in the tree, or a standard code repeated within a domain, is rejected with
// ErrDuplicateCode.
func (t Tree) Normalize() (Tree, error) {
	out := make(Tree, 0, len(t))
	for _, d := range t {
		if len(d.Standards) == 0 {
			continue
		}
		if out.domainIndex(d.Code) >= 0 {
			return nil, fmt.Errorf("domain %s: %w", d.Code, ErrDuplicateCode)
		}

		nd := Domain{
			Code:      d.Code,
			Name:      strings.TrimSpace(d.Name),
			Standards: make([]Standard, 0, len(d.Standards)),
		}
		for _, s := range d.Standards {
			if nd.standardIndex(s.Code) >= 0 {
				return nil, fmt.Errorf("standard %s in domain %s: %w", s.Code, d.Code, ErrDuplicateCode)
			}
			nd.Standards = append(nd.Standards, NewStandard(s.Code, strings.TrimSpace(s.Description)))
		}
		out = append(out, nd)
	}
	return out, nil
}
