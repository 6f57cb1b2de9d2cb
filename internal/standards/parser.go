package standards

import "strings"

// ExampleInput is shown to teachers as a template for the import textarea.
const ExampleInput = `# Domain: MS-ESS2 - Earth's Systems

MS-ESS2-1: Develop a model to describe the cycling of Earth's materials and the flow of energy that drives this process.
MS-ESS2-2: Construct an explanation based on evidence for how geoscience processes have changed Earth's surface at varying time and spatial scales.
MS-ESS2-3: Analyze and interpret data on the distribution of fossils and rocks, continental shapes, and seafloor structures to provide evidence of the past plate motions.

# Domain: MS-ESS3 - Earth and Human Activity

MS-ESS3-1: Construct a scientific explanation based on evidence for how the uneven distributions of Earth's mineral, energy, and groundwater resources are the result of past and current geoscience processes.
MS-ESS3-2: Analyze and interpret data on natural hazards to forecast future catastrophic events and inform the development of technologies to mitigate their effects.
`

// parseState is the accumulator folded over the input lines.
type parseState struct {
	tree    Tree
	current *Domain
}

func (s *parseState) flush() {
	if s.current != nil && len(s.current.Standards) > 0 {
		s.tree = append(s.tree, *s.current)
	}
	s.current = nil
}

func (s *parseState) step(line Line) {
	switch line.Kind {
	case LineDomainHeader:
		s.flush()
		s.current = &Domain{Code: line.Code, Name: line.Text}
	case LineStandardEntry:
		if s.current == nil {
			code := SyntheticDomainCode(line.Code)
			s.current = &Domain{Code: code, Name: code}
		}
		s.current.Standards = append(s.current.Standards, NewStandard(line.Code, line.Text))
	}
}

// Parse turns free-form standards text into domains. Domains keep source
// order, as do the standards inside them. Domains without standards are
// dropped; an empty result means nothing in raw was recognised.
func Parse(raw string) Tree {
	var st parseState
	for _, line := range strings.Split(raw, "\n") {
		st.step(ClassifyLine(line))
	}
	st.flush()
	return st.tree
}
