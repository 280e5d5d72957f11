package twotier

// PhaseKind discriminates the three phases a search can emit.
type PhaseKind int

const (
	PhaseInitial PhaseKind = iota
	PhaseRefined
	PhaseRefinementFailed
)

func (k PhaseKind) String() string {
	switch k {
	case PhaseInitial:
		return "initial"
	case PhaseRefined:
		return "refined"
	case PhaseRefinementFailed:
		return "refinement_failed"
	default:
		return "unknown"
	}
}

// Result is one scored candidate within a phase.
type Result struct {
	ID           DocID
	Score        float64
	FastScore    float64
	QualityScore float64
	HasQuality   bool
}

// Phase is one element of the lazy sequence a search emits: either the
// fast-tier Initial result set, a quality-refined resort of it, or a
// RefinementFailed notice carrying the reason the quality tier could not
// run (the caller keeps the Initial results in that case).
type Phase struct {
	Kind      PhaseKind
	Results   []Result
	LatencyMs int64
	Err       error
}
