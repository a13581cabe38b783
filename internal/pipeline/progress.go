package pipeline

// Progress milestones for the job state machine. The values are fixed points
// on a 0..100 scale; what matters to observers is that progress only moves
// forward and that phase boundaries stay ordered.
const (
	ProgressResearching      = 5
	ProgressResearchComplete = 20
	ProgressGenerating       = 25
	ProgressGenerationCap    = 95
	ProgressDone             = 100
)

// GenerationProgress maps completed Phase B items onto the 25..95 band.
// Completed counts both OK and FAILED items; the job only reaches 100 at
// terminal-state transition.
func GenerationProgress(completed, total int) int {
	if total <= 0 {
		return ProgressGenerating
	}
	p := ProgressGenerating + (70*completed)/total
	if p > ProgressGenerationCap {
		p = ProgressGenerationCap
	}
	return p
}
