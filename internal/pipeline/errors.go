package pipeline

import (
	"errors"
	"fmt"

	"github.com/jerilmartin/infini8seo-sub000/internal/jsonextract"
	"github.com/jerilmartin/infini8seo-sub000/internal/services/llm"
)

// ResearchErrorKind classifies a terminal research-phase failure
type ResearchErrorKind string

const (
	ResearchErrPromptBlocked   ResearchErrorKind = "PROMPT_BLOCKED"
	ResearchErrEmptyResponse   ResearchErrorKind = "EMPTY_RESPONSE"
	ResearchErrUnparseableJSON ResearchErrorKind = "UNPARSEABLE_JSON"
	ResearchErrUnderfilled     ResearchErrorKind = "UNDERFILLED"
	ResearchErrRateLimited     ResearchErrorKind = "RATE_LIMITED"
)

// ResearchError is a terminal Phase A failure. It fails the whole job.
type ResearchError struct {
	Kind    ResearchErrorKind
	Message string
	Err     error
}

func (e *ResearchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("research failed (%s): %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("research failed (%s): %s", e.Kind, e.Message)
}

func (e *ResearchError) Unwrap() error {
	return e.Err
}

// classifyResearchError maps an arbitrary call failure onto a research error
// kind for the terminal report.
func classifyResearchError(err error) ResearchErrorKind {
	var rerr *ResearchError
	if errors.As(err, &rerr) {
		return rerr.Kind
	}

	var unparseable *jsonextract.UnparseableError
	if errors.As(err, &unparseable) {
		return ResearchErrUnparseableJSON
	}

	switch llm.KindOf(err) {
	case llm.ErrKindBlocked:
		return ResearchErrPromptBlocked
	case llm.ErrKindEmpty:
		return ResearchErrEmptyResponse
	case llm.ErrKindRateLimited:
		return ResearchErrRateLimited
	default:
		return ResearchErrEmptyResponse
	}
}
