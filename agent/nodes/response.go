package nodes

import (
	"fmt"

	contractx "github.com/eduverse/agent-core/agent/contract"
	pipelinex "github.com/eduverse/agent-core/agent/pipeline"
)

// BuildResponse maps a pipeline result to the caller-visible response shape.
// Only an aborted run becomes an error; degraded runs return content plus the
// reduced-capability list.
func BuildResponse(res pipelinex.Result, contentStage string) (contractx.AgentResponse, error) {
	if res.Status == pipelinex.StatusAborted {
		if res.Err != nil {
			return contractx.AgentResponse{}, fmt.Errorf("%w: %v", contractx.ErrPipelineAborted, res.Err)
		}
		return contractx.AgentResponse{}, contractx.ErrPipelineAborted
	}

	content, _ := res.Value(contentStage)
	return contractx.AgentResponse{
		RunID:          res.RunID,
		Status:         string(res.Status),
		Content:        content,
		DegradedFields: res.DegradedFields,
		RecordID:       PersistValueOf(res).RecordID,
	}, nil
}
