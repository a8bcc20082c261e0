package webhook

import (
	"encoding/json"
	"fmt"

	"github.com/bootyhq/booty/pkg/types"
)

// workflowRunPayload mirrors the fields of GitHub's workflow_run event the
// governor consumes.
type workflowRunPayload struct {
	Action      string `json:"action"`
	WorkflowRun struct {
		ID         int64  `json:"id"`
		Name       string `json:"name"`
		Path       string `json:"path"`
		HeadSHA    string `json:"head_sha"`
		HeadBranch string `json:"head_branch"`
		Conclusion string `json:"conclusion"`
	} `json:"workflow_run"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// ParseWorkflowRun normalizes a raw workflow_run payload into the typed
// event the pipeline consumes.
func ParseWorkflowRun(payload []byte, deliveryID string) (types.WorkflowRunEvent, error) {
	var raw workflowRunPayload
	if err := json.Unmarshal(payload, &raw); err != nil {
		return types.WorkflowRunEvent{}, fmt.Errorf("webhook: parse workflow_run payload: %w", err)
	}
	ev := types.WorkflowRunEvent{
		Action:       raw.Action,
		HeadSHA:      raw.WorkflowRun.HeadSHA,
		HeadBranch:   raw.WorkflowRun.HeadBranch,
		WorkflowName: raw.WorkflowRun.Name,
		WorkflowPath: raw.WorkflowRun.Path,
		Conclusion:   raw.WorkflowRun.Conclusion,
		RepoFullName: raw.Repository.FullName,
		RunID:        raw.WorkflowRun.ID,
		DeliveryID:   deliveryID,
	}
	if ev.RepoFullName == "" || ev.HeadSHA == "" {
		return types.WorkflowRunEvent{}, fmt.Errorf("webhook: workflow_run payload missing repository or head sha")
	}
	return ev, nil
}
