package stepfunctions

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	sfncore "github.com/nimbuslocal/nimbus/internal/core/stepfunctions"
)

const namespace = "com.amazonaws.swf.service.v20160711"

type Handler struct {
	service *sfncore.Service
}

func NewHandler(service *sfncore.Service) *Handler {
	return &Handler{service: service}
}

func executionBody(execution *sfncore.Execution) map[string]any {
	body := map[string]any{
		"executionArn":    execution.ARN,
		"name":            execution.Name,
		"stateMachineArn": execution.StateMachineARN,
		"status":          execution.Status,
		"startDate":       execution.StartedAt,
		"input":           execution.Input,
	}
	if execution.Output != "" {
		body["output"] = execution.Output
	}
	if execution.StoppedAt != nil {
		body["stopDate"] = *execution.StoppedAt
	}
	return body
}

// Dispatch routes a JSON-protocol action to the workflow engine.
func (h *Handler) Dispatch(action string, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Definition      string `json:"definition"`
		RoleArn         string `json:"roleArn"`
		Type            string `json:"type"`
		StateMachineArn string `json:"stateMachineArn"`
		ExecutionArn    string `json:"executionArn"`
		Input           string `json:"input"`
		Output          string `json:"output"`
		Error           string `json:"error"`
		Cause           string `json:"cause"`
		StatusFilter    string `json:"statusFilter"`
		TaskToken       string `json:"taskToken"`
		ResourceArn     string `json:"resourceArn"`
		Tags            []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"tags"`
		TagKeys []string `json:"tagKeys"`
	}
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondJSONError(w, namespace, err)
		return
	}

	tags := make(map[string]string, len(req.Tags))
	for _, t := range req.Tags {
		tags[t.Key] = t.Value
	}

	var out any
	var err error

	switch action {
	case "CreateStateMachine":
		var machineARN string
		var creationDate float64
		machineARN, creationDate, err = h.service.CreateStateMachine(req.Name, req.Definition, req.RoleArn, req.Type, tags)
		if err == nil {
			out = map[string]any{"stateMachineArn": machineARN, "creationDate": creationDate}
		}
	case "DeleteStateMachine":
		err = h.service.DeleteStateMachine(req.StateMachineArn)
	case "DescribeStateMachine":
		var machine *sfncore.StateMachine
		machine, err = h.service.DescribeStateMachine(req.StateMachineArn)
		if err == nil {
			out = map[string]any{
				"stateMachineArn": machine.ARN,
				"name":            machine.Name,
				"definition":      machine.Definition,
				"roleArn":         machine.RoleARN,
				"type":            machine.Type,
				"creationDate":    machine.CreatedAt,
				"status":          "ACTIVE",
			}
		}
	case "ListStateMachines":
		machines := h.service.ListStateMachines()
		entries := make([]map[string]any, len(machines))
		for i, machine := range machines {
			entries[i] = map[string]any{
				"stateMachineArn": machine.ARN,
				"name":            machine.Name,
				"type":            machine.Type,
				"creationDate":    machine.CreatedAt,
			}
		}
		out = map[string]any{"stateMachines": entries}
	case "StartExecution":
		var execution *sfncore.Execution
		execution, err = h.service.StartExecution(req.StateMachineArn, req.Name, req.Input)
		if err == nil {
			out = map[string]any{"executionArn": execution.ARN, "startDate": execution.StartedAt}
		}
	case "StopExecution":
		var stopDate float64
		stopDate, err = h.service.StopExecution(req.ExecutionArn, req.Error, req.Cause)
		if err == nil {
			out = map[string]any{"stopDate": stopDate}
		}
	case "DescribeExecution":
		var execution *sfncore.Execution
		execution, err = h.service.DescribeExecution(req.ExecutionArn)
		if err == nil {
			out = executionBody(execution)
		}
	case "ListExecutions":
		var executions []*sfncore.Execution
		executions, err = h.service.ListExecutions(req.StateMachineArn, req.StatusFilter)
		if err == nil {
			entries := make([]map[string]any, len(executions))
			for i, execution := range executions {
				entries[i] = executionBody(execution)
			}
			out = map[string]any{"executions": entries}
		}
	case "GetExecutionHistory":
		var history []sfncore.HistoryEvent
		history, err = h.service.GetExecutionHistory(req.ExecutionArn)
		if err == nil {
			out = map[string]any{"events": history}
		}
	case "SendTaskSuccess":
		err = h.service.SendTaskSuccess(req.TaskToken, req.Output)
	case "SendTaskFailure":
		err = h.service.SendTaskFailure(req.TaskToken, req.Error, req.Cause)
	case "SendTaskHeartbeat":
		err = h.service.SendTaskHeartbeat(req.TaskToken)
	case "TagResource":
		err = h.service.TagResource(req.ResourceArn, tags)
	case "UntagResource":
		err = h.service.UntagResource(req.ResourceArn, req.TagKeys)
	case "ListTagsForResource":
		var machineTags map[string]string
		machineTags, err = h.service.ListTagsForResource(req.ResourceArn)
		if err == nil {
			pairs := make([]map[string]string, 0, len(machineTags))
			for k, v := range machineTags {
				pairs = append(pairs, map[string]string{"key": k, "value": v})
			}
			out = map[string]any{"tags": pairs}
		}
	default:
		err = awserr.New("InvalidAction", http.StatusBadRequest, "The action "+action+" is not valid for this endpoint.")
	}

	if err != nil {
		common.RespondJSONError(w, namespace, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, out)
}
