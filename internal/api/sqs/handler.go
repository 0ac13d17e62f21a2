package sqs

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	sqscore "github.com/nimbuslocal/nimbus/internal/core/sqs"
)

const namespace = "com.amazonaws.sqs"

type Handler struct {
	registry *sqscore.Registry
}

func NewHandler(registry *sqscore.Registry) *Handler {
	return &Handler{registry: registry}
}

// Dispatch routes a JSON-protocol action to the queue registry.
func (h *Handler) Dispatch(action string, w http.ResponseWriter, r *http.Request) {
	var out any
	var err error

	switch action {
	case "CreateQueue":
		var in sqscore.CreateQueueInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.CreateQueue(&in)
		}
	case "DeleteQueue":
		var in sqscore.DeleteQueueInput
		if err = common.DecodeJSON(r, &in); err == nil {
			err = h.registry.DeleteQueue(&in)
		}
	case "GetQueueUrl":
		var in sqscore.GetQueueUrlInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.GetQueueUrl(&in)
		}
	case "ListQueues":
		var in sqscore.ListQueuesInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.ListQueues(&in)
		}
	case "GetQueueAttributes":
		var in sqscore.GetQueueAttributesInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.GetQueueAttributes(&in)
		}
	case "SetQueueAttributes":
		var in sqscore.SetQueueAttributesInput
		if err = common.DecodeJSON(r, &in); err == nil {
			err = h.registry.SetQueueAttributes(&in)
		}
	case "PurgeQueue":
		var in sqscore.PurgeQueueInput
		if err = common.DecodeJSON(r, &in); err == nil {
			err = h.registry.PurgeQueue(&in)
		}
	case "SendMessage":
		var in sqscore.SendMessageInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.SendMessage(&in)
		}
	case "SendMessageBatch":
		var in sqscore.SendMessageBatchInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.SendMessageBatch(&in)
		}
	case "ReceiveMessage":
		var in sqscore.ReceiveMessageInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.ReceiveMessage(r.Context(), &in)
		}
	case "DeleteMessage":
		var in sqscore.DeleteMessageInput
		if err = common.DecodeJSON(r, &in); err == nil {
			err = h.registry.DeleteMessage(&in)
		}
	case "DeleteMessageBatch":
		var in sqscore.DeleteMessageBatchInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.DeleteMessageBatch(&in)
		}
	case "ChangeMessageVisibility":
		var in sqscore.ChangeMessageVisibilityInput
		if err = common.DecodeJSON(r, &in); err == nil {
			err = h.registry.ChangeMessageVisibility(&in)
		}
	case "ChangeMessageVisibilityBatch":
		var in sqscore.ChangeMessageVisibilityBatchInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.ChangeMessageVisibilityBatch(&in)
		}
	case "TagQueue":
		var in sqscore.TagQueueInput
		if err = common.DecodeJSON(r, &in); err == nil {
			err = h.registry.TagQueue(&in)
		}
	case "UntagQueue":
		var in sqscore.UntagQueueInput
		if err = common.DecodeJSON(r, &in); err == nil {
			err = h.registry.UntagQueue(&in)
		}
	case "ListQueueTags":
		var in sqscore.ListQueueTagsInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.ListQueueTags(&in)
		}
	case "AddPermission":
		var in sqscore.AddPermissionInput
		if err = common.DecodeJSON(r, &in); err == nil {
			err = h.registry.AddPermission(&in)
		}
	case "RemovePermission":
		var in sqscore.RemovePermissionInput
		if err = common.DecodeJSON(r, &in); err == nil {
			err = h.registry.RemovePermission(&in)
		}
	case "ListDeadLetterSourceQueues":
		var in sqscore.ListDeadLetterSourceQueuesInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.ListDeadLetterSourceQueues(&in)
		}
	case "StartMessageMoveTask":
		var in sqscore.StartMessageMoveTaskInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.StartMessageMoveTask(&in)
		}
	case "CancelMessageMoveTask":
		var in sqscore.CancelMessageMoveTaskInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.CancelMessageMoveTask(&in)
		}
	case "ListMessageMoveTasks":
		var in sqscore.ListMessageMoveTasksInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.registry.ListMessageMoveTasks(&in)
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
