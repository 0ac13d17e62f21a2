package dynamodb

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	ddbcore "github.com/nimbuslocal/nimbus/internal/core/dynamodb"
)

const namespace = "com.amazonaws.dynamodb.v20120810"

type Handler struct {
	engine *ddbcore.Engine
}

func NewHandler(engine *ddbcore.Engine) *Handler {
	return &Handler{engine: engine}
}

// Dispatch routes a JSON-protocol action to the table engine.
func (h *Handler) Dispatch(action string, w http.ResponseWriter, r *http.Request) {
	var out any
	var err error

	switch action {
	case "CreateTable":
		var in ddbcore.CreateTableInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.CreateTable(&in)
		}
	case "DeleteTable":
		var in ddbcore.DeleteTableInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.DeleteTable(&in)
		}
	case "DescribeTable":
		var in ddbcore.DescribeTableInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.DescribeTable(&in)
		}
	case "ListTables":
		var in ddbcore.ListTablesInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.ListTables(&in)
		}
	case "UpdateTable":
		var in ddbcore.UpdateTableInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.UpdateTable(&in)
		}
	case "PutItem":
		var in ddbcore.PutItemInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.PutItem(&in)
		}
	case "GetItem":
		var in ddbcore.GetItemInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.GetItem(&in)
		}
	case "DeleteItem":
		var in ddbcore.DeleteItemInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.DeleteItem(&in)
		}
	case "UpdateItem":
		var in ddbcore.UpdateItemInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.UpdateItem(&in)
		}
	case "Query":
		var in ddbcore.QueryInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.Query(&in)
		}
	case "Scan":
		var in ddbcore.ScanInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.Scan(&in)
		}
	case "BatchGetItem":
		var in ddbcore.BatchGetItemInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.BatchGetItem(&in)
		}
	case "BatchWriteItem":
		var in ddbcore.BatchWriteItemInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.BatchWriteItem(&in)
		}
	case "TagResource":
		var in ddbcore.TagResourceInput
		if err = common.DecodeJSON(r, &in); err == nil {
			err = h.engine.TagResource(&in)
		}
	case "UntagResource":
		var in ddbcore.UntagResourceInput
		if err = common.DecodeJSON(r, &in); err == nil {
			err = h.engine.UntagResource(&in)
		}
	case "ListTagsOfResource":
		var in ddbcore.ListTagsOfResourceInput
		if err = common.DecodeJSON(r, &in); err == nil {
			out, err = h.engine.ListTagsOfResource(&in)
		}
	default:
		err = awserr.New("UnknownOperationException", http.StatusBadRequest, "Unknown operation: "+action)
	}

	if err != nil {
		common.RespondJSONError(w, namespace, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, out)
}
