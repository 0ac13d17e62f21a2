package ssm

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	ssmcore "github.com/nimbuslocal/nimbus/internal/core/ssm"
)

const namespace = "com.amazon.ssm"

type Handler struct {
	service *ssmcore.Service
}

func NewHandler(service *ssmcore.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) parameterBody(p *ssmcore.Parameter) map[string]any {
	return map[string]any{
		"Name":             p.Name,
		"Type":             p.Type,
		"Value":            p.Value,
		"Version":          p.Version,
		"LastModifiedDate": p.LastModifiedDate,
		"ARN":              h.service.ARN(p.Name),
		"DataType":         "text",
	}
}

// Dispatch routes a JSON-protocol action to the parameter store.
func (h *Handler) Dispatch(action string, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string   `json:"Name"`
		Names          []string `json:"Names"`
		Type           string   `json:"Type"`
		Value          string   `json:"Value"`
		Description    string   `json:"Description"`
		KeyId          string   `json:"KeyId"`
		Overwrite      bool     `json:"Overwrite"`
		Path           string   `json:"Path"`
		Recursive      bool     `json:"Recursive"`
		WithDecryption bool     `json:"WithDecryption"`
		ResourceId     string   `json:"ResourceId"`
		Tags           []struct {
			Key   string `json:"Key"`
			Value string `json:"Value"`
		} `json:"Tags"`
		TagKeys []string `json:"TagKeys"`
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
	case "PutParameter":
		var version int64
		version, err = h.service.PutParameter(req.Name, req.Type, req.Value,
			req.Description, req.KeyId, req.Overwrite, tags)
		if err == nil {
			out = map[string]any{"Version": version, "Tier": "Standard"}
		}
	case "GetParameter":
		var param *ssmcore.Parameter
		param, err = h.service.GetParameter(req.Name)
		if err == nil {
			out = map[string]any{"Parameter": h.parameterBody(param)}
		}
	case "GetParameters":
		params, invalid := h.service.GetParameters(req.Names)
		bodies := make([]map[string]any, len(params))
		for i, param := range params {
			bodies[i] = h.parameterBody(param)
		}
		if invalid == nil {
			invalid = []string{}
		}
		out = map[string]any{"Parameters": bodies, "InvalidParameters": invalid}
	case "GetParametersByPath":
		params := h.service.GetParametersByPath(req.Path, req.Recursive)
		bodies := make([]map[string]any, len(params))
		for i, param := range params {
			bodies[i] = h.parameterBody(param)
		}
		out = map[string]any{"Parameters": bodies}
	case "DeleteParameter":
		err = h.service.DeleteParameter(req.Name)
	case "DeleteParameters":
		deleted, invalid := h.service.DeleteParameters(req.Names)
		if deleted == nil {
			deleted = []string{}
		}
		if invalid == nil {
			invalid = []string{}
		}
		out = map[string]any{"DeletedParameters": deleted, "InvalidParameters": invalid}
	case "DescribeParameters":
		params := h.service.DescribeParameters()
		entries := make([]map[string]any, len(params))
		for i, param := range params {
			entries[i] = map[string]any{
				"Name":             param.Name,
				"Type":             param.Type,
				"Version":          param.Version,
				"Description":      param.Description,
				"LastModifiedDate": param.LastModifiedDate,
				"Tier":             "Standard",
			}
		}
		out = map[string]any{"Parameters": entries}
	case "AddTagsToResource":
		err = h.service.AddTagsToResource(req.ResourceId, tags)
	case "RemoveTagsFromResource":
		err = h.service.RemoveTagsFromResource(req.ResourceId, req.TagKeys)
	case "ListTagsForResource":
		var paramTags map[string]string
		paramTags, err = h.service.ListTagsForResource(req.ResourceId)
		if err == nil {
			pairs := make([]map[string]string, 0, len(paramTags))
			for k, v := range paramTags {
				pairs = append(pairs, map[string]string{"Key": k, "Value": v})
			}
			out = map[string]any{"TagList": pairs}
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
