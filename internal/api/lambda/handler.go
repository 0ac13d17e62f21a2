package lambda

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	lambdacore "github.com/nimbuslocal/nimbus/internal/core/lambda"
	"github.com/nimbuslocal/nimbus/internal/ident"
)

// Handler serves the function service's REST protocol under the
// /2015-03-31/ path prefix.
type Handler struct {
	service *lambdacore.Service
}

func NewHandler(service *lambdacore.Service) *Handler {
	return &Handler{service: service}
}

type createFunctionRequest struct {
	FunctionName string         `json:"FunctionName"`
	Runtime      string         `json:"Runtime"`
	Role         string         `json:"Role"`
	Handler      string         `json:"Handler"`
	Description  string         `json:"Description"`
	Timeout      int            `json:"Timeout"`
	MemorySize   int            `json:"MemorySize"`
	Code         map[string]any `json:"Code"`
	Environment  map[string]any `json:"Environment"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/2015-03-31")
	path = strings.Trim(path, "/")
	segments := strings.Split(path, "/")

	switch {
	case len(segments) >= 1 && segments[0] == "functions":
		h.functions(w, r, segments[1:])
	case len(segments) >= 1 && segments[0] == "event-source-mappings":
		h.eventSourceMappings(w, r, segments[1:])
	case len(segments) == 2 && segments[0] == "tags":
		h.tags(w, r, segments[1])
	default:
		common.RespondJSONError(w, "com.amazonaws.lambda",
			awserr.New("ResourceNotFoundException", http.StatusNotFound, "Unknown resource path"))
	}
}

func (h *Handler) functions(w http.ResponseWriter, r *http.Request, segments []string) {
	switch {
	case len(segments) == 0:
		switch r.Method {
		case http.MethodPost:
			h.createFunction(w, r)
		case http.MethodGet:
			respond(w, http.StatusOK, map[string]any{"Functions": h.service.ListFunctions()})
		default:
			methodNotAllowed(w)
		}

	case len(segments) == 1:
		name := segments[0]
		switch r.Method {
		case http.MethodGet:
			fn, err := h.service.GetFunction(name)
			if err != nil {
				respondError(w, err)
				return
			}
			respond(w, http.StatusOK, map[string]any{
				"Configuration": fn.Configuration,
				"Code":          map[string]string{"RepositoryType": "S3"},
				"Tags":          fn.Tags,
			})
		case http.MethodDelete:
			if err := h.service.DeleteFunction(name); err != nil {
				respondError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			methodNotAllowed(w)
		}

	case len(segments) == 2:
		name, sub := segments[0], segments[1]
		switch sub {
		case "invocations":
			h.invoke(w, r, name)
		case "code":
			h.updateCode(w, r, name)
		case "configuration":
			h.updateConfiguration(w, r, name)
		case "versions":
			switch r.Method {
			case http.MethodPost:
				version, err := h.service.PublishVersion(name)
				if err != nil {
					respondError(w, err)
					return
				}
				respond(w, http.StatusCreated, version)
			case http.MethodGet:
				versions, err := h.service.ListVersions(name)
				if err != nil {
					respondError(w, err)
					return
				}
				respond(w, http.StatusOK, map[string]any{"Versions": versions})
			default:
				methodNotAllowed(w)
			}
		case "aliases":
			h.aliases(w, r, name, "")
		case "policy":
			h.policy(w, r, name, "")
		default:
			respondError(w, awserr.New("ResourceNotFoundException", http.StatusNotFound, "Unknown resource path"))
		}

	case len(segments) == 3 && segments[1] == "aliases":
		h.aliases(w, r, segments[0], segments[2])
	case len(segments) == 3 && segments[1] == "policy":
		h.policy(w, r, segments[0], segments[2])
	default:
		respondError(w, awserr.New("ResourceNotFoundException", http.StatusNotFound, "Unknown resource path"))
	}
}

func (h *Handler) createFunction(w http.ResponseWriter, r *http.Request) {
	var req createFunctionRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	var code []byte
	if zipFile, ok := req.Code["ZipFile"].(string); ok {
		decoded, err := ident.B64Decode(zipFile)
		if err == nil {
			code = decoded
		}
	}
	cfg, err := h.service.CreateFunction(req.FunctionName, req.Runtime, req.Role,
		req.Handler, req.Description, req.Timeout, req.MemorySize, code, req.Environment)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusCreated, cfg)
}

func (h *Handler) invoke(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, err)
		return
	}
	response, status, err := h.service.Invoke(name, payload)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Amz-Executed-Version", "$LATEST")
	w.WriteHeader(status)
	w.Write(response)
}

func (h *Handler) updateCode(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req struct {
		ZipFile string `json:"ZipFile"`
	}
	if err := common.DecodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	code, _ := ident.B64Decode(req.ZipFile)
	cfg, err := h.service.UpdateFunctionCode(name, code)
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, cfg)
}

func (h *Handler) updateConfiguration(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w)
		return
	}
	var req struct {
		Runtime     string         `json:"Runtime"`
		Role        string         `json:"Role"`
		Handler     string         `json:"Handler"`
		Description string         `json:"Description"`
		Timeout     int            `json:"Timeout"`
		MemorySize  int            `json:"MemorySize"`
		Environment map[string]any `json:"Environment"`
	}
	if err := common.DecodeJSON(r, &req); err != nil {
		respondError(w, err)
		return
	}
	cfg, err := h.service.UpdateFunctionConfiguration(name, func(cfg *lambdacore.FunctionConfiguration) {
		if req.Runtime != "" {
			cfg.Runtime = req.Runtime
		}
		if req.Role != "" {
			cfg.Role = req.Role
		}
		if req.Handler != "" {
			cfg.Handler = req.Handler
		}
		if req.Description != "" {
			cfg.Description = req.Description
		}
		if req.Timeout > 0 {
			cfg.Timeout = req.Timeout
		}
		if req.MemorySize > 0 {
			cfg.MemorySize = req.MemorySize
		}
		if req.Environment != nil {
			cfg.Environment = req.Environment
		}
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respond(w, http.StatusOK, cfg)
}

func (h *Handler) aliases(w http.ResponseWriter, r *http.Request, functionName, aliasName string) {
	switch {
	case aliasName == "" && r.Method == http.MethodPost:
		var req struct {
			Name            string `json:"Name"`
			FunctionVersion string `json:"FunctionVersion"`
			Description     string `json:"Description"`
		}
		if err := common.DecodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}
		alias, err := h.service.CreateAlias(functionName, req.Name, req.FunctionVersion, req.Description)
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusCreated, alias)

	case aliasName == "" && r.Method == http.MethodGet:
		aliases, err := h.service.ListAliases(functionName)
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"Aliases": aliases})

	case aliasName != "" && r.Method == http.MethodGet:
		alias, err := h.service.GetAlias(functionName, aliasName)
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, alias)

	case aliasName != "" && r.Method == http.MethodDelete:
		if err := h.service.DeleteAlias(functionName, aliasName); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) policy(w http.ResponseWriter, r *http.Request, functionName, statementID string) {
	switch {
	case statementID == "" && r.Method == http.MethodPost:
		var req struct {
			StatementId string `json:"StatementId"`
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			respondError(w, err)
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			respondError(w, awserr.New("InvalidRequestContentException", http.StatusBadRequest, err.Error()))
			return
		}
		if err := h.service.AddPermission(functionName, req.StatementId, body); err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusCreated, map[string]string{"Statement": string(body)})

	case statementID == "" && r.Method == http.MethodGet:
		policy, err := h.service.GetPolicy(functionName)
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, map[string]string{"Policy": policy})

	case statementID != "" && r.Method == http.MethodDelete:
		if err := h.service.RemovePermission(functionName, statementID); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) eventSourceMappings(w http.ResponseWriter, r *http.Request, segments []string) {
	switch {
	case len(segments) == 0 && r.Method == http.MethodPost:
		var req struct {
			EventSourceArn string `json:"EventSourceArn"`
			FunctionName   string `json:"FunctionName"`
			BatchSize      int    `json:"BatchSize"`
			Enabled        *bool  `json:"Enabled"`
		}
		if err := common.DecodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}
		enabled := req.Enabled == nil || *req.Enabled
		mapping, err := h.service.CreateEventSourceMapping(req.EventSourceArn, req.FunctionName, req.BatchSize, enabled)
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusAccepted, mapping)

	case len(segments) == 0 && r.Method == http.MethodGet:
		mappings := h.service.ListEventSourceMappings(r.URL.Query().Get("FunctionName"))
		respond(w, http.StatusOK, map[string]any{"EventSourceMappings": mappings})

	case len(segments) == 1 && r.Method == http.MethodDelete:
		mapping, err := h.service.DeleteEventSourceMapping(segments[0])
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusAccepted, mapping)

	default:
		methodNotAllowed(w)
	}
}

func (h *Handler) tags(w http.ResponseWriter, r *http.Request, resourceARN string) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Tags map[string]string `json:"Tags"`
		}
		if err := common.DecodeJSON(r, &req); err != nil {
			respondError(w, err)
			return
		}
		if err := h.service.TagResource(resourceARN, req.Tags); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		tagKeys := r.URL.Query()["tagKeys"]
		if err := h.service.UntagResource(resourceARN, tagKeys); err != nil {
			respondError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case http.MethodGet:
		tags, err := h.service.ListTags(resourceARN)
		if err != nil {
			respondError(w, err)
			return
		}
		respond(w, http.StatusOK, map[string]any{"Tags": tags})

	default:
		methodNotAllowed(w)
	}
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, err error) {
	ae := common.AsError(err)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Amzn-ErrorType", ae.Code)
	w.WriteHeader(ae.Status)
	json.NewEncoder(w).Encode(map[string]string{"Type": "User", "Message": ae.Message})
}

func methodNotAllowed(w http.ResponseWriter) {
	respondError(w, awserr.New("MethodNotAllowedException", http.StatusMethodNotAllowed, "Method not allowed"))
}
