package secretsmanager

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	smcore "github.com/nimbuslocal/nimbus/internal/core/secretsmanager"
)

const namespace = "com.amazonaws.secretsmanager"

type Handler struct {
	service *smcore.Service
}

func NewHandler(service *smcore.Service) *Handler {
	return &Handler{service: service}
}

// Dispatch routes a JSON-protocol action to the secret store.
func (h *Handler) Dispatch(action string, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name                       string `json:"Name"`
		SecretId                   string `json:"SecretId"`
		Description                string `json:"Description"`
		SecretString               string `json:"SecretString"`
		SecretBinary               []byte `json:"SecretBinary"`
		KmsKeyId                   string `json:"KmsKeyId"`
		VersionId                  string `json:"VersionId"`
		VersionStage               string `json:"VersionStage"`
		RecoveryWindowInDays       int    `json:"RecoveryWindowInDays"`
		ForceDeleteWithoutRecovery bool   `json:"ForceDeleteWithoutRecovery"`
		Tags                       []struct {
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
	case "CreateSecret":
		var secret *smcore.Secret
		var versionID string
		secret, versionID, err = h.service.CreateSecret(req.Name, req.Description,
			req.SecretString, req.SecretBinary, req.KmsKeyId, tags)
		if err == nil {
			out = map[string]string{"ARN": secret.ARN, "Name": secret.Name, "VersionId": versionID}
		}
	case "GetSecretValue":
		var secret *smcore.Secret
		var version *smcore.SecretVersion
		secret, version, err = h.service.GetSecretValue(req.SecretId, req.VersionId, req.VersionStage)
		if err == nil {
			body := map[string]any{
				"ARN":           secret.ARN,
				"Name":          secret.Name,
				"VersionId":     version.VersionID,
				"VersionStages": version.Stages,
				"CreatedDate":   version.CreatedAt,
			}
			if version.SecretString != "" {
				body["SecretString"] = version.SecretString
			}
			if version.SecretBinary != nil {
				body["SecretBinary"] = version.SecretBinary
			}
			out = body
		}
	case "PutSecretValue":
		var secret *smcore.Secret
		var versionID string
		secret, versionID, err = h.service.PutSecretValue(req.SecretId, req.SecretString, req.SecretBinary)
		if err == nil {
			out = map[string]any{
				"ARN":           secret.ARN,
				"Name":          secret.Name,
				"VersionId":     versionID,
				"VersionStages": []string{"AWSCURRENT"},
			}
		}
	case "DescribeSecret":
		var secret *smcore.Secret
		secret, err = h.service.DescribeSecret(req.SecretId)
		if err == nil {
			out = describeBody(secret)
		}
	case "ListSecrets":
		secrets := h.service.ListSecrets()
		entries := make([]map[string]any, len(secrets))
		for i, secret := range secrets {
			entries[i] = describeBody(secret)
		}
		out = map[string]any{"SecretList": entries}
	case "UpdateSecret":
		var secret *smcore.Secret
		secret, err = h.service.UpdateSecret(req.SecretId, req.Description,
			req.SecretString, req.SecretBinary, req.KmsKeyId)
		if err == nil {
			out = map[string]string{"ARN": secret.ARN, "Name": secret.Name}
		}
	case "DeleteSecret":
		var secret *smcore.Secret
		var deletionDate float64
		secret, deletionDate, err = h.service.DeleteSecret(req.SecretId,
			req.RecoveryWindowInDays, req.ForceDeleteWithoutRecovery)
		if err == nil {
			out = map[string]any{"ARN": secret.ARN, "Name": secret.Name, "DeletionDate": deletionDate}
		}
	case "RestoreSecret":
		var secret *smcore.Secret
		secret, err = h.service.RestoreSecret(req.SecretId)
		if err == nil {
			out = map[string]string{"ARN": secret.ARN, "Name": secret.Name}
		}
	case "ListSecretVersionIds":
		var secret *smcore.Secret
		secret, err = h.service.ListSecretVersionIDs(req.SecretId)
		if err == nil {
			versions := make([]map[string]any, len(secret.Versions))
			for i, version := range secret.Versions {
				versions[i] = map[string]any{
					"VersionId":     version.VersionID,
					"VersionStages": version.Stages,
					"CreatedDate":   version.CreatedAt,
				}
			}
			out = map[string]any{"ARN": secret.ARN, "Name": secret.Name, "Versions": versions}
		}
	case "TagResource":
		err = h.service.TagResource(req.SecretId, tags)
	case "UntagResource":
		err = h.service.UntagResource(req.SecretId, req.TagKeys)
	default:
		err = awserr.New("InvalidAction", http.StatusBadRequest, "The action "+action+" is not valid for this endpoint.")
	}

	if err != nil {
		common.RespondJSONError(w, namespace, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, out)
}

func describeBody(secret *smcore.Secret) map[string]any {
	tags := make([]map[string]string, 0, len(secret.Tags))
	for k, v := range secret.Tags {
		tags = append(tags, map[string]string{"Key": k, "Value": v})
	}
	body := map[string]any{
		"ARN":         secret.ARN,
		"Name":        secret.Name,
		"Description": secret.Description,
		"CreatedDate": secret.CreatedAt,
		"Tags":        tags,
	}
	if secret.KmsKeyID != "" {
		body["KmsKeyId"] = secret.KmsKeyID
	}
	if secret.DeletedAt != nil {
		body["DeletedDate"] = *secret.DeletedAt
	}
	return body
}
