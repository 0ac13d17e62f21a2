package kms

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	kmscore "github.com/nimbuslocal/nimbus/internal/core/kms"
)

const namespace = "com.amazonaws.kms"

type Handler struct {
	service *kmscore.Service
}

func NewHandler(service *kmscore.Service) *Handler {
	return &Handler{service: service}
}

// Dispatch routes a JSON-protocol action to the key management service.
func (h *Handler) Dispatch(action string, w http.ResponseWriter, r *http.Request) {
	var req struct {
		KeyId               string `json:"KeyId"`
		Description         string `json:"Description"`
		KeyUsage            string `json:"KeyUsage"`
		KeySpec             string `json:"KeySpec"`
		Policy              string `json:"Policy"`
		PolicyName          string `json:"PolicyName"`
		Plaintext           string `json:"Plaintext"`
		CiphertextBlob      string `json:"CiphertextBlob"`
		Message             string `json:"Message"`
		Signature           string `json:"Signature"`
		SigningAlgorithm    string `json:"SigningAlgorithm"`
		EncryptionAlgorithm string `json:"EncryptionAlgorithm"`
		NumberOfBytes       int    `json:"NumberOfBytes"`
		PendingWindowInDays int    `json:"PendingWindowInDays"`
		AliasName           string `json:"AliasName"`
		TargetKeyId         string `json:"TargetKeyId"`
		Tags                []struct {
			TagKey   string `json:"TagKey"`
			TagValue string `json:"TagValue"`
		} `json:"Tags"`
		TagKeys []string `json:"TagKeys"`
	}
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondJSONError(w, namespace, err)
		return
	}

	tags := make(map[string]string, len(req.Tags))
	for _, t := range req.Tags {
		tags[t.TagKey] = t.TagValue
	}

	var out any
	var err error

	switch action {
	case "CreateKey":
		metadata := h.service.CreateKey(req.Description, req.KeyUsage, req.KeySpec, req.Policy, tags)
		out = map[string]any{"KeyMetadata": metadata}
	case "DescribeKey":
		var metadata *kmscore.KeyMetadata
		metadata, err = h.service.DescribeKey(req.KeyId)
		if err == nil {
			out = map[string]any{"KeyMetadata": metadata}
		}
	case "ListKeys":
		keys := h.service.ListKeys()
		entries := make([]map[string]string, len(keys))
		for i, key := range keys {
			entries[i] = map[string]string{"KeyId": key.KeyId, "KeyArn": key.Arn}
		}
		out = map[string]any{"Keys": entries, "Truncated": false}
	case "EnableKey":
		err = h.service.EnableKey(req.KeyId)
	case "DisableKey":
		err = h.service.DisableKey(req.KeyId)
	case "ScheduleKeyDeletion":
		var metadata *kmscore.KeyMetadata
		var deletionDate float64
		metadata, deletionDate, err = h.service.ScheduleKeyDeletion(req.KeyId, req.PendingWindowInDays)
		if err == nil {
			out = map[string]any{
				"KeyId":        metadata.Arn,
				"KeyState":     metadata.KeyState,
				"DeletionDate": deletionDate,
			}
		}
	case "CancelKeyDeletion":
		var metadata *kmscore.KeyMetadata
		metadata, err = h.service.CancelKeyDeletion(req.KeyId)
		if err == nil {
			out = map[string]string{"KeyId": metadata.Arn}
		}
	case "Encrypt":
		var keyARN, ciphertext string
		keyARN, ciphertext, err = h.service.Encrypt(req.KeyId, req.Plaintext)
		if err == nil {
			algorithm := req.EncryptionAlgorithm
			if algorithm == "" {
				algorithm = "SYMMETRIC_DEFAULT"
			}
			out = map[string]string{
				"KeyId":               keyARN,
				"CiphertextBlob":      ciphertext,
				"EncryptionAlgorithm": algorithm,
			}
		}
	case "Decrypt":
		var keyARN, plaintext string
		keyARN, plaintext, err = h.service.Decrypt(req.CiphertextBlob, req.KeyId)
		if err == nil {
			out = map[string]string{
				"KeyId":               keyARN,
				"Plaintext":           plaintext,
				"EncryptionAlgorithm": "SYMMETRIC_DEFAULT",
			}
		}
	case "GenerateDataKey", "GenerateDataKeyWithoutPlaintext":
		includePlaintext := action == "GenerateDataKey"
		var keyARN, plaintext, ciphertext string
		keyARN, plaintext, ciphertext, err = h.service.GenerateDataKey(req.KeyId, req.NumberOfBytes, includePlaintext)
		if err == nil {
			body := map[string]string{"KeyId": keyARN, "CiphertextBlob": ciphertext}
			if includePlaintext {
				body["Plaintext"] = plaintext
			}
			out = body
		}
	case "GenerateRandom":
		var plaintext string
		plaintext, err = h.service.GenerateRandom(req.NumberOfBytes)
		if err == nil {
			out = map[string]string{"Plaintext": plaintext}
		}
	case "Sign":
		var keyARN, signature string
		keyARN, signature, err = h.service.Sign(req.KeyId, req.Message, req.SigningAlgorithm)
		if err == nil {
			out = map[string]string{
				"KeyId":            keyARN,
				"Signature":        signature,
				"SigningAlgorithm": req.SigningAlgorithm,
			}
		}
	case "Verify":
		var valid bool
		valid, err = h.service.Verify(req.KeyId, req.Message, req.Signature, req.SigningAlgorithm)
		if err == nil {
			out = map[string]any{"SignatureValid": valid, "SigningAlgorithm": req.SigningAlgorithm}
		}
	case "CreateAlias":
		err = h.service.CreateAlias(req.AliasName, req.TargetKeyId)
	case "DeleteAlias":
		err = h.service.DeleteAlias(req.AliasName)
	case "ListAliases":
		out = map[string]any{"Aliases": h.service.ListAliases(), "Truncated": false}
	case "GetKeyPolicy":
		var policy string
		policy, err = h.service.GetKeyPolicy(req.KeyId)
		if err == nil {
			out = map[string]string{"Policy": policy}
		}
	case "PutKeyPolicy":
		err = h.service.PutKeyPolicy(req.KeyId, req.Policy)
	case "TagResource":
		err = h.service.TagResource(req.KeyId, tags)
	case "UntagResource":
		err = h.service.UntagResource(req.KeyId, req.TagKeys)
	case "ListResourceTags":
		var keyTags map[string]string
		keyTags, err = h.service.ListResourceTags(req.KeyId)
		if err == nil {
			pairs := make([]map[string]string, 0, len(keyTags))
			for k, v := range keyTags {
				pairs = append(pairs, map[string]string{"TagKey": k, "TagValue": v})
			}
			out = map[string]any{"Tags": pairs, "Truncated": false}
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
