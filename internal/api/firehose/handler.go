package firehose

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	firehosecore "github.com/nimbuslocal/nimbus/internal/core/firehose"
)

const namespace = "com.amazonaws.firehose"

type Handler struct {
	service *firehosecore.Service
}

func NewHandler(service *firehosecore.Service) *Handler {
	return &Handler{service: service}
}

type recordJSON struct {
	Data []byte `json:"Data"`
}

// Dispatch routes a JSON-protocol action to the delivery stream service.
func (h *Handler) Dispatch(action string, w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeliveryStreamName                 string         `json:"DeliveryStreamName"`
		DeliveryStreamType                 string         `json:"DeliveryStreamType"`
		S3DestinationConfiguration         map[string]any `json:"S3DestinationConfiguration"`
		ExtendedS3DestinationConfiguration map[string]any `json:"ExtendedS3DestinationConfiguration"`
		Record                             *recordJSON    `json:"Record"`
		Records                            []recordJSON   `json:"Records"`
		Tags                               []struct {
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
	case "CreateDeliveryStream":
		destination := req.S3DestinationConfiguration
		if destination == nil {
			destination = req.ExtendedS3DestinationConfiguration
		}
		var streamARN string
		streamARN, err = h.service.CreateDeliveryStream(req.DeliveryStreamName, req.DeliveryStreamType, destination)
		if err == nil {
			out = map[string]string{"DeliveryStreamARN": streamARN}
		}
	case "DeleteDeliveryStream":
		err = h.service.DeleteDeliveryStream(req.DeliveryStreamName)
	case "DescribeDeliveryStream":
		var stream *firehosecore.DeliveryStream
		stream, err = h.service.DescribeDeliveryStream(req.DeliveryStreamName)
		if err == nil {
			out = map[string]any{"DeliveryStreamDescription": map[string]any{
				"DeliveryStreamName":   stream.Name,
				"DeliveryStreamARN":    stream.ARN,
				"DeliveryStreamStatus": stream.Status,
				"DeliveryStreamType":   stream.Type,
				"CreateTimestamp":      stream.CreatedAt,
				"VersionId":            stream.VersionID,
				"HasMoreDestinations":  false,
				"Destinations":         []any{stream.Destination},
			}}
		}
	case "ListDeliveryStreams":
		out = map[string]any{
			"DeliveryStreamNames":    h.service.ListDeliveryStreams(),
			"HasMoreDeliveryStreams": false,
		}
	case "UpdateDestination":
		destination := req.S3DestinationConfiguration
		if destination == nil {
			destination = req.ExtendedS3DestinationConfiguration
		}
		err = h.service.UpdateDestination(req.DeliveryStreamName, destination)
	case "PutRecord":
		if req.Record == nil {
			err = awserr.New("InvalidArgumentException", http.StatusBadRequest, "Record is required")
			break
		}
		var recordID string
		recordID, err = h.service.PutRecord(req.DeliveryStreamName, req.Record.Data)
		if err == nil {
			out = map[string]any{"RecordId": recordID, "Encrypted": false}
		}
	case "PutRecordBatch":
		records := make([][]byte, len(req.Records))
		for i, rec := range req.Records {
			records[i] = rec.Data
		}
		var ids []string
		ids, err = h.service.PutRecordBatch(req.DeliveryStreamName, records)
		if err == nil {
			responses := make([]map[string]string, len(ids))
			for i, id := range ids {
				responses[i] = map[string]string{"RecordId": id}
			}
			out = map[string]any{"FailedPutCount": 0, "Encrypted": false, "RequestResponses": responses}
		}
	case "TagDeliveryStream":
		err = h.service.TagDeliveryStream(req.DeliveryStreamName, tags)
	case "UntagDeliveryStream":
		err = h.service.UntagDeliveryStream(req.DeliveryStreamName, req.TagKeys)
	case "ListTagsForDeliveryStream":
		var streamTags map[string]string
		streamTags, err = h.service.ListTagsForDeliveryStream(req.DeliveryStreamName)
		if err == nil {
			pairs := make([]map[string]string, 0, len(streamTags))
			for k, v := range streamTags {
				pairs = append(pairs, map[string]string{"Key": k, "Value": v})
			}
			out = map[string]any{"Tags": pairs, "HasMoreTags": false}
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
