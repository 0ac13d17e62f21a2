package kinesis

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	kinesiscore "github.com/nimbuslocal/nimbus/internal/core/kinesis"
)

const namespace = "com.amazonaws.kinesis"

type Handler struct {
	service *kinesiscore.Service
}

func NewHandler(service *kinesiscore.Service) *Handler {
	return &Handler{service: service}
}

type recordJSON struct {
	SequenceNumber              string  `json:"SequenceNumber"`
	ApproximateArrivalTimestamp float64 `json:"ApproximateArrivalTimestamp"`
	Data                        []byte  `json:"Data"`
	PartitionKey                string  `json:"PartitionKey"`
	EncryptionType              string  `json:"EncryptionType"`
}

type shardJSON struct {
	ShardId             string            `json:"ShardId"`
	HashKeyRange        map[string]string `json:"HashKeyRange"`
	SequenceNumberRange map[string]string `json:"SequenceNumberRange"`
}

func shards(ids []string) []shardJSON {
	out := make([]shardJSON, len(ids))
	for i, id := range ids {
		out[i] = shardJSON{
			ShardId:             id,
			HashKeyRange:        map[string]string{"StartingHashKey": "0", "EndingHashKey": "340282366920938463463374607431768211455"},
			SequenceNumberRange: map[string]string{"StartingSequenceNumber": "0"},
		}
	}
	return out
}

// Dispatch routes a JSON-protocol action to the record stream service.
func (h *Handler) Dispatch(action string, w http.ResponseWriter, r *http.Request) {
	var req struct {
		StreamName             string                        `json:"StreamName"`
		StreamARN              string                        `json:"StreamARN"`
		ShardCount             int                           `json:"ShardCount"`
		ShardId                string                        `json:"ShardId"`
		ShardIterator          string                        `json:"ShardIterator"`
		ShardIteratorType      string                        `json:"ShardIteratorType"`
		StartingSequenceNumber string                        `json:"StartingSequenceNumber"`
		PartitionKey           string                        `json:"PartitionKey"`
		Data                   []byte                        `json:"Data"`
		Limit                  int                           `json:"Limit"`
		RetentionPeriodHours   int                           `json:"RetentionPeriodHours"`
		Records                []struct {
			Data         []byte `json:"Data"`
			PartitionKey string `json:"PartitionKey"`
		} `json:"Records"`
		Tags    map[string]string `json:"Tags"`
		TagKeys []string          `json:"TagKeys"`
	}
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondJSONError(w, namespace, err)
		return
	}

	var out any
	var err error

	switch action {
	case "CreateStream":
		err = h.service.CreateStream(req.StreamName, req.ShardCount)
	case "DeleteStream":
		err = h.service.DeleteStream(req.StreamName)
	case "DescribeStream", "DescribeStreamSummary":
		var stream *kinesiscore.Stream
		stream, err = h.service.DescribeStream(req.StreamName, req.StreamARN)
		if err == nil {
			description := map[string]any{
				"StreamName":           stream.Name,
				"StreamARN":            stream.ARN,
				"StreamStatus":         stream.Status,
				"RetentionPeriodHours": stream.RetentionHours,
				"StreamCreationTimestamp": stream.CreatedAt,
				"OpenShardCount":       stream.ShardCount,
			}
			if action == "DescribeStreamSummary" {
				out = map[string]any{"StreamDescriptionSummary": description}
			} else {
				description["Shards"] = shards(stream.ShardIDs())
				description["HasMoreShards"] = false
				out = map[string]any{"StreamDescription": description}
			}
		}
	case "ListStreams":
		out = map[string]any{"StreamNames": h.service.ListStreams(), "HasMoreStreams": false}
	case "ListShards":
		var ids []string
		ids, err = h.service.ListShards(req.StreamName, req.StreamARN)
		if err == nil {
			out = map[string]any{"Shards": shards(ids)}
		}
	case "PutRecord":
		var shardID, sequenceNumber string
		shardID, sequenceNumber, err = h.service.PutRecord(req.StreamName, req.StreamARN, req.PartitionKey, req.Data)
		if err == nil {
			out = map[string]string{"ShardId": shardID, "SequenceNumber": sequenceNumber}
		}
	case "PutRecords":
		entries := make([]kinesiscore.PutRecordsEntry, len(req.Records))
		for i, rec := range req.Records {
			entries[i] = kinesiscore.PutRecordsEntry{PartitionKey: rec.PartitionKey, Data: rec.Data}
		}
		var results []kinesiscore.PutRecordsResult
		results, err = h.service.PutRecords(req.StreamName, req.StreamARN, entries)
		if err == nil {
			records := make([]map[string]string, len(results))
			for i, result := range results {
				records[i] = map[string]string{
					"SequenceNumber": result.SequenceNumber,
					"ShardId":        result.ShardID,
				}
			}
			out = map[string]any{"FailedRecordCount": 0, "Records": records}
		}
	case "GetShardIterator":
		var iterator string
		iterator, err = h.service.GetShardIterator(req.StreamName, req.StreamARN,
			req.ShardId, req.ShardIteratorType, req.StartingSequenceNumber)
		if err == nil {
			out = map[string]string{"ShardIterator": iterator}
		}
	case "GetRecords":
		var result *kinesiscore.GetRecordsOutput
		result, err = h.service.GetRecords(req.ShardIterator, req.Limit)
		if err == nil {
			records := make([]recordJSON, len(result.Records))
			for i, rec := range result.Records {
				records[i] = recordJSON{
					SequenceNumber:              rec.SequenceNumber,
					ApproximateArrivalTimestamp: rec.Arrival,
					Data:                        rec.Data,
					PartitionKey:                rec.PartitionKey,
					EncryptionType:              "NONE",
				}
			}
			out = map[string]any{
				"Records":            records,
				"NextShardIterator":  result.NextShardIterator,
				"MillisBehindLatest": result.MillisBehindLatest,
			}
		}
	case "IncreaseStreamRetentionPeriod":
		err = h.service.IncreaseStreamRetentionPeriod(req.StreamName, req.StreamARN, req.RetentionPeriodHours)
	case "DecreaseStreamRetentionPeriod":
		err = h.service.DecreaseStreamRetentionPeriod(req.StreamName, req.StreamARN, req.RetentionPeriodHours)
	case "AddTagsToStream":
		err = h.service.AddTagsToStream(req.StreamName, req.Tags)
	case "RemoveTagsFromStream":
		err = h.service.RemoveTagsFromStream(req.StreamName, req.TagKeys)
	case "ListTagsForStream":
		var streamTags map[string]string
		streamTags, err = h.service.ListTagsForStream(req.StreamName)
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
