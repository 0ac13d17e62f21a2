package logs

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	logscore "github.com/nimbuslocal/nimbus/internal/core/logs"
)

const namespace = "com.amazonaws.logs"

type Handler struct {
	service *logscore.Service
}

func NewHandler(service *logscore.Service) *Handler {
	return &Handler{service: service}
}

type logGroupEntry struct {
	LogGroupName    string `json:"logGroupName"`
	Arn             string `json:"arn"`
	CreationTime    int64  `json:"creationTime"`
	RetentionInDays int    `json:"retentionInDays,omitempty"`
	StoredBytes     int64  `json:"storedBytes"`
}

type logStreamEntry struct {
	LogStreamName       string `json:"logStreamName"`
	Arn                 string `json:"arn"`
	CreationTime        int64  `json:"creationTime"`
	LastEventTimestamp  int64  `json:"lastEventTimestamp,omitempty"`
	UploadSequenceToken string `json:"uploadSequenceToken,omitempty"`
}

// Dispatch routes a JSON-protocol action to the log service.
func (h *Handler) Dispatch(action string, w http.ResponseWriter, r *http.Request) {
	var req struct {
		LogGroupName        string              `json:"logGroupName"`
		LogGroupNamePrefix  string              `json:"logGroupNamePrefix"`
		LogStreamName       string              `json:"logStreamName"`
		LogStreamNamePrefix string              `json:"logStreamNamePrefix"`
		LogEvents           []logscore.LogEvent `json:"logEvents"`
		StartTime           int64               `json:"startTime"`
		EndTime             int64               `json:"endTime"`
		Limit               int                 `json:"limit"`
		FilterPattern       string              `json:"filterPattern"`
		RetentionInDays     int                 `json:"retentionInDays"`
		Tags                map[string]string   `json:"tags"`
		TagKeys             []string            `json:"tagKeys"`
	}
	if err := common.DecodeJSON(r, &req); err != nil {
		common.RespondJSONError(w, namespace, err)
		return
	}

	var out any
	var err error

	switch action {
	case "CreateLogGroup":
		err = h.service.CreateLogGroup(req.LogGroupName, req.Tags)
	case "DeleteLogGroup":
		err = h.service.DeleteLogGroup(req.LogGroupName)
	case "DescribeLogGroups":
		groups := h.service.DescribeLogGroups(req.LogGroupNamePrefix)
		entries := make([]logGroupEntry, len(groups))
		for i, g := range groups {
			entries[i] = logGroupEntry{
				LogGroupName:    g.Name,
				Arn:             g.ARN,
				CreationTime:    g.CreatedAt,
				RetentionInDays: g.RetentionInDays,
			}
		}
		out = map[string]any{"logGroups": entries}
	case "CreateLogStream":
		err = h.service.CreateLogStream(req.LogGroupName, req.LogStreamName)
	case "DeleteLogStream":
		err = h.service.DeleteLogStream(req.LogGroupName, req.LogStreamName)
	case "DescribeLogStreams":
		var streams []*logscore.LogStream
		streams, err = h.service.DescribeLogStreams(req.LogGroupName, req.LogStreamNamePrefix)
		if err == nil {
			entries := make([]logStreamEntry, len(streams))
			for i, s := range streams {
				entries[i] = logStreamEntry{
					LogStreamName:       s.Name,
					Arn:                 s.ARN,
					CreationTime:        s.CreatedAt,
					LastEventTimestamp:  s.LastEventTime,
					UploadSequenceToken: s.UploadSequenceToken,
				}
			}
			out = map[string]any{"logStreams": entries}
		}
	case "PutLogEvents":
		var token string
		token, err = h.service.PutLogEvents(req.LogGroupName, req.LogStreamName, req.LogEvents)
		if err == nil {
			out = map[string]any{"nextSequenceToken": token}
		}
	case "GetLogEvents":
		var events []logscore.OutputLogEvent
		events, err = h.service.GetLogEvents(req.LogGroupName, req.LogStreamName, req.StartTime, req.EndTime, req.Limit)
		if err == nil {
			out = map[string]any{"events": events}
		}
	case "FilterLogEvents":
		var events []logscore.FilteredLogEvent
		events, err = h.service.FilterLogEvents(req.LogGroupName, req.FilterPattern, req.StartTime, req.EndTime, req.Limit)
		if err == nil {
			out = map[string]any{"events": events, "searchedLogStreams": []any{}}
		}
	case "PutRetentionPolicy":
		err = h.service.PutRetentionPolicy(req.LogGroupName, req.RetentionInDays)
	case "DeleteRetentionPolicy":
		err = h.service.DeleteRetentionPolicy(req.LogGroupName)
	case "TagLogGroup":
		err = h.service.TagLogGroup(req.LogGroupName, req.Tags)
	case "UntagLogGroup":
		err = h.service.UntagLogGroup(req.LogGroupName, req.TagKeys)
	case "ListTagsLogGroup":
		var tags map[string]string
		tags, err = h.service.ListTagsLogGroup(req.LogGroupName)
		if err == nil {
			out = map[string]any{"tags": tags}
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
