package events

import (
	"net/http"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	eventscore "github.com/nimbuslocal/nimbus/internal/core/events"
)

const namespace = "com.amazonaws.events"

type Handler struct {
	service *eventscore.Service
}

func NewHandler(service *eventscore.Service) *Handler {
	return &Handler{service: service}
}

type busEntry struct {
	Name string `json:"Name"`
	Arn  string `json:"Arn"`
}

type ruleEntry struct {
	Name               string `json:"Name"`
	Arn                string `json:"Arn"`
	EventBusName       string `json:"EventBusName"`
	EventPattern       string `json:"EventPattern,omitempty"`
	ScheduleExpression string `json:"ScheduleExpression,omitempty"`
	State              string `json:"State"`
	Description        string `json:"Description,omitempty"`
}

func rule(r *eventscore.Rule) ruleEntry {
	return ruleEntry{
		Name:               r.Name,
		Arn:                r.ARN,
		EventBusName:       r.EventBusName,
		EventPattern:       r.EventPattern,
		ScheduleExpression: r.ScheduleExpression,
		State:              r.State,
		Description:        r.Description,
	}
}

type tagPair struct {
	Key   string `json:"Key"`
	Value string `json:"Value"`
}

// Dispatch routes a JSON-protocol action to the event bus service.
func (h *Handler) Dispatch(action string, w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name               string               `json:"Name"`
		NamePrefix         string               `json:"NamePrefix"`
		EventBusName       string               `json:"EventBusName"`
		EventPattern       string               `json:"EventPattern"`
		ScheduleExpression string               `json:"ScheduleExpression"`
		State              string               `json:"State"`
		Description        string               `json:"Description"`
		Rule               string               `json:"Rule"`
		Targets            []eventscore.Target  `json:"Targets"`
		Ids                []string             `json:"Ids"`
		Entries            []putEventsEntryJSON `json:"Entries"`
		ResourceARN        string               `json:"ResourceARN"`
		Tags               []tagPair            `json:"Tags"`
		TagKeys            []string             `json:"TagKeys"`
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
	case "CreateEventBus":
		var busARN string
		busARN, err = h.service.CreateEventBus(req.Name, tags)
		if err == nil {
			out = map[string]string{"EventBusArn": busARN}
		}
	case "DeleteEventBus":
		err = h.service.DeleteEventBus(req.Name)
	case "DescribeEventBus":
		var bus *eventscore.EventBus
		bus, err = h.service.DescribeEventBus(req.Name)
		if err == nil {
			out = busEntry{Name: bus.Name, Arn: bus.ARN}
		}
	case "ListEventBuses":
		buses := h.service.ListEventBuses(req.NamePrefix)
		entries := make([]busEntry, len(buses))
		for i, bus := range buses {
			entries[i] = busEntry{Name: bus.Name, Arn: bus.ARN}
		}
		out = map[string]any{"EventBuses": entries}
	case "PutEvents":
		entries := make([]eventscore.PutEventsEntry, len(req.Entries))
		for i, e := range req.Entries {
			entries[i] = eventscore.PutEventsEntry{
				Source:       e.Source,
				DetailType:   e.DetailType,
				Detail:       e.Detail,
				EventBusName: e.EventBusName,
			}
		}
		results := h.service.PutEvents(entries)
		out = map[string]any{"FailedEntryCount": 0, "Entries": results}
	case "PutRule":
		var ruleARN string
		ruleARN, err = h.service.PutRule(req.EventBusName, req.Name, req.EventPattern,
			req.ScheduleExpression, req.State, req.Description)
		if err == nil {
			out = map[string]string{"RuleArn": ruleARN}
		}
	case "DeleteRule":
		err = h.service.DeleteRule(req.EventBusName, req.Name)
	case "DescribeRule":
		var rl *eventscore.Rule
		rl, err = h.service.DescribeRule(req.EventBusName, req.Name)
		if err == nil {
			out = rule(rl)
		}
	case "ListRules":
		var rules []*eventscore.Rule
		rules, err = h.service.ListRules(req.EventBusName, req.NamePrefix)
		if err == nil {
			entries := make([]ruleEntry, len(rules))
			for i, rl := range rules {
				entries[i] = rule(rl)
			}
			out = map[string]any{"Rules": entries}
		}
	case "PutTargets":
		err = h.service.PutTargets(req.EventBusName, req.Rule, req.Targets)
		if err == nil {
			out = map[string]any{"FailedEntryCount": 0, "FailedEntries": []any{}}
		}
	case "RemoveTargets":
		err = h.service.RemoveTargets(req.EventBusName, req.Rule, req.Ids)
		if err == nil {
			out = map[string]any{"FailedEntryCount": 0, "FailedEntries": []any{}}
		}
	case "ListTargetsByRule":
		var targets []eventscore.Target
		targets, err = h.service.ListTargetsByRule(req.EventBusName, req.Rule)
		if err == nil {
			out = map[string]any{"Targets": targets}
		}
	case "TagResource":
		err = h.service.TagResource(req.ResourceARN, tags)
	case "UntagResource":
		err = h.service.UntagResource(req.ResourceARN, req.TagKeys)
	case "ListTagsForResource":
		var resourceTags map[string]string
		resourceTags, err = h.service.ListTagsForResource(req.ResourceARN)
		if err == nil {
			pairs := make([]tagPair, 0, len(resourceTags))
			for k, v := range resourceTags {
				pairs = append(pairs, tagPair{Key: k, Value: v})
			}
			out = map[string]any{"Tags": pairs}
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

type putEventsEntryJSON struct {
	Source       string `json:"Source"`
	DetailType   string `json:"DetailType"`
	Detail       string `json:"Detail"`
	EventBusName string `json:"EventBusName"`
}
