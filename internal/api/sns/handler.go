package sns

import (
	"encoding/xml"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nimbuslocal/nimbus/internal/api/common"
	"github.com/nimbuslocal/nimbus/internal/awserr"
	snscore "github.com/nimbuslocal/nimbus/internal/core/sns"
	"github.com/nimbuslocal/nimbus/internal/ident"
)

const namespace = "http://sns.amazonaws.com/doc/2010-03-31/"

// Handler serves the notification service's form-encoded query protocol,
// answering with XML documents in the documented namespace.
type Handler struct {
	service *snscore.Service
}

func NewHandler(service *snscore.Service) *Handler {
	return &Handler{service: service}
}

type responseMetadata struct {
	RequestID string `xml:"RequestId"`
}

func metadata() responseMetadata {
	return responseMetadata{RequestID: ident.New()}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		common.RespondQueryError(w, namespace, ident.New(),
			awserr.New("InvalidParameter", http.StatusBadRequest, "Malformed request body"))
		return
	}
	values := r.PostForm
	if len(values) == 0 {
		values = r.Form
	}
	action := values.Get("Action")

	var out any
	var err error

	switch action {
	case "CreateTopic":
		var topicARN string
		topicARN, err = h.service.CreateTopic(values.Get("Name"),
			common.QueryMap(values, "Attributes"), common.QueryKeyValueList(values, "Tags"))
		out = createTopicResponse{Xmlns: namespace, Result: createTopicResult{TopicArn: topicARN}, Metadata: metadata()}

	case "DeleteTopic":
		err = h.service.DeleteTopic(values.Get("TopicArn"))
		out = deleteTopicResponse{Xmlns: namespace, Metadata: metadata()}

	case "ListTopics":
		arns := h.service.ListTopics()
		result := listTopicsResult{}
		for _, a := range arns {
			result.Topics = append(result.Topics, topicEntry{TopicArn: a})
		}
		out = listTopicsResponse{Xmlns: namespace, Result: result, Metadata: metadata()}

	case "GetTopicAttributes":
		var attrs map[string]string
		attrs, err = h.service.GetTopicAttributes(values.Get("TopicArn"))
		out = getTopicAttributesResponse{Xmlns: namespace,
			Result: attributesResult{Attributes: attributeEntries(attrs)}, Metadata: metadata()}

	case "SetTopicAttributes":
		err = h.service.SetTopicAttributes(values.Get("TopicArn"),
			values.Get("AttributeName"), values.Get("AttributeValue"))
		out = setTopicAttributesResponse{Xmlns: namespace, Metadata: metadata()}

	case "Subscribe":
		var subARN string
		subARN, err = h.service.Subscribe(values.Get("TopicArn"),
			values.Get("Protocol"), values.Get("Endpoint"))
		out = subscribeResponse{Xmlns: namespace, Result: subscribeResult{SubscriptionArn: subARN}, Metadata: metadata()}

	case "Unsubscribe":
		err = h.service.Unsubscribe(values.Get("SubscriptionArn"))
		out = unsubscribeResponse{Xmlns: namespace, Metadata: metadata()}

	case "ConfirmSubscription":
		var subARN string
		subARN, err = h.service.ConfirmSubscription(values.Get("TopicArn"), values.Get("Token"))
		out = confirmSubscriptionResponse{Xmlns: namespace,
			Result: subscribeResult{SubscriptionArn: subARN}, Metadata: metadata()}

	case "ListSubscriptions":
		out = listSubscriptionsResponse{Xmlns: namespace,
			Result: subscriptionsResult{Subscriptions: subscriptionEntries(h.service.ListSubscriptions())},
			Metadata: metadata()}

	case "ListSubscriptionsByTopic":
		var subs []*snscore.Subscription
		subs, err = h.service.ListSubscriptionsByTopic(values.Get("TopicArn"))
		out = listSubscriptionsByTopicResponse{Xmlns: namespace,
			Result: subscriptionsResult{Subscriptions: subscriptionEntries(subs)}, Metadata: metadata()}

	case "GetSubscriptionAttributes":
		var attrs map[string]string
		attrs, err = h.service.GetSubscriptionAttributes(values.Get("SubscriptionArn"))
		out = getSubscriptionAttributesResponse{Xmlns: namespace,
			Result: attributesResult{Attributes: attributeEntries(attrs)}, Metadata: metadata()}

	case "SetSubscriptionAttributes":
		err = h.service.SetSubscriptionAttributes(values.Get("SubscriptionArn"),
			values.Get("AttributeName"), values.Get("AttributeValue"))
		out = setSubscriptionAttributesResponse{Xmlns: namespace, Metadata: metadata()}

	case "Publish":
		topicARN := values.Get("TopicArn")
		if topicARN == "" {
			topicARN = values.Get("TargetArn")
		}
		var messageID, sequenceNumber string
		messageID, sequenceNumber, err = h.service.Publish(topicARN,
			values.Get("Message"), values.Get("Subject"),
			values.Get("MessageGroupId"), values.Get("MessageDeduplicationId"))
		out = publishResponse{Xmlns: namespace,
			Result: publishResult{MessageId: messageID, SequenceNumber: sequenceNumber}, Metadata: metadata()}

	case "PublishBatch":
		entries := parseBatchEntries(values)
		var successful []snscore.BatchResultEntry
		var failed []snscore.BatchErrorEntry
		successful, failed, err = h.service.PublishBatch(values.Get("TopicArn"), entries)
		result := publishBatchResult{}
		for _, s := range successful {
			result.Successful = append(result.Successful, batchResultEntry(s))
		}
		for _, f := range failed {
			result.Failed = append(result.Failed, batchErrorEntry(f))
		}
		out = publishBatchResponse{Xmlns: namespace, Result: result, Metadata: metadata()}

	case "TagResource":
		err = h.service.TagResource(values.Get("ResourceArn"), common.QueryKeyValueList(values, "Tags"))
		out = tagResourceResponse{Xmlns: namespace, Metadata: metadata()}

	case "UntagResource":
		err = h.service.UntagResource(values.Get("ResourceArn"), common.QueryList(values, "TagKeys"))
		out = untagResourceResponse{Xmlns: namespace, Metadata: metadata()}

	case "ListTagsForResource":
		var tags map[string]string
		tags, err = h.service.ListTagsForResource(values.Get("ResourceArn"))
		result := listTagsResult{}
		for k, v := range tags {
			result.Tags = append(result.Tags, tagEntry{Key: k, Value: v})
		}
		out = listTagsForResourceResponse{Xmlns: namespace, Result: result, Metadata: metadata()}

	default:
		err = awserr.New("InvalidAction", http.StatusBadRequest,
			"The action "+action+" is not valid for this endpoint.")
	}

	if err != nil {
		common.RespondQueryError(w, namespace, ident.New(), err)
		return
	}
	common.RespondXML(w, http.StatusOK, out)
}

func parseBatchEntries(values url.Values) []snscore.PublishBatchEntry {
	var entries []snscore.PublishBatchEntry
	for i := 1; ; i++ {
		prefix := "PublishBatchRequestEntries.member." + strconv.Itoa(i)
		id := values.Get(prefix + ".Id")
		if id == "" {
			break
		}
		entries = append(entries, snscore.PublishBatchEntry{
			Id:                     id,
			Message:                values.Get(prefix + ".Message"),
			Subject:                values.Get(prefix + ".Subject"),
			MessageGroupId:         values.Get(prefix + ".MessageGroupId"),
			MessageDeduplicationId: values.Get(prefix + ".MessageDeduplicationId"),
		})
	}
	return entries
}

// --- XML response documents ---

type topicEntry struct {
	TopicArn string `xml:"TopicArn"`
}

type attributeEntry struct {
	Key   string `xml:"key"`
	Value string `xml:"value"`
}

func attributeEntries(attrs map[string]string) []attributeEntry {
	var entries []attributeEntry
	for k, v := range attrs {
		entries = append(entries, attributeEntry{Key: k, Value: v})
	}
	return entries
}

type subscriptionEntry struct {
	SubscriptionArn string `xml:"SubscriptionArn"`
	Owner           string `xml:"Owner"`
	Protocol        string `xml:"Protocol"`
	Endpoint        string `xml:"Endpoint"`
	TopicArn        string `xml:"TopicArn"`
}

func subscriptionEntries(subs []*snscore.Subscription) []subscriptionEntry {
	var entries []subscriptionEntry
	for _, sub := range subs {
		entries = append(entries, subscriptionEntry{
			SubscriptionArn: sub.ARN,
			Owner:           sub.Owner,
			Protocol:        sub.Protocol,
			Endpoint:        sub.Endpoint,
			TopicArn:        sub.TopicArn,
		})
	}
	return entries
}

type tagEntry struct {
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

type createTopicResult struct {
	TopicArn string `xml:"TopicArn"`
}

type createTopicResponse struct {
	XMLName  xml.Name          `xml:"CreateTopicResponse"`
	Xmlns    string            `xml:"xmlns,attr"`
	Result   createTopicResult `xml:"CreateTopicResult"`
	Metadata responseMetadata  `xml:"ResponseMetadata"`
}

type deleteTopicResponse struct {
	XMLName  xml.Name         `xml:"DeleteTopicResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type listTopicsResult struct {
	Topics []topicEntry `xml:"Topics>member"`
}

type listTopicsResponse struct {
	XMLName  xml.Name         `xml:"ListTopicsResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Result   listTopicsResult `xml:"ListTopicsResult"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type attributesResult struct {
	Attributes []attributeEntry `xml:"Attributes>entry"`
}

type getTopicAttributesResponse struct {
	XMLName  xml.Name         `xml:"GetTopicAttributesResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Result   attributesResult `xml:"GetTopicAttributesResult"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type setTopicAttributesResponse struct {
	XMLName  xml.Name         `xml:"SetTopicAttributesResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type subscribeResult struct {
	SubscriptionArn string `xml:"SubscriptionArn"`
}

type subscribeResponse struct {
	XMLName  xml.Name         `xml:"SubscribeResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Result   subscribeResult  `xml:"SubscribeResult"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type unsubscribeResponse struct {
	XMLName  xml.Name         `xml:"UnsubscribeResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type confirmSubscriptionResponse struct {
	XMLName  xml.Name         `xml:"ConfirmSubscriptionResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Result   subscribeResult  `xml:"ConfirmSubscriptionResult"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type subscriptionsResult struct {
	Subscriptions []subscriptionEntry `xml:"Subscriptions>member"`
}

type listSubscriptionsResponse struct {
	XMLName  xml.Name            `xml:"ListSubscriptionsResponse"`
	Xmlns    string              `xml:"xmlns,attr"`
	Result   subscriptionsResult `xml:"ListSubscriptionsResult"`
	Metadata responseMetadata    `xml:"ResponseMetadata"`
}

type listSubscriptionsByTopicResponse struct {
	XMLName  xml.Name            `xml:"ListSubscriptionsByTopicResponse"`
	Xmlns    string              `xml:"xmlns,attr"`
	Result   subscriptionsResult `xml:"ListSubscriptionsByTopicResult"`
	Metadata responseMetadata    `xml:"ResponseMetadata"`
}

type getSubscriptionAttributesResponse struct {
	XMLName  xml.Name         `xml:"GetSubscriptionAttributesResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Result   attributesResult `xml:"GetSubscriptionAttributesResult"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type setSubscriptionAttributesResponse struct {
	XMLName  xml.Name         `xml:"SetSubscriptionAttributesResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type publishResult struct {
	MessageId      string `xml:"MessageId"`
	SequenceNumber string `xml:"SequenceNumber,omitempty"`
}

type publishResponse struct {
	XMLName  xml.Name         `xml:"PublishResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Result   publishResult    `xml:"PublishResult"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type batchResultEntry struct {
	Id             string `xml:"Id"`
	MessageId      string `xml:"MessageId"`
	SequenceNumber string `xml:"SequenceNumber,omitempty"`
}

type batchErrorEntry struct {
	Id          string `xml:"Id"`
	Code        string `xml:"Code"`
	Message     string `xml:"Message"`
	SenderFault bool   `xml:"SenderFault"`
}

type publishBatchResult struct {
	Successful []batchResultEntry `xml:"Successful>member"`
	Failed     []batchErrorEntry  `xml:"Failed>member"`
}

type publishBatchResponse struct {
	XMLName  xml.Name           `xml:"PublishBatchResponse"`
	Xmlns    string             `xml:"xmlns,attr"`
	Result   publishBatchResult `xml:"PublishBatchResult"`
	Metadata responseMetadata   `xml:"ResponseMetadata"`
}

type tagResourceResponse struct {
	XMLName  xml.Name         `xml:"TagResourceResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type untagResourceResponse struct {
	XMLName  xml.Name         `xml:"UntagResourceResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}

type listTagsResult struct {
	Tags []tagEntry `xml:"Tags>member"`
}

type listTagsForResourceResponse struct {
	XMLName  xml.Name         `xml:"ListTagsForResourceResponse"`
	Xmlns    string           `xml:"xmlns,attr"`
	Result   listTagsResult   `xml:"ListTagsForResourceResult"`
	Metadata responseMetadata `xml:"ResponseMetadata"`
}
