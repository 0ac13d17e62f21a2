// Package api hosts the edge HTTP server: one port, every emulated
// service. Requests carrying an X-Amz-Target header dispatch to a JSON
// service by target prefix; a form-encoded POST to / with an Action
// parameter is the notification service's query protocol; the function
// service claims its REST path prefix; everything else is the object
// store's REST surface.
package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/nimbuslocal/nimbus/internal/config"
	"github.com/nimbuslocal/nimbus/internal/metrics"
	"github.com/nimbuslocal/nimbus/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	cognitoAPI "github.com/nimbuslocal/nimbus/internal/api/cognito"
	ddbAPI "github.com/nimbuslocal/nimbus/internal/api/dynamodb"
	eventsAPI "github.com/nimbuslocal/nimbus/internal/api/events"
	firehoseAPI "github.com/nimbuslocal/nimbus/internal/api/firehose"
	kinesisAPI "github.com/nimbuslocal/nimbus/internal/api/kinesis"
	kmsAPI "github.com/nimbuslocal/nimbus/internal/api/kms"
	lambdaAPI "github.com/nimbuslocal/nimbus/internal/api/lambda"
	logsAPI "github.com/nimbuslocal/nimbus/internal/api/logs"
	s3API "github.com/nimbuslocal/nimbus/internal/api/s3"
	smAPI "github.com/nimbuslocal/nimbus/internal/api/secretsmanager"
	sfnAPI "github.com/nimbuslocal/nimbus/internal/api/stepfunctions"
	snsAPI "github.com/nimbuslocal/nimbus/internal/api/sns"
	sqsAPI "github.com/nimbuslocal/nimbus/internal/api/sqs"
	ssmAPI "github.com/nimbuslocal/nimbus/internal/api/ssm"

	cognitocore "github.com/nimbuslocal/nimbus/internal/core/cognito"
	ddbcore "github.com/nimbuslocal/nimbus/internal/core/dynamodb"
	eventscore "github.com/nimbuslocal/nimbus/internal/core/events"
	firehosecore "github.com/nimbuslocal/nimbus/internal/core/firehose"
	kinesiscore "github.com/nimbuslocal/nimbus/internal/core/kinesis"
	kmscore "github.com/nimbuslocal/nimbus/internal/core/kms"
	lambdacore "github.com/nimbuslocal/nimbus/internal/core/lambda"
	logscore "github.com/nimbuslocal/nimbus/internal/core/logs"
	s3core "github.com/nimbuslocal/nimbus/internal/core/s3"
	smcore "github.com/nimbuslocal/nimbus/internal/core/secretsmanager"
	snscore "github.com/nimbuslocal/nimbus/internal/core/sns"
	sqscore "github.com/nimbuslocal/nimbus/internal/core/sqs"
	sfncore "github.com/nimbuslocal/nimbus/internal/core/stepfunctions"
	ssmcore "github.com/nimbuslocal/nimbus/internal/core/ssm"
)

// jsonHandler is a service handler driven by the X-Amz-Target action
// selector.
type jsonHandler interface {
	Dispatch(action string, w http.ResponseWriter, r *http.Request)
}

type jsonService struct {
	name    string
	handler jsonHandler
}

type Server struct {
	cfg       *config.Config
	registry  *prometheus.Registry
	collector *metrics.Collector
	pool      *worker.Pool

	queues *sqscore.Registry

	jsonServices  map[string]jsonService
	snsHandler    *snsAPI.Handler
	lambdaHandler *lambdaAPI.Handler
	s3Handler     *s3API.Handler
}

func New(cfg *config.Config) *Server {
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	pool := worker.NewPool(worker.PoolConfig{Name: "background-tasks"})
	pool.Start(context.Background())

	accountID := cfg.AWS.AccountID
	region := cfg.AWS.Region
	baseURL := "http://" + cfg.Server.Host + ":" + strconv.Itoa(cfg.Server.Port)

	queues := sqscore.NewRegistry(accountID, region, baseURL, pool)
	objects := s3core.NewEngine(accountID, region)
	tables := ddbcore.NewEngine(accountID, region)
	topics := snscore.New(accountID, region, queues)
	functions := lambdacore.New(accountID, region)
	identity := cognitocore.New(accountID, region)
	logGroups := logscore.New(accountID, region)
	eventBuses := eventscore.New(accountID, region)
	deliveryStreams := firehosecore.New(accountID, region)
	recordStreams := kinesiscore.New(accountID, region)
	secrets := smcore.New(accountID, region)
	keys := kmscore.New(accountID, region)
	workflows := sfncore.New(accountID, region)
	parameters := ssmcore.New(accountID, region)

	s := &Server{
		cfg:           cfg,
		registry:      registry,
		collector:     collector,
		pool:          pool,
		queues:        queues,
		snsHandler:    snsAPI.NewHandler(topics),
		lambdaHandler: lambdaAPI.NewHandler(functions),
		s3Handler:     s3API.NewHandler(objects),
	}

	s.jsonServices = map[string]jsonService{
		"AmazonSQS":                         {name: "sqs", handler: sqsAPI.NewHandler(queues)},
		"DynamoDB_20120810":                 {name: "dynamodb", handler: ddbAPI.NewHandler(tables)},
		"AWSCognitoIdentityProviderService": {name: "cognito", handler: cognitoAPI.NewHandler(identity)},
		"Logs_20140328":                     {name: "logs", handler: logsAPI.NewHandler(logGroups)},
		"AWSEvents":                         {name: "events", handler: eventsAPI.NewHandler(eventBuses)},
		"Firehose_20150804":                 {name: "firehose", handler: firehoseAPI.NewHandler(deliveryStreams)},
		"Kinesis_20131202":                  {name: "kinesis", handler: kinesisAPI.NewHandler(recordStreams)},
		"secretsmanager":                    {name: "secretsmanager", handler: smAPI.NewHandler(secrets)},
		"TrentService":                      {name: "kms", handler: kmsAPI.NewHandler(keys)},
		"AWSStepFunctions":                  {name: "stepfunctions", handler: sfnAPI.NewHandler(workflows)},
		"AmazonSSM":                         {name: "ssm", handler: ssmAPI.NewHandler(parameters)},
	}

	return s
}

// Queues exposes the queue registry so tests can rebase queue URLs onto an
// ephemeral listener.
func (s *Server) Queues() *sqscore.Registry {
	return s.queues
}

func (s *Server) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *Server) Close() {
	s.pool.Stop()
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("/", s.dispatch)
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

	service := s.route(wrapped, r)

	duration := time.Since(start)
	status := strconv.Itoa(wrapped.statusCode)
	s.collector.RecordHTTPRequest(r.Method, service, status)
	s.collector.RecordHTTPDuration(r.Method, service, duration)

	log.Debug().
		Str("service", service).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("status", status).
		Dur("duration", duration).
		Msg("Request handled")
}

// route picks the owning service and returns its name for metrics.
func (s *Server) route(w *responseWriter, r *http.Request) string {
	if target := r.Header.Get("X-Amz-Target"); target != "" {
		prefix, action, ok := strings.Cut(target, ".")
		if !ok {
			action = prefix
		}
		svc, found := s.jsonServices[prefix]
		if !found {
			http.Error(w, "unknown target "+target, http.StatusBadRequest)
			return "unknown"
		}
		svc.handler.Dispatch(action, w, r)
		outcome := "ok"
		if w.statusCode >= http.StatusBadRequest {
			outcome = "error"
		}
		s.collector.RecordOperation(svc.name, action, outcome)
		return svc.name
	}

	if strings.HasPrefix(r.URL.Path, "/2015-03-31/") {
		s.lambdaHandler.ServeHTTP(w, r)
		return "lambda"
	}

	if r.Method == http.MethodPost && r.URL.Path == "/" &&
		strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		s.snsHandler.ServeHTTP(w, r)
		return "sns"
	}

	s.s3Handler.ServeHTTP(w, r)
	return "s3"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
