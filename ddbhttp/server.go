package ddbhttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dynalocal/dynalocal/ddbstore"
)

const (
	contentType  = "application/x-amz-json-1.0"
	targetPrefix = "DynamoDB_20120810"
	typeNS       = "com.amazonaws.dynamodb.v20120810"
)

type Server struct {
	store  *ddbstore.Store
	logger *zap.Logger
}

type Option func(*Server)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewHandler builds the HTTP handler for a store. Every operation goes
// through POST / with the action named in the X-Amz-Target header.
func NewHandler(store *ddbstore.Store, opts ...Option) http.Handler {
	s := &Server{store: store, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Post("/", s.dispatch)
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("target", r.Header.Get("X-Amz-Target")),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) {
	target := r.Header.Get("X-Amz-Target")
	prefix, action, found := strings.Cut(target, ".")
	if !found || prefix != targetPrefix {
		s.writeErrorBody(w, "UnknownOperationException", "Invalid X-Amz-Target header: "+target)
		return
	}

	handler, ok := s.handlers()[action]
	if !ok {
		s.writeErrorBody(w, "UnknownOperationException", "Unknown operation: "+action)
		return
	}

	out, err := handler(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", contentType)
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.logger.Warn("encoding response failed", zap.Error(err))
	}
}

type handlerFunc func(r *http.Request) (any, error)

func (s *Server) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		"CreateTable":        s.createTable,
		"DeleteTable":        s.deleteTable,
		"DescribeTable":      s.describeTable,
		"UpdateTable":        s.updateTable,
		"ListTables":         s.listTables,
		"PutItem":            s.putItem,
		"GetItem":            s.getItem,
		"DeleteItem":         s.deleteItem,
		"UpdateItem":         s.updateItem,
		"Query":              s.query,
		"Scan":               s.scan,
		"BatchGetItem":       s.batchGetItem,
		"BatchWriteItem":     s.batchWriteItem,
		"TransactGetItems":   s.transactGetItems,
		"TransactWriteItems": s.transactWriteItems,
	}
}

func decode[T any](r *http.Request) (*T, error) {
	var req T
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return nil, &requestError{code: "SerializationException", message: err.Error()}
	}
	return &req, nil
}

// requestError is a wire-level fault raised before the store is reached.
type requestError struct {
	code    string
	message string
}

func (e *requestError) Error() string { return e.code + ": " + e.message }

type wireError struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

type wireCancellationReason struct {
	Code    string `json:"Code,omitempty"`
	Message string `json:"Message,omitempty"`
	Item    Item   `json:"Item,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		s.writeErrorBody(w, reqErr.code, reqErr.message)
		return
	}

	// TransactionCanceledException carries per-item reasons in the body.
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		reasons := make([]wireCancellationReason, len(canceled.CancellationReasons))
		for i, reason := range canceled.CancellationReasons {
			reasons[i] = wireCancellationReason{Item: wireItem(reason.Item)}
			if reason.Code != nil {
				reasons[i].Code = *reason.Code
			}
			if reason.Message != nil {
				reasons[i].Message = *reason.Message
			}
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusBadRequest)
		body := struct {
			wireError
			CancellationReasons []wireCancellationReason `json:"CancellationReasons"`
		}{
			wireError: wireError{
				Type:    typeNS + "#TransactionCanceledException",
				Message: canceled.ErrorMessage(),
			},
			CancellationReasons: reasons,
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.logger.Warn("encoding error response failed", zap.Error(err))
		}
		return
	}

	var checkFailed *types.ConditionalCheckFailedException
	if errors.As(err, &checkFailed) {
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusBadRequest)
		body := struct {
			wireError
			Item Item `json:"Item,omitempty"`
		}{
			wireError: wireError{
				Type:    typeNS + "#ConditionalCheckFailedException",
				Message: checkFailed.ErrorMessage(),
			},
			Item: wireItem(checkFailed.Item),
		}
		if err := json.NewEncoder(w).Encode(body); err != nil {
			s.logger.Warn("encoding error response failed", zap.Error(err))
		}
		return
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		status := http.StatusBadRequest
		if apiErr.ErrorFault() == smithy.FaultServer {
			status = http.StatusInternalServerError
		}
		s.writeErrorStatus(w, status, apiErr.ErrorCode(), apiErr.ErrorMessage())
		return
	}
	s.writeErrorStatus(w, http.StatusInternalServerError, "InternalFailure", err.Error())
}

func (s *Server) writeErrorBody(w http.ResponseWriter, code, message string) {
	s.writeErrorStatus(w, http.StatusBadRequest, code, message)
}

func (s *Server) writeErrorStatus(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	body := wireError{Type: typeNS + "#" + code, Message: message}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("encoding error response failed", zap.Error(err))
	}
}
