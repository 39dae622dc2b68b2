package elasticsearch

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
)

type StatusError struct {
	Operation  string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e == nil {
		return "elasticsearch status error"
	}
	if strings.TrimSpace(e.Body) == "" {
		return fmt.Sprintf("elasticsearch %s status: %s", e.Operation, e.Status)
	}
	return fmt.Sprintf("elasticsearch %s status: %s: %s", e.Operation, e.Status, strings.TrimSpace(e.Body))
}

func newStatusError(operation string, res *esapi.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(res.Body, 2048))
	return &StatusError{
		Operation:  operation,
		StatusCode: res.StatusCode,
		Status:     res.Status(),
		Body:       string(body),
	}
}

func (e *StatusError) indexMissing() bool {
	return e.StatusCode == http.StatusNotFound && strings.Contains(e.Body, "index_not_found_exception")
}

func classifyElasticError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyTransport(err); ok {
		return class
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if resilience.IsRetryableHTTPStatus(statusErr.StatusCode) {
			return resilience.ErrorClassification{
				Retryable:     true,
				RecordFailure: true,
			}
		}
		return resilience.ErrorClassification{
			Retryable:     false,
			RecordFailure: false,
		}
	}

	return resilience.ErrorClassification{
		Retryable:     false,
		RecordFailure: true,
	}
}

func wrapTemporaryIfNeeded(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	class := classifyElasticError(err)
	if class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}
