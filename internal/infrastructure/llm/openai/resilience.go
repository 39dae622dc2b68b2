package openai

import (
	"regexp"
	"strconv"

	"github.com/gmontinny/ia-rag/internal/core/domain"
	"github.com/gmontinny/ia-rag/internal/infrastructure/resilience"
)

// The client reports HTTP failures only as text: "API returned unexpected status code: 429: ...".
var statusCodeRe = regexp.MustCompile(`status code: (\d{3})`)

func statusCode(err error) (int, bool) {
	m := statusCodeRe.FindStringSubmatch(err.Error())
	if m == nil {
		return 0, false
	}
	code, convErr := strconv.Atoi(m[1])
	return code, convErr == nil
}

func classifyOpenAIError(err error) resilience.ErrorClassification {
	if class, ok := resilience.ClassifyTransport(err); ok {
		return class
	}
	if code, ok := statusCode(err); ok {
		if resilience.IsRetryableHTTPStatus(code) {
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
	class := classifyOpenAIError(err)
	if class.Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func wrapGenerationError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrGeneration) {
		return err
	}
	return domain.WrapError(domain.ErrGeneration, operation, wrapTemporaryIfNeeded(operation, err))
}
