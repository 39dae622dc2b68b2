package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrTemporary     = errors.New("temporary failure")
	ErrRetrieval     = errors.New("retrieval failure")
	ErrGeneration    = errors.New("generation failure")
	ErrDataIntegrity = errors.New("data integrity error")
	ErrUnanswerable  = errors.New("unanswerable")
)

// Store names used to identify the backend behind a retrieval failure.
const (
	StoreElasticsearch = "elasticsearch"
	StoreQdrant        = "qdrant"
	StoreNeo4j         = "neo4j"
	StoreEmbedder      = "embedder"
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// StoreError reports a failed call against one of the backing stores.
// It always matches ErrRetrieval.
type StoreError struct {
	Store string
	Op    string
	Err   error
}

func NewStoreError(store, op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StoreError
	if errors.As(err, &existing) {
		return err
	}
	return &StoreError{Store: store, Op: op, Err: err}
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrRetrieval, e.Err}
}

// FailedStore returns the store named by a StoreError in err's chain.
func FailedStore(err error) (string, bool) {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Store, true
	}
	return "", false
}
