// Package batch groups per-record bulk operations into fixed-size batches.
package batch

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/idcs-tools/scimctl/pkg/scim"
)

// ErrInvalidSize is returned by New for batch sizes below one.
var ErrInvalidSize = errors.New("batch size must be at least 1")

// Batch is an ordered list of operations sent as a single bulk request.
type Batch []scim.BulkOperation

// OperationFunc turns a record into the bulk operation to perform on it.
type OperationFunc[T any] func(T) scim.BulkOperation

// Accumulator collects operations until a batch is full. It is not safe for
// concurrent use; one driver goroutine owns it.
type Accumulator[T any] struct {
	size    int
	op      OperationFunc[T]
	pending Batch
}

func New[T any](size int, op OperationFunc[T]) (*Accumulator[T], error) {
	if size < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, size)
	}
	return &Accumulator[T]{
		size:    size,
		op:      op,
		pending: make(Batch, 0, size),
	}, nil
}

// Add appends the operation for record. When the buffer reaches the batch
// size the full batch is returned and the buffer starts over.
func (a *Accumulator[T]) Add(record T) (Batch, bool) {
	op := a.op(record)
	op.BulkID = NewBulkID()
	a.pending = append(a.pending, op)

	if len(a.pending) < a.size {
		return nil, false
	}
	return a.take(), true
}

// Flush returns the buffered operations if there are any.
func (a *Accumulator[T]) Flush() (Batch, bool) {
	if len(a.pending) == 0 {
		return nil, false
	}
	return a.take(), true
}

// Len is the number of operations waiting for the next batch.
func (a *Accumulator[T]) Len() int {
	return len(a.pending)
}

func (a *Accumulator[T]) take() Batch {
	full := a.pending
	a.pending = make(Batch, 0, a.size)
	return full
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewBulkID returns a correlation token for a bulk operation. Tokens created
// by one process are distinct and sort in creation order.
func NewBulkID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// DeleteUser builds the operation deleting a user. A forced delete removes
// the user even when it still owns resources.
func DeleteUser(force bool) OperationFunc[scim.User] {
	return func(u scim.User) scim.BulkOperation {
		path := "/Users/" + url.PathEscape(u.ID)
		if force {
			path += "?forceDelete=true"
		}
		return scim.BulkOperation{
			Method: scim.MethodDelete,
			Path:   path,
		}
	}
}

// CreateUser builds the operation creating a user.
func CreateUser(u scim.User) scim.BulkOperation {
	if len(u.Schemas) == 0 {
		u.Schemas = []string{scim.SchemaUser}
	}
	return scim.BulkOperation{
		Method: scim.MethodPost,
		Path:   "/Users/",
		Data:   u,
	}
}
