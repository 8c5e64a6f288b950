package batch

import (
	"fmt"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/idcs-tools/scimctl/pkg/scim"
)

func users(n int) []scim.User {
	out := make([]scim.User, n)
	for i := range out {
		out[i] = scim.User{ID: fmt.Sprintf("u%03d", i), UserName: fmt.Sprintf("user%d@example.com", i)}
	}
	return out
}

func TestNewRejectsInvalidSize(t *testing.T) {
	for _, size := range []int{0, -1} {
		_, err := New(size, DeleteUser(false))
		require.ErrorIs(t, err, ErrInvalidSize)
	}
}

func TestAccumulatorBatchCount(t *testing.T) {
	for _, size := range []int{1, 2, 3, 7, 20, 100} {
		for _, records := range []int{0, 1, 2, 19, 20, 21, 99, 100, 101, 250} {
			t.Run(fmt.Sprintf("size=%d/records=%d", size, records), func(t *testing.T) {
				acc, err := New(size, DeleteUser(false))
				require.NoError(t, err)

				var batches []Batch
				for _, u := range users(records) {
					if b, full := acc.Add(u); full {
						require.Len(t, b, size)
						batches = append(batches, b)
					}
				}
				if b, ok := acc.Flush(); ok {
					require.NotEmpty(t, b)
					require.LessOrEqual(t, len(b), size)
					batches = append(batches, b)
				}

				require.Len(t, batches, (records+size-1)/size)

				total := 0
				for _, b := range batches {
					total += len(b)
				}
				require.Equal(t, records, total)
				require.Zero(t, acc.Len())
			})
		}
	}
}

func TestAccumulatorPreservesOrder(t *testing.T) {
	acc, err := New(3, DeleteUser(false))
	require.NoError(t, err)

	var paths []string
	for _, u := range users(5) {
		if b, full := acc.Add(u); full {
			for _, op := range b {
				paths = append(paths, op.Path)
			}
		}
	}
	b, ok := acc.Flush()
	require.True(t, ok)
	for _, op := range b {
		paths = append(paths, op.Path)
	}

	require.Equal(t, []string{"/Users/u000", "/Users/u001", "/Users/u002", "/Users/u003", "/Users/u004"}, paths)
}

func TestFlushEmpty(t *testing.T) {
	acc, err := New(5, CreateUser)
	require.NoError(t, err)

	b, ok := acc.Flush()
	require.False(t, ok)
	require.Nil(t, b)
}

func TestBulkIDsDistinct(t *testing.T) {
	acc, err := New(500, DeleteUser(true))
	require.NoError(t, err)

	var batch Batch
	for _, u := range users(500) {
		if b, full := acc.Add(u); full {
			batch = b
		}
	}
	require.Len(t, batch, 500)

	seen := make(map[string]struct{}, len(batch))
	for _, op := range batch {
		require.Len(t, op.BulkID, 26)
		_, err := ulid.ParseStrict(op.BulkID)
		require.NoError(t, err)

		_, dup := seen[op.BulkID]
		require.False(t, dup, "duplicate bulk id %s", op.BulkID)
		seen[op.BulkID] = struct{}{}
	}
}

func TestDeleteUser(t *testing.T) {
	u := scim.User{ID: "abc"}

	op := DeleteUser(false)(u)
	require.Equal(t, scim.MethodDelete, op.Method)
	require.Equal(t, "/Users/abc", op.Path)
	require.Nil(t, op.Data)

	op = DeleteUser(true)(u)
	require.Equal(t, "/Users/abc?forceDelete=true", op.Path)
}

func TestCreateUser(t *testing.T) {
	op := CreateUser(scim.User{UserName: "jane@example.com"})
	require.Equal(t, scim.MethodPost, op.Method)
	require.Equal(t, "/Users/", op.Path)

	u, ok := op.Data.(scim.User)
	require.True(t, ok)
	require.Equal(t, []string{scim.SchemaUser}, u.Schemas)
	require.Equal(t, "jane@example.com", u.UserName)
}
