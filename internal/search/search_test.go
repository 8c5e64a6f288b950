package search

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/idcs-tools/scimctl/internal/iam"
	"github.com/idcs-tools/scimctl/internal/mocks"
	"github.com/idcs-tools/scimctl/pkg/scim"
)

// fakeDirectory answers cursor queries from a sorted user list and optionally
// deletes every user it returned, like a cleanup run does.
type fakeDirectory struct {
	ids         []string
	deleteSeen  bool
	requests    []iam.SearchRequest
	failOnQuery int
}

func (f *fakeDirectory) SearchUsers(_ context.Context, req iam.SearchRequest) ([]scim.User, error) {
	f.requests = append(f.requests, req)
	if f.failOnQuery > 0 && len(f.requests) == f.failOnQuery {
		return nil, &iam.RequestError{Method: "GET", Path: "/Users", StatusCode: 500}
	}

	cursor := cursorOf(req.Filter)
	var page []scim.User
	for _, id := range f.ids {
		if id > cursor && len(page) < req.Count {
			page = append(page, scim.User{ID: id, UserName: id + "@example.com"})
		}
	}
	if f.deleteSeen {
		f.ids = slices.DeleteFunc(f.ids, func(id string) bool {
			return slices.ContainsFunc(page, func(u scim.User) bool { return u.ID == id })
		})
	}
	if len(page) == 0 {
		return nil, iam.ErrNoResults
	}
	return page, nil
}

func cursorOf(filter string) string {
	const marker = `id gt "`
	i := strings.LastIndex(filter, marker)
	rest := filter[i+len(marker):]
	return rest[:strings.Index(rest, `"`)]
}

func collect(t *testing.T, s *Searcher) ([]string, error) {
	t.Helper()
	var ids []string
	for u, err := range s.All(context.Background()) {
		if err != nil {
			return ids, err
		}
		ids = append(ids, u.ID)
	}
	return ids, nil
}

func TestNewRejectsInvalidPageSize(t *testing.T) {
	_, err := New(&fakeDirectory{}, "", 0)
	require.ErrorIs(t, err, ErrInvalidPageSize)
}

func TestAllVisitsEveryUserOnce(t *testing.T) {
	for _, total := range []int{0, 1, 5, 10, 37} {
		for _, pageSize := range []int{1, 2, 3, 10, 100} {
			for _, deleting := range []bool{false, true} {
				t.Run(fmt.Sprintf("total=%d/page=%d/deleting=%t", total, pageSize, deleting), func(t *testing.T) {
					var ids []string
					for i := 0; i < total; i++ {
						ids = append(ids, fmt.Sprintf("%04x", i*7))
					}
					dir := &fakeDirectory{ids: slices.Clone(ids), deleteSeen: deleting}

					s, err := New(dir, `userName sw "test"`, pageSize)
					require.NoError(t, err)

					got, err := collect(t, s)
					require.NoError(t, err)
					require.Equal(t, ids, got)
					require.True(t, slices.IsSorted(got))
				})
			}
		}
	}
}

func TestAllRequestsPagesWithCursor(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockUserSearcher(ctrl)

	gomock.InOrder(
		gateway.EXPECT().SearchUsers(gomock.Any(), iam.SearchRequest{
			Filter:     `lastSuccessfulLoginDate lt "2024-01-01T00:00:00Z" and id gt ""`,
			SortBy:     "id",
			Attributes: []string{"id", "userName"},
			Count:      2,
		}).Return([]scim.User{{ID: "a"}, {ID: "b"}}, nil),
		gateway.EXPECT().SearchUsers(gomock.Any(), iam.SearchRequest{
			Filter:     `lastSuccessfulLoginDate lt "2024-01-01T00:00:00Z" and id gt "b"`,
			SortBy:     "id",
			Attributes: []string{"id", "userName"},
			Count:      2,
		}).Return([]scim.User{{ID: "c"}, {ID: "d"}}, nil),
		gateway.EXPECT().SearchUsers(gomock.Any(), gomock.Any()).Return(nil, iam.ErrNoResults),
	)

	s, err := New(gateway, `lastSuccessfulLoginDate lt "2024-01-01T00:00:00Z"`, 2)
	require.NoError(t, err)

	got, err := collect(t, s)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b", "c", "d"}, got)
}

func TestAllWithoutResults(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockUserSearcher(ctrl)
	gateway.EXPECT().SearchUsers(gomock.Any(), gomock.Any()).Return(nil, iam.ErrNoResults).Times(1)

	s, err := New(gateway, "", 100)
	require.NoError(t, err)

	got, err := collect(t, s)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestAllYieldsErrorLast(t *testing.T) {
	dir := &fakeDirectory{ids: []string{"1", "2", "3", "4", "5"}, failOnQuery: 2}

	s, err := New(dir, "", 2)
	require.NoError(t, err)

	got, err := collect(t, s)
	require.ErrorIs(t, err, iam.ErrRequestFailed)
	require.Contains(t, err.Error(), `after id "2"`)
	require.Equal(t, []string{"1", "2"}, got)
	require.Len(t, dir.requests, 2)
}

func TestAllStopsEarly(t *testing.T) {
	dir := &fakeDirectory{ids: []string{"1", "2", "3", "4", "5"}}

	s, err := New(dir, "", 2)
	require.NoError(t, err)

	for u, err := range s.All(context.Background()) {
		require.NoError(t, err)
		if u.ID == "1" {
			break
		}
	}
	require.Len(t, dir.requests, 1)
}

func TestAllIsRestartable(t *testing.T) {
	dir := &fakeDirectory{ids: []string{"1", "2", "3"}}

	s, err := New(dir, "", 2)
	require.NoError(t, err)

	first, err := collect(t, s)
	require.NoError(t, err)
	second, err := collect(t, s)
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestAllStopsWhenCursorDoesNotAdvance(t *testing.T) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockUserSearcher(ctrl)

	// a provider ignoring the id predicate keeps answering with the same page
	gateway.EXPECT().SearchUsers(gomock.Any(), gomock.Any()).Return([]scim.User{{ID: "a"}, {ID: "b"}}, nil).Times(2)

	s, err := New(gateway, "", 2)
	require.NoError(t, err)

	got, err := collect(t, s)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, got)
}

func TestAllHonoursCancellation(t *testing.T) {
	dir := &fakeDirectory{ids: []string{"1", "2", "3"}}
	s, err := New(dir, "", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var got []string
	var last error
	for u, err := range s.All(ctx) {
		if err != nil {
			last = err
			break
		}
		got = append(got, u.ID)
		cancel()
	}
	require.ErrorIs(t, last, context.Canceled)
	require.Equal(t, []string{"1"}, got)
}

func TestRequestEscapesBaseFilter(t *testing.T) {
	s, err := New(&fakeDirectory{}, scim.Eq("idcsCreatedBy.value", `app "x"`), 10, WithAttributes("id"))
	require.NoError(t, err)

	req := s.request(`c"d`)
	require.Equal(t, `idcsCreatedBy.value eq "app \"x\"" and id gt "c\"d"`, req.Filter)
	require.Equal(t, []string{"id"}, req.Attributes)
}
