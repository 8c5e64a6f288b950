//go:generate mockgen -source search.go -destination ../mocks/mock_search.go -package mocks UserSearcher

// Package search pages through users with a cursor on the user id.
//
// The identity provider does not support stable offsets: deleting users while
// paging with startIndex shifts the result set and skips records. Instead
// every query asks for the users sorted by id whose id is greater than the
// last id seen, which is unaffected by concurrent deletes.
package search

import (
	"context"
	"errors"
	"fmt"
	"iter"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/idcs-tools/scimctl/internal/iam"
	"github.com/idcs-tools/scimctl/pkg/logger"
	"github.com/idcs-tools/scimctl/pkg/scim"
)

var tracer = otel.Tracer("internal/search")

// UserSearcher returns one page of users, or iam.ErrNoResults when the page is empty.
type UserSearcher interface {
	SearchUsers(ctx context.Context, req iam.SearchRequest) ([]scim.User, error)
}

// ErrInvalidPageSize is returned by New for page sizes below one.
var ErrInvalidPageSize = errors.New("page size must be at least 1")

// DefaultAttributes are the user attributes requested when none are configured.
var DefaultAttributes = []string{scim.AttrID, scim.AttrUserName}

type Searcher struct {
	gateway    UserSearcher
	filter     string
	pageSize   int
	attributes []string
	logger     logger.Logger
}

type Option func(*Searcher)

func WithAttributes(attrs ...string) Option {
	return func(s *Searcher) {
		s.attributes = attrs
	}
}

func WithLogger(l logger.Logger) Option {
	return func(s *Searcher) {
		s.logger = l
	}
}

// New returns a Searcher for the users matching filter. An empty filter matches every user.
func New(gateway UserSearcher, filter string, pageSize int, opts ...Option) (*Searcher, error) {
	if pageSize < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, pageSize)
	}

	s := &Searcher{
		gateway:    gateway,
		filter:     filter,
		pageSize:   pageSize,
		attributes: DefaultAttributes,
		logger:     logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// request builds the query for the page following cursor.
func (s *Searcher) request(cursor string) iam.SearchRequest {
	return iam.SearchRequest{
		Filter:     scim.And(s.filter, scim.Gt(scim.AttrID, cursor)),
		SortBy:     scim.AttrID,
		Attributes: s.attributes,
		Count:      s.pageSize,
	}
}

// All returns the matching users in increasing id order. Pages are fetched
// lazily as the sequence is consumed and every range over the sequence starts
// a new session from the beginning. Running out of results ends the sequence;
// any other failure is yielded once as the last element.
func (s *Searcher) All(ctx context.Context) iter.Seq2[scim.User, error] {
	return func(yield func(scim.User, error) bool) {
		// the empty string sorts before every id
		cursor := ""
		pages := 0

		for {
			if err := ctx.Err(); err != nil {
				yield(scim.User{}, err)
				return
			}

			users, err := s.page(ctx, cursor)
			if errors.Is(err, iam.ErrNoResults) {
				s.logger.Debug("search exhausted", zap.Int("pages", pages), zap.String("cursor", cursor))
				return
			}
			if err != nil {
				yield(scim.User{}, fmt.Errorf("search users after id %q: %w", cursor, err))
				return
			}
			pages++

			advanced := false
			for _, user := range users {
				if user.ID <= cursor {
					s.logger.Warn("skipping out of order user", zap.String("user_id", user.ID), zap.String("cursor", cursor))
					continue
				}
				cursor = user.ID
				advanced = true
				if !yield(user, nil) {
					return
				}
			}

			if !advanced {
				s.logger.Warn("search page did not advance the cursor, stopping", zap.String("cursor", cursor))
				return
			}
		}
	}
}

func (s *Searcher) page(ctx context.Context, cursor string) ([]scim.User, error) {
	ctx, span := tracer.Start(ctx, "search.page")
	defer span.End()

	req := s.request(cursor)
	span.SetAttributes(attribute.String("scim.cursor", cursor), attribute.Int("scim.count", req.Count))
	s.logger.Debug("search filter", zap.String("filter", req.Filter))

	users, err := s.gateway.SearchUsers(ctx, req)
	span.SetAttributes(attribute.Int("scim.results", len(users)))
	return users, err
}
