// Package fakeuser produces synthetic users for load testing a tenant.
package fakeuser

import (
	"sync"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/idcs-tools/scimctl/pkg/scim"
)

// Generator creates random users. It is safe for concurrent use.
type Generator struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
}

// New returns a Generator. A zero seed picks a random one.
func New(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// Next returns a user with a random name whose email is both its user name
// and primary work address. Welcome notifications are suppressed.
func (g *Generator) Next() scim.User {
	g.mu.Lock()
	given, family, email := g.faker.FirstName(), g.faker.LastName(), g.faker.Email()
	g.mu.Unlock()

	bypass := true
	return scim.User{
		Schemas:  []string{scim.SchemaUser},
		UserName: email,
		Name: &scim.Name{
			GivenName:  given,
			FamilyName: family,
			Formatted:  given + " " + family,
		},
		Emails: []scim.Email{{
			Value:   email,
			Type:    "work",
			Primary: true,
		}},
		BypassNotification: &bypass,
	}
}
