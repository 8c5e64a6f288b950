package fakeuser

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/idcs-tools/scimctl/pkg/scim"
)

func TestNext(t *testing.T) {
	u := New(42).Next()

	require.Equal(t, []string{scim.SchemaUser}, u.Schemas)
	require.Empty(t, u.ID)
	require.NotEmpty(t, u.UserName)
	require.Contains(t, u.UserName, "@")
	require.Equal(t, u.Name.GivenName+" "+u.Name.FamilyName, u.Name.Formatted)
	require.Equal(t, []scim.Email{{Value: u.UserName, Type: "work", Primary: true}}, u.Emails)
	require.NotNil(t, u.BypassNotification)
	require.True(t, *u.BypassNotification)
}

func TestSeedIsReproducible(t *testing.T) {
	a, b := New(7), New(7)
	for i := 0; i < 5; i++ {
		require.Equal(t, a.Next(), b.Next())
	}
}

func TestWireFormat(t *testing.T) {
	b, err := json.Marshal(New(1).Next())
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(b, &doc))
	require.Equal(t, true, doc["urn:ietf:params:scim:schemas:oracle:idcs:extension:user:User:bypassNotification"])
	require.Contains(t, doc, "name")
	require.Contains(t, doc, "emails")
	require.NotContains(t, doc, "id")
}
