package scim

import (
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQuote(t *testing.T) {
	var testcases = map[string]struct {
		value    string
		expected string
	}{
		`plain`: {
			value:    "abc",
			expected: `"abc"`,
		},
		`quotes`: {
			value:    `a"b`,
			expected: `"a\"b"`,
		},
		`backslash`: {
			value:    `a\b`,
			expected: `"a\\b"`,
		},
		`empty`: {
			value:    "",
			expected: `""`,
		},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, Quote(tc.value))
		})
	}
}

func TestAnd(t *testing.T) {
	require.Equal(t, `id gt ""`, And("", Gt(AttrID, "")))
	require.Equal(t,
		`idcsCreatedBy.value eq "app" and id gt "42"`,
		And(Eq(AttrCreatedBy, "app"), Gt(AttrID, "42")),
	)
	require.Equal(t,
		`(userName eq "a" or userName eq "b") and id gt "1"`,
		And(`userName eq "a" or userName eq "b"`, Gt(AttrID, "1")),
	)
	require.Empty(t, And())
}

func TestFilterIsPercentEncoded(t *testing.T) {
	filter := And(Eq(AttrDisplayName, `Admins "EU"`), Gt(AttrID, ""))
	encoded := url.Values{"filter": []string{filter}}.Encode()
	require.NotContains(t, encoded, `"`)
	require.NotContains(t, encoded, " ")

	decoded, err := url.ParseQuery(encoded)
	require.NoError(t, err)
	require.Equal(t, filter, decoded.Get("filter"))
}

func TestDateTime(t *testing.T) {
	ts := time.Date(2022, 2, 18, 22, 21, 24, 780_000_000, time.FixedZone("x", 3600))
	require.Equal(t, "2022-02-18T21:21:24Z", DateTime(ts))
}

func TestBulkRequestWireFormat(t *testing.T) {
	req := NewBulkRequest([]BulkOperation{
		{Method: MethodDelete, Path: "/Users/1", BulkID: "abc"},
	})
	b, err := json.Marshal(req)
	require.NoError(t, err)
	require.JSONEq(t, `{
		"schemas": ["urn:ietf:params:scim:api:messages:2.0:BulkRequest"],
		"Operations": [{"method": "DELETE", "path": "/Users/1", "bulkId": "abc"}]
	}`, string(b))

	b, err = json.Marshal(NewBulkRequest(nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"schemas": ["urn:ietf:params:scim:api:messages:2.0:BulkRequest"], "Operations": []}`, string(b))
}

func TestUserExtensionAttribute(t *testing.T) {
	bypass := true
	b, err := json.Marshal(User{UserName: "a@example.com", BypassNotification: &bypass})
	require.NoError(t, err)
	require.JSONEq(t, `{
		"userName": "a@example.com",
		"urn:ietf:params:scim:schemas:oracle:idcs:extension:user:User:bypassNotification": true
	}`, string(b))
}
