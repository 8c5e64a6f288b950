// Package scim contains the wire representation of the SCIM resources and
// messages exchanged with the identity provider.
package scim

import "time"

const (
	// ContentType is sent with every request body.
	ContentType = "application/scim+json"
	// Accept is sent with every request.
	Accept = "application/scim+json,application/json"

	SchemaUser             = "urn:ietf:params:scim:schemas:core:2.0:User"
	SchemaBulkRequest      = "urn:ietf:params:scim:api:messages:2.0:BulkRequest"
	SchemaApp              = "urn:ietf:params:scim:schemas:oracle:idcs:App"
	SchemaAppStatusChanger = "urn:ietf:params:scim:schemas:oracle:idcs:AppStatusChanger"
	SchemaGrant            = "urn:ietf:params:scim:schemas:oracle:idcs:Grant"

	// AttrLastSuccessfulLoginDate is the user state extension attribute holding the last login time.
	AttrLastSuccessfulLoginDate = "urn:ietf:params:scim:schemas:oracle:idcs:extension:userState:User:lastSuccessfulLoginDate"
	// AttrCreatedBy is the id of the app or user that created a resource.
	AttrCreatedBy = "idcsCreatedBy.value"

	AttrID          = "id"
	AttrUserName    = "userName"
	AttrName        = "name"
	AttrDisplayName = "displayName"
)

// Method is the HTTP verb of a bulk operation.
type Method string

const (
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

// BulkOperation is one entry of the Operations array of a bulk request.
type BulkOperation struct {
	Method Method `json:"method"`
	Path   string `json:"path"`
	BulkID string `json:"bulkId,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// BulkRequest bundles independent operations into a single HTTP call.
type BulkRequest struct {
	Schemas    []string        `json:"schemas"`
	Operations []BulkOperation `json:"Operations"`
}

// NewBulkRequest wraps ops in a bulk request message.
func NewBulkRequest(ops []BulkOperation) BulkRequest {
	if ops == nil {
		ops = []BulkOperation{}
	}
	return BulkRequest{
		Schemas:    []string{SchemaBulkRequest},
		Operations: ops,
	}
}

// ListResponse is the envelope returned by search requests.
type ListResponse[T any] struct {
	Schemas      []string `json:"schemas,omitempty"`
	TotalResults int      `json:"totalResults"`
	ItemsPerPage int      `json:"itemsPerPage,omitempty"`
	StartIndex   int      `json:"startIndex,omitempty"`
	Resources    []T      `json:"Resources,omitempty"`
}

type Name struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
	Formatted  string `json:"formatted,omitempty"`
}

type Email struct {
	Value   string `json:"value"`
	Type    string `json:"type,omitempty"`
	Primary bool   `json:"primary,omitempty"`
}

// User is the subset of the SCIM user resource this tool reads and writes.
type User struct {
	Schemas  []string `json:"schemas,omitempty"`
	ID       string   `json:"id,omitempty"`
	UserName string   `json:"userName,omitempty"`
	Name     *Name    `json:"name,omitempty"`
	Emails   []Email  `json:"emails,omitempty"`

	BypassNotification *bool `json:"urn:ietf:params:scim:schemas:oracle:idcs:extension:user:User:bypassNotification,omitempty"`
}

// Ref is a reference to another resource.
type Ref struct {
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

// App is an OAuth application.
type App struct {
	Schemas              []string `json:"schemas,omitempty"`
	ID                   string   `json:"id,omitempty"`
	Name                 string   `json:"name,omitempty"`
	DisplayName          string   `json:"displayName,omitempty"`
	Description          string   `json:"description,omitempty"`
	ClientSecret         string   `json:"clientSecret,omitempty"`
	ClientType           string   `json:"clientType,omitempty"`
	RedirectURIs         []string `json:"redirectUris,omitempty"`
	AllowedGrants        []string `json:"allowedGrants,omitempty"`
	AllURLSchemesAllowed bool     `json:"allUrlSchemesAllowed,omitempty"`
	IsOAuthClient        bool     `json:"isOAuthClient,omitempty"`
	BasedOnTemplate      *Ref     `json:"basedOnTemplate,omitempty"`
}

// AppStatusChanger toggles the active flag of an app.
type AppStatusChanger struct {
	Schemas []string `json:"schemas"`
	Active  bool     `json:"active"`
}

type Entitlement struct {
	AttributeName  string `json:"attributeName"`
	AttributeValue string `json:"attributeValue"`
}

// Grant assigns an entitlement of an app to a grantee.
type Grant struct {
	Schemas        []string    `json:"schemas"`
	Grantee        Ref         `json:"grantee"`
	App            Ref         `json:"app"`
	Entitlement    Entitlement `json:"entitlement"`
	GrantMechanism string      `json:"grantMechanism"`
}

// DateTime formats t the way the identity provider expects timestamps in filters.
func DateTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}
