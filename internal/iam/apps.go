package iam

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/idcs-tools/scimctl/pkg/scim"
)

const (
	appTemplateID         = "CustomWebAppTemplateId"
	appDescription        = "created by scimctl"
	grantMechanismToGroup = "ADMINISTRATOR_TO_GROUP"
	adminAppID            = "IDCSAppId"
)

// lookupID returns the id of the single resource whose attr equals value.
func (c *Client) lookupID(ctx context.Context, resource, attr, value string) (string, error) {
	query := url.Values{}
	query.Set("filter", scim.Eq(attr, value))
	query.Set("attributes", scim.AttrID)

	body, err := c.do(ctx, "GET", resource, query, nil)
	if err != nil {
		return "", err
	}

	res := gjson.ParseBytes(body)
	switch total := res.Get("totalResults").Int(); {
	case total == 0:
		return "", fmt.Errorf("%s with %s %q: %w", resource, attr, value, ErrNotFound)
	case total > 1:
		return "", fmt.Errorf("%s with %s %q: %w", resource, attr, value, ErrAmbiguous)
	}

	id := res.Get("Resources.0.id").String()
	if id == "" {
		return "", fmt.Errorf("%s with %s %q: response carries no id", resource, attr, value)
	}
	c.logger.Debug("resolved id", zap.String("resource", resource), zap.String(attr, value), zap.String("id", id))
	return id, nil
}

// AppID returns the id of the app whose name (OAuth client id) is name.
func (c *Client) AppID(ctx context.Context, name string) (string, error) {
	return c.lookupID(ctx, "/Apps", scim.AttrName, name)
}

// MyAppID returns the id of the app the client authenticates as.
func (c *Client) MyAppID(ctx context.Context) (string, error) {
	id, err := c.AppID(ctx, c.clientID)
	if err != nil {
		return "", err
	}
	c.logger.Info("resolved own app id", zap.String("app_id", id))
	return id, nil
}

func (c *Client) GroupID(ctx context.Context, displayName string) (string, error) {
	return c.lookupID(ctx, "/Groups", scim.AttrDisplayName, displayName)
}

func (c *Client) AppRoleID(ctx context.Context, displayName string) (string, error) {
	return c.lookupID(ctx, "/AppRoles", scim.AttrDisplayName, displayName)
}

// CreateApp registers a confidential OAuth app, activates it and returns its
// client id and client secret.
func (c *Client) CreateApp(ctx context.Context, displayName string, redirectURIs []string) (string, string, error) {
	app := scim.App{
		Schemas:              []string{scim.SchemaApp},
		DisplayName:          displayName,
		Description:          appDescription,
		RedirectURIs:         redirectURIs,
		AllURLSchemesAllowed: true,
		ClientType:           "confidential",
		AllowedGrants:        []string{"authorization_code"},
		IsOAuthClient:        true,
		BasedOnTemplate:      &scim.Ref{Value: appTemplateID},
	}

	body, err := c.do(ctx, "POST", "/Apps", nil, app)
	if err != nil {
		return "", "", err
	}

	res := gjson.ParseBytes(body)
	id := res.Get("id").String()
	if id == "" {
		return "", "", errors.New("create app: response carries no id")
	}

	c.logger.Debug("activating newly created app", zap.String("app_id", id))
	if err := c.SetAppActiveStatus(ctx, id, true); err != nil {
		return "", "", err
	}

	return res.Get("name").String(), res.Get("clientSecret").String(), nil
}

func (c *Client) SetAppActiveStatus(ctx context.Context, id string, active bool) error {
	_, err := c.do(ctx, "PUT", "/AppStatusChanger/"+url.PathEscape(id), nil, scim.AppStatusChanger{
		Schemas: []string{scim.SchemaAppStatusChanger},
		Active:  active,
	})
	return err
}

// DeleteApp deactivates the app, which the identity provider requires, and deletes it.
func (c *Client) DeleteApp(ctx context.Context, id string) error {
	c.logger.Debug("deleting app", zap.String("app_id", id))
	if err := c.SetAppActiveStatus(ctx, id, false); err != nil {
		return err
	}
	_, err := c.do(ctx, "DELETE", "/Apps/"+url.PathEscape(id), nil, nil)
	return err
}

// DeleteAppWithClientID deletes the app registered with the OAuth client id.
// App names are unique so at most one app can match.
func (c *Client) DeleteAppWithClientID(ctx context.Context, clientID string) error {
	id, err := c.AppID(ctx, clientID)
	if err != nil {
		return fmt.Errorf("find app to delete: %w", err)
	}
	return c.DeleteApp(ctx, id)
}

// GrantAppRoleToGroup grants the admin app role to every member of the group.
func (c *Client) GrantAppRoleToGroup(ctx context.Context, appRole, group string) error {
	groupID, err := c.GroupID(ctx, group)
	if err != nil {
		return err
	}
	roleID, err := c.AppRoleID(ctx, appRole)
	if err != nil {
		return err
	}

	_, err = c.do(ctx, "POST", "/Grants", nil, scim.Grant{
		Schemas:        []string{scim.SchemaGrant},
		Grantee:        scim.Ref{Type: "Group", Value: groupID},
		App:            scim.Ref{Value: adminAppID},
		Entitlement:    scim.Entitlement{AttributeName: "appRoles", AttributeValue: roleID},
		GrantMechanism: grantMechanismToGroup,
	})
	return err
}
