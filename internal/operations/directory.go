// internal/operations/directory.go
package operations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	jmes "github.com/jmespath/go-jmespath"

	"tenantplane/internal/manager"
	"tenantplane/pkg/upstream"
)

// Register installs the built-in directory operations into the dispatch
// table. Registration panics on a malformed operation, which is the
// right failure mode at startup.
func Register(t *manager.Table) {
	t.MustRegister(manager.Operation{
		Name:    "list-users",
		Handler: listUsers,
	})
	t.MustRegister(manager.Operation{
		Name:     "create-security-group",
		Required: []string{"display_name", "description"},
		Handler:  createSecurityGroup,
	})
}

// listUsers pages the tenant directory. Optional params: top (count),
// select (JMESPath projection over the response payload).
func listUsers(ctx context.Context, oc *manager.OpContext) (*upstream.Response, error) {
	top := 10
	if v, ok := oc.Params["top"]; ok {
		top = toInt(v, top)
	}
	q := url.Values{"$top": {strconv.Itoa(top)}}
	resp, err := oc.Client.Do(ctx, oc.Credential, oc.Tenant.BaseURL, oc.CorrelationID, upstream.Request{
		Method: http.MethodGet,
		Path:   "/v1.0/users",
		Query:  q,
	})
	if err != nil {
		return nil, err
	}
	return project(resp, oc.Params)
}

// createSecurityGroup creates a mail-disabled security group.
func createSecurityGroup(ctx context.Context, oc *manager.OpContext) (*upstream.Response, error) {
	body := map[string]any{
		"displayName":     oc.Params["display_name"],
		"description":     oc.Params["description"],
		"securityEnabled": true,
		"mailEnabled":     false,
		"groupTypes":      []string{},
	}
	resp, err := oc.Client.Do(ctx, oc.Credential, oc.Tenant.BaseURL, oc.CorrelationID, upstream.Request{
		Method: http.MethodPost,
		Path:   "/v1.0/groups",
		Body:   body,
	})
	if err != nil {
		return nil, err
	}
	return project(resp, oc.Params)
}

// project applies an optional JMESPath expression from params["select"]
// to the payload. Non-object results are wrapped under "value" so the
// Result payload stays an object.
func project(resp *upstream.Response, params map[string]any) (*upstream.Response, error) {
	sel, ok := params["select"].(string)
	if !ok || sel == "" {
		return resp, nil
	}
	v, err := jmes.Search(sel, map[string]any(resp.Payload))
	if err != nil {
		return nil, fmt.Errorf("select projection: %w", err)
	}
	if m, ok := v.(map[string]any); ok {
		resp.Payload = m
		return resp, nil
	}
	resp.Payload = map[string]any{"value": v}
	return resp, nil
}

func toInt(v any, def int) int {
	switch t := v.(type) {
	case int:
		return t
	case float64:
		return int(t)
	case string:
		if i, err := strconv.Atoi(t); err == nil {
			return i
		}
	}
	return def
}
