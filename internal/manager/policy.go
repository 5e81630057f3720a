// internal/manager/policy.go
package manager

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"
)

// defaultPolicy decides whether the scopes a mechanism actually granted
// cover the permission set the tenant record demands. Deployments can
// swap in a stricter module via Options.PolicyModule.
const defaultPolicy = `package onboarding

default allow = false

granted[s] { s := input.granted[_] }

missing[p] {
	p := input.required[_]
	not granted[p]
}

allow { count(missing) == 0 }
`

// evalPermissions evaluates the onboarding policy with the required and
// granted permission sets. A policy evaluation error is distinct from a
// deny: the caller maps it to validation_unreachable.
func evalPermissions(ctx context.Context, module string, required, granted []string) (bool, []string, error) {
	if module == "" {
		module = defaultPolicy
	}
	r := rego.New(
		rego.Query("data.onboarding"),
		rego.Module("onboarding.rego", module),
		rego.Input(map[string]any{"required": required, "granted": granted}),
	)
	rs, err := r.Eval(ctx)
	if err != nil {
		return false, nil, err
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return false, nil, fmt.Errorf("policy produced no result")
	}
	out, ok := rs[0].Expressions[0].Value.(map[string]any)
	if !ok {
		return false, nil, fmt.Errorf("policy produced unexpected result shape")
	}
	allowed, _ := out["allow"].(bool)
	var missing []string
	if arr, ok := out["missing"].([]any); ok {
		for _, v := range arr {
			if s, ok := v.(string); ok {
				missing = append(missing, s)
			}
		}
	}
	return allowed, missing, nil
}
