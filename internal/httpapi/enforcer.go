// Package httpapi exposes a small Gin admin surface over a running
// Coordinator: read-only task/batch introspection for operators, and
// two Casbin-gated mutating endpoints (dead-worker reporting, and a
// graceful stop) that a fleet supervisor can drive.
package httpapi

import (
	"os"
	"path/filepath"

	"github.com/casbin/casbin/v3"
)

const modelConf = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && r.obj == p.obj && r.act == p.act
`

const defaultPolicy = `p, admin, workers, report_dead
p, admin, coordinator, stop
p, viewer, tasks, read
g, admin, viewer
`

// newEnforcer materializes the RBAC model and policy to a temp
// directory (casbin.NewEnforcer only reads from paths) and builds the
// enforcer. roleAssignments lets the caller add operator-specific
// "g, <role>, <role>" grants (e.g. "g, alice, admin") on top of the
// built-in admin/viewer roles.
func newEnforcer(roleAssignments ...string) (*casbin.Enforcer, error) {
	dir, err := os.MkdirTemp("", "dlsc-casbin-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(dir)

	modelPath := filepath.Join(dir, "model.conf")
	policyPath := filepath.Join(dir, "policy.csv")

	policy := defaultPolicy
	for _, g := range roleAssignments {
		policy += g + "\n"
	}

	if err := os.WriteFile(modelPath, []byte(modelConf), 0o600); err != nil {
		return nil, err
	}
	if err := os.WriteFile(policyPath, []byte(policy), 0o600); err != nil {
		return nil, err
	}

	return casbin.NewEnforcer(modelPath, policyPath)
}
