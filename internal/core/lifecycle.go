package core

import (
	"context"

	"gopkg.in/yaml.v3"
)

// Configurable is implemented by modules with a section in
// flowgate.yaml, like gateway.http's bind address or hitl.gate's
// threshold. Called after instantiation, before Provision(); the node
// is the raw YAML for that module's section.
type Configurable interface {
	Configure(node *yaml.Node) error
}

// Provisioner is implemented by modules that need setup beyond config
// decoding: applying defaults, opening the request store, registering
// services for other modules (the gate publishes itself this way for
// the HTTP module to find). Runs with a module-scoped AppContext.
type Provisioner interface {
	Provision(ctx *AppContext) error
}

// Validator is implemented by modules that can verify their resolved
// configuration is usable before anything starts. Called after
// Provision(); must be read-only.
type Validator interface {
	Validate() error
}

// Starter is implemented by modules that own background work once the
// whole set is provisioned: the HTTP listener, the sweep scheduler.
type Starter interface {
	Start() error
}

// Stopper is implemented by modules holding resources to release on
// shutdown. Called in reverse order of Start(), under a deadline.
type Stopper interface {
	Stop(ctx context.Context) error
}
