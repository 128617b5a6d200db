// Package gateway is the reverse-proxy front door (C5): it authenticates
// every request (JWT portal sessions or opaque API tokens), resolves and
// auto-starts the target tenant, proxies tenant-bound traffic, serves the
// portal's own REST surface for workspace/team/sandbox/task lifecycle, and
// accepts tenant-to-orchestrator webhooks.
package gateway

import (
	"github.com/kanbanhq/controlplane/pkg/agent"
	"github.com/kanbanhq/controlplane/pkg/broker"
	"github.com/kanbanhq/controlplane/pkg/config"
	"github.com/kanbanhq/controlplane/pkg/store"
)

// Deps are the gateway's constructor-injected collaborators, mirroring the
// orchestrator's Deps pattern so every handler is testable against
// in-memory fakes rather than package-level singletons.
type Deps struct {
	Store      store.Store
	Broker     *broker.Broker
	Config     *config.Config
	Dispatcher *agent.Dispatcher
}
