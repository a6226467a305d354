package react

import "github.com/effective-security/mcpagent/callbacks"

// Callback receives the events of a query, see the callbacks package for
// the printer, logger and statistics handlers.
type Callback = callbacks.Handler
