// Package sockpoll answers "can I read without blocking?" for sockets, which
// the poll-driven transports ask once per tick.
package sockpoll

import "errors"

// ErrUnsupported is returned when readiness cannot be queried on this
// platform or for this connection; callers fall back to a short read deadline.
var ErrUnsupported = errors.New("sockpoll: readiness query unsupported")
