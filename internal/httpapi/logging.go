package httpapi

import "github.com/rs/zerolog"

// zlog is an optional structured logger installed by SetLogger. No handler
// in this package writes to it.
var zlog *zerolog.Logger

// SetLogger installs a structured logger used by the HTTP layer.
func SetLogger(l zerolog.Logger) { zlog = &l }
