package gateway

import "errors"

var ErrMissingToken = errors.New("DISCORD_TOKEN is not set")
