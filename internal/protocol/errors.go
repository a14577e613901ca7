package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion    = "E_PROTO_VERSION"

	// Session routing/state.
	ErrNoSession    = "E_NO_SESSION"
	ErrSessionOpen  = "E_SESSION_OPEN"
	ErrNotFound     = "E_NOT_FOUND"
	ErrAnchorLost   = "E_ANCHOR_LOST"
	ErrLookupFailed = "E_LOOKUP_FAILED"

	// Rule layer.
	ErrBadRequest = "E_BAD_REQUEST"
	ErrInternal   = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrProtoVersion:    {},
	ErrNoSession:       {},
	ErrSessionOpen:     {},
	ErrNotFound:        {},
	ErrAnchorLost:      {},
	ErrLookupFailed:    {},
	ErrBadRequest:      {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
