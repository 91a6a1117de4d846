package protocol

// RPC method names accepted by the gateway.
const (
	MethodConnect = "connect"
	MethodAgent   = "agent"
	MethodHealth  = "health"
)

// Client identity sent during connect.
const (
	ClientName = "larkbridge"
	ClientRole = "operator"
)

// Scopes requested during connect.
var DefaultScopes = []string{"agent:invoke", "sessions:read"}
