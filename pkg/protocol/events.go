package protocol

// Event names pushed from the gateway.
const (
	EventConnectChallenge = "connect.challenge"
	EventAgent            = "agent"
	EventHealth           = "health"
	EventShutdown         = "shutdown"
)

// Stream discriminators inside event/agent payloads.
const (
	StreamAssistant = "assistant"
	StreamLifecycle = "lifecycle"
)

// Lifecycle phases terminating a run.
const (
	PhaseEnd   = "end"
	PhaseError = "error"
)
