package app

// Event names for frontend communication.
const (
	// EventBridge carries bridge.Message values to the webview. The webview
	// answers through the bound Bridge method.
	EventBridge = "bridge"
)
