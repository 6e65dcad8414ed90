package proto

import "github.com/invopop/jsonschema"

// Schemas reflects the wire contract so clients can fetch it from the
// /schema endpoint instead of reverse-engineering frames.
func Schemas() map[string]*jsonschema.Schema {
	return map[string]*jsonschema.Schema{
		"clientFrame":  jsonschema.Reflect(&ClientFrame{}),
		"heartbeatAck": jsonschema.Reflect(&heartbeatAck{}),
	}
}
