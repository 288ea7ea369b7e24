// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Inkwell Contributors

// Package toolapi is the SDK for out-of-process tool plugins. A plugin
// is a standalone binary that implements RemoteTool and calls Serve from
// main; the gateway launches it from a plugin directory and routes tool
// calls to it over go-plugin's net/rpc protocol.
package toolapi

import (
	"net/rpc"

	goplugin "github.com/hashicorp/go-plugin"
)

const (
	protocolVersion = 1
	magicCookieKey  = "INKWELL_PLUGIN"
	magicCookieVal  = "aW5rd2VsbC10b29sLXBsdWdpbg==" // "inkwell-tool-plugin" base64
)

// PluginName is the dispense key for the tool plugin.
const PluginName = "tool"

// RemoteTool executes tool calls on behalf of the gateway. Arguments
// arrive as the raw JSON the model produced; the returned payload goes
// back to the model as the tool result.
type RemoteTool interface {
	Execute(callID, toolName, argsJSON string) (string, error)
}

// HandshakeConfig is shared by the gateway and every plugin binary. The
// cookie is a compatibility marker, not a security boundary.
func HandshakeConfig() goplugin.HandshakeConfig {
	return goplugin.HandshakeConfig{
		ProtocolVersion:  protocolVersion,
		MagicCookieKey:   magicCookieKey,
		MagicCookieValue: magicCookieVal,
	}
}

// PluginMap returns the plugin set served over the handshake.
func PluginMap(impl RemoteTool) map[string]goplugin.Plugin {
	return map[string]goplugin.Plugin{
		PluginName: &Plugin{Impl: impl},
	}
}

// Serve runs the plugin side of the protocol. It never returns; call it
// last in the plugin's main.
func Serve(impl RemoteTool) {
	goplugin.Serve(&goplugin.ServeConfig{
		HandshakeConfig: HandshakeConfig(),
		Plugins:         PluginMap(impl),
	})
}

// ExecuteArgs is the wire form of one tool call.
type ExecuteArgs struct {
	CallID    string
	ToolName  string
	Arguments string
}

// ExecuteReply is the wire form of a tool result.
type ExecuteReply struct {
	Payload string
}

// Plugin is the go-plugin glue for RemoteTool. The gateway side leaves
// Impl nil and uses the client half only.
type Plugin struct {
	Impl RemoteTool
}

var _ goplugin.Plugin = (*Plugin)(nil)

func (p *Plugin) Server(*goplugin.MuxBroker) (any, error) {
	return &rpcServer{impl: p.Impl}, nil
}

func (p *Plugin) Client(_ *goplugin.MuxBroker, c *rpc.Client) (any, error) {
	return &rpcClient{client: c}, nil
}

type rpcServer struct {
	impl RemoteTool
}

func (s *rpcServer) Execute(args ExecuteArgs, reply *ExecuteReply) error {
	payload, err := s.impl.Execute(args.CallID, args.ToolName, args.Arguments)
	if err != nil {
		return err
	}
	reply.Payload = payload
	return nil
}

type rpcClient struct {
	client *rpc.Client
}

var _ RemoteTool = (*rpcClient)(nil)

func (c *rpcClient) Execute(callID, toolName, argsJSON string) (string, error) {
	args := ExecuteArgs{CallID: callID, ToolName: toolName, Arguments: argsJSON}
	var reply ExecuteReply
	if err := c.client.Call("Plugin.Execute", args, &reply); err != nil {
		return "", err
	}
	return reply.Payload, nil
}
