package controller

import "errors"

// Error kinds from spec §7: the controller only ever fails in these ways.
var (
	ErrChannelNotFound   = errors.New("controller: channel not found")
	ErrChannelEmpty      = errors.New("controller: channel has no members")
	ErrAgentNotInitiated = errors.New("controller: agent not registered")
	ErrConnNotFound      = errors.New("controller: connection not found")
	ErrMessageSendError  = errors.New("controller: message send error")
)
