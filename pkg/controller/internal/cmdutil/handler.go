/*
Copyright Trustridge Contributors. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package cmdutil provides handler wrappers binding controller commands to
// names and REST routes.
package cmdutil

import (
	"net/http"

	"github.com/trustridge/credex-go/pkg/controller/command"
)

// HTTPHandler binds an http.HandlerFunc to a route path and method.
type HTTPHandler struct {
	path   string
	method string
	handle http.HandlerFunc
}

// NewHTTPHandler returns an HTTPHandler for the given route.
func NewHTTPHandler(path, method string, handle http.HandlerFunc) *HTTPHandler {
	return &HTTPHandler{path: path, method: method, handle: handle}
}

// Path returns the route path.
func (h *HTTPHandler) Path() string { return h.path }

// Method returns the HTTP method.
func (h *HTTPHandler) Method() string { return h.method }

// Handle returns the handler func.
func (h *HTTPHandler) Handle() http.HandlerFunc { return h.handle }

// CommandHandler binds a command.Exec to its command and method name.
type CommandHandler struct {
	name   string
	method string
	handle command.Exec
}

// NewCommandHandler returns a CommandHandler for the given command method.
func NewCommandHandler(name, method string, exec command.Exec) *CommandHandler {
	return &CommandHandler{name: name, method: method, handle: exec}
}

// Name returns the command group name.
func (c *CommandHandler) Name() string { return c.name }

// Method returns the command method name.
func (c *CommandHandler) Method() string { return c.method }

// Handle returns the execute function.
func (c *CommandHandler) Handle() command.Exec { return c.handle }
