// Package plugin launches and talks to native extension processes over a
// line-delimited JSON-RPC protocol on stdin/stdout, the mechanism
// cmd/noxy-plugin-dynamodb uses to bridge scripts to DynamoDB (SPEC_FULL.md
// §3). It deliberately knows nothing about internal/value: plugins speak
// plain Go values (nil/bool/float64/string/map/slice, JSON's native set),
// and the caller (internal/vm's native functions) is responsible for
// converting those to and from the language's Value type.
package plugin

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Request is one JSON-RPC call sent to a plugin process.
type Request struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Response is a plugin process's reply: Error is set on failure; otherwise
// Result holds the reply, which may be null.
type Response struct {
	Result interface{} `json:"result,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Client is a running plugin process and the pipes used to talk to it.
type Client struct {
	Name    string
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *bufio.Scanner
	running bool
	lock    sync.Mutex
}

var (
	loaded     = make(map[string]*Client)
	loadedLock sync.Mutex
)

// Load starts (or returns the already-running) plugin process registered
// under name, resolving executableName via PATH, then
// noxy_libs/<name>/<executableName>, then the working directory.
func Load(name, executableName string) (*Client, error) {
	loadedLock.Lock()
	defer loadedLock.Unlock()

	if client, ok := loaded[name]; ok {
		return client, nil
	}

	execPath, err := resolveExecutable(name, executableName)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(execPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start plugin process: %w", err)
	}

	client := &Client{
		Name:    name,
		cmd:     cmd,
		stdin:   stdin,
		stdout:  bufio.NewScanner(stdoutPipe),
		running: true,
	}
	loaded[name] = client
	return client, nil
}

func resolveExecutable(name, executableName string) (string, error) {
	if path, err := exec.LookPath(executableName); err == nil {
		return path, nil
	}
	candidate := filepath.Join("noxy_libs", name, executableName)
	if _, err := os.Stat(candidate); err == nil {
		return filepath.Abs(candidate)
	}
	if _, err := os.Stat(candidate + ".exe"); err == nil {
		return filepath.Abs(candidate + ".exe")
	}
	if _, err := os.Stat(executableName); err == nil {
		return filepath.Abs(executableName)
	}
	return "", fmt.Errorf("plugin executable %q not found in PATH, noxy_libs/%s, or the working directory", executableName, name)
}

// Call sends one RPC and blocks for its reply.
func (c *Client) Call(method string, args []interface{}) (interface{}, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if !c.running {
		return nil, fmt.Errorf("plugin %q is not running", c.Name)
	}

	reqBytes, err := json.Marshal(Request{Method: method, Params: args})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if _, err := c.stdin.Write(append(reqBytes, '\n')); err != nil {
		c.running = false
		return nil, fmt.Errorf("write to plugin: %w", err)
	}

	if !c.stdout.Scan() {
		c.running = false
		if err := c.stdout.Err(); err != nil {
			return nil, fmt.Errorf("read from plugin: %w", err)
		}
		return nil, fmt.Errorf("plugin %q closed its output unexpectedly", c.Name)
	}

	var resp Response
	if err := json.Unmarshal(c.stdout.Bytes(), &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("%s", resp.Error)
	}
	return resp.Result, nil
}
