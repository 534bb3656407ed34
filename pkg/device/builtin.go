package device

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/acqlab/instrumentd/pkg/channel"
	"github.com/acqlab/instrumentd/pkg/operator"
	"github.com/acqlab/instrumentd/pkg/operators"
)

// BuildFunc constructs an operator for one device from profile arguments.
// It returns the operator and the value passed to Prepare.
type BuildFunc func(name string, args map[string]interface{}) (operator.Operator, interface{}, error)

// Registry maps device kinds to operator builders. The builtin kinds
// are registered on construction; callers add their own with Register.
type Registry struct {
	hub      *channel.Hub
	builders map[string]BuildFunc
}

// NewRegistry creates a registry with the builtin kinds registered
func NewRegistry(hub *channel.Hub) *Registry {
	r := &Registry{
		hub:      hub,
		builders: make(map[string]BuildFunc),
	}
	r.Register("cpu", r.buildCPUSampler)
	r.Register("serial", r.buildSerial)
	return r
}

// Register adds a builder for a device kind
func (r *Registry) Register(kind string, fn BuildFunc) {
	r.builders[kind] = fn
}

// Build constructs the operator for a device of the given kind
func (r *Registry) Build(kind, name string, args map[string]interface{}) (operator.Operator, interface{}, error) {
	fn, ok := r.builders[kind]
	if !ok {
		return nil, nil, fmt.Errorf("unknown device kind: %s", kind)
	}
	return fn(name, args)
}

// buildCPUSampler makes a host CPU load sampler publishing to the
// channel named after the device
func (r *Registry) buildCPUSampler(name string, args map[string]interface{}) (operator.Operator, interface{}, error) {
	interval, err := argDuration(args, "interval", time.Second)
	if err != nil {
		return nil, nil, err
	}
	out := r.hub.Open(name)
	return operators.NewCPUSampler(interval, out), nil, nil
}

// buildSerial makes a line-protocol instrument reached over TCP, the
// usual transport for serial-to-ethernet bridges
func (r *Registry) buildSerial(name string, args map[string]interface{}) (operator.Operator, interface{}, error) {
	address, err := argString(args, "address")
	if err != nil {
		return nil, nil, err
	}
	setup, err := argStringSlice(args, "setup")
	if err != nil {
		return nil, nil, err
	}
	timeout, err := argDuration(args, "dial_timeout", 5*time.Second)
	if err != nil {
		return nil, nil, err
	}

	dial := func() (io.ReadWriteCloser, error) {
		return net.DialTimeout("tcp", address, timeout)
	}
	return operators.NewSerialHandshake(dial, setup), nil, nil
}

func argString(args map[string]interface{}, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing required argument: %s", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %s must be a string", key)
	}
	return s, nil
}

func argDuration(args map[string]interface{}, key string, def time.Duration) (time.Duration, error) {
	v, ok := args[key]
	if !ok {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return 0, fmt.Errorf("argument %s must be a duration string", key)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("argument %s: %w", key, err)
	}
	return d, nil
}

func argStringSlice(args map[string]interface{}, key string) ([]string, error) {
	v, ok := args[key]
	if !ok {
		return nil, nil
	}
	raw, ok := v.([]interface{})
	if !ok {
		return nil, fmt.Errorf("argument %s must be a list of strings", key)
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("argument %s must be a list of strings", key)
		}
		out = append(out, s)
	}
	return out, nil
}
