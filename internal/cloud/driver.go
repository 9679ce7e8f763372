// Package cloud defines the cloud driver contract elastiq uses to list,
// launch, and terminate virtual machines on an EC2-compatible fabric. The
// abstraction lets the scheduler core stay unaware of which concrete API
// (EC2, a EC2-compatible OpenStack/Eucalyptus endpoint, or a fake for tests)
// backs a given deployment.
package cloud

import (
	"context"
	"errors"
	"fmt"
)

// ErrTransient marks a failure that the caller should treat as recoverable:
// log it and try again on the next scheduled tick.
var ErrTransient = errors.New("cloud: transient failure")

// InstanceState is the coarse-grained lifecycle state of a cloud instance.
// Only InstanceRunning instances participate in scheduling decisions.
type InstanceState string

const (
	InstanceRunning InstanceState = "running"
	InstanceOther   InstanceState = "other"
)

// Instance is an opaque handle to a cloud VM, carrying just enough identity
// to drive reconciliation against the batch view.
type Instance struct {
	ID          string
	PrivateIPv4 string
	State       InstanceState
}

// LaunchSpec describes the VM template used to request a new instance.
type LaunchSpec struct {
	ImageID  string
	KeyName  string
	Flavour  string
	UserData []byte
}

// Driver is the narrow interface elastiq needs from a cloud fabric.
type Driver interface {
	// ListRunning enumerates running instances. When filterIPs is non-nil,
	// only instances whose private IPv4 appears in filterIPs are returned.
	ListRunning(ctx context.Context, filterIPs map[string]struct{}) ([]Instance, error)

	// Launch requests one new instance from spec.
	Launch(ctx context.Context, spec LaunchSpec) (Instance, error)

	// Terminate requests termination of inst.
	Terminate(ctx context.Context, inst Instance) error
}

// Factory constructs a Driver from a raw key/value configuration section.
type Factory func(ctx context.Context, options map[string]string) (Driver, error)

var registry = map[string]Factory{}

// Register makes a named driver factory available to Lookup. It is meant to
// be called from an init() function in the driver's own package, imported
// for side effects from main (e.g. `_ "elastiq/internal/cloud/ec2"`).
func Register(name string, factory Factory) {
	registry[name] = factory
}

// Lookup constructs the named driver. It returns an error (not ErrTransient)
// if name was never registered — this is a Fatal, startup-time condition.
func Lookup(ctx context.Context, name string, options map[string]string) (Driver, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("cloud: unknown driver %q", name)
	}
	return factory(ctx, options)
}
