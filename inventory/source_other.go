//go:build !windows
// +build !windows

package inventory

import "context"

type RegistrySource struct{}

func (RegistrySource) Name() string { return "registry" }

func (RegistrySource) Records(context.Context) ([]RawRecord, error) {
	return nil, ErrUnsupportedPlatform
}

type PackageSource struct{}

func (PackageSource) Name() string { return "packages" }

func (PackageSource) Records(context.Context) ([]RawRecord, error) {
	return nil, ErrUnsupportedPlatform
}

type CapabilitySource struct{}

func (CapabilitySource) Name() string { return "capabilities" }

func (CapabilitySource) Records(context.Context) ([]RawRecord, error) {
	return nil, ErrUnsupportedPlatform
}
