// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"context"
	"fmt"
	"time"

	"github.com/godbus/dbus/v5"
	"golang.org/x/sync/errgroup"
)

// DefaultPropertyTimeout bounds each property read.
const DefaultPropertyTimeout = 1000 * time.Millisecond

// PropertyReader reads one D-Bus property. *sysbus.Session implements
// it. Implementations must allow concurrent calls.
type PropertyReader interface {
	ReadProperty(ctx context.Context, destination string, path dbus.ObjectPath, iface, property string, timeout time.Duration) (dbus.Variant, error)
}

// Resolver reads the stable identity of an active connection.
type Resolver struct {
	reader  PropertyReader
	timeout time.Duration
}

// NewResolver returns a Resolver bounding each read by timeout. A
// non-positive timeout selects DefaultPropertyTimeout.
func NewResolver(reader PropertyReader, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = DefaultPropertyTimeout
	}
	return &Resolver{reader: reader, timeout: timeout}
}

// Resolve reads Id and Uuid from the active connection at path. Both
// reads are issued together; if either fails the whole resolution fails
// with a *ResolveError and no retry is attempted.
func (r *Resolver) Resolve(ctx context.Context, path dbus.ObjectPath) (Identity, error) {
	var id, uuid string

	group, groupContext := errgroup.WithContext(ctx)
	group.Go(func() error {
		value, err := r.readString(groupContext, path, "Id")
		id = value
		return err
	})
	group.Go(func() error {
		value, err := r.readString(groupContext, path, "Uuid")
		uuid = value
		return err
	})
	if err := group.Wait(); err != nil {
		return Identity{}, &ResolveError{Path: path, Err: err}
	}

	return Identity{ID: id, UUID: uuid}, nil
}

func (r *Resolver) readString(ctx context.Context, path dbus.ObjectPath, property string) (string, error) {
	variant, err := r.reader.ReadProperty(ctx, NetworkManagerDestination, path, ActiveConnectionInterface, property, r.timeout)
	if err != nil {
		return "", err
	}
	value, ok := variant.Value().(string)
	if !ok {
		return "", fmt.Errorf("property %s has signature %s, want s", property, variant.Signature())
	}
	return value, nil
}
