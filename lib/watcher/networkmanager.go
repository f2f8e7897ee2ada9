// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package watcher

import (
	"strings"

	"github.com/godbus/dbus/v5"

	"github.com/bureau-foundation/nm-connection-action/lib/sysbus"
)

// NetworkManager bus names, paths and interfaces.
const (
	NetworkManagerDestination = "org.freedesktop.NetworkManager"
	NetworkManagerPath        = dbus.ObjectPath("/org/freedesktop/NetworkManager")
	NetworkManagerInterface   = "org.freedesktop.NetworkManager"

	// ActiveConnectionPrefix is the namespace under which NetworkManager
	// publishes one object per currently active connection. Object
	// paths under it are transient: a reconnect gets a new path.
	ActiveConnectionPrefix = "/org/freedesktop/NetworkManager/ActiveConnection/"

	// ActiveConnectionInterface carries the Id and Uuid properties of
	// the settings profile an active connection was created from.
	ActiveConnectionInterface = "org.freedesktop.NetworkManager.Connection.Active"

	objectManagerInterface = "org.freedesktop.DBus.ObjectManager"
)

var (
	// InterfacesAddedRule announces new objects, including new active
	// connections.
	InterfacesAddedRule = sysbus.MatchRule{Interface: objectManagerInterface, Member: "InterfacesAdded"}

	// InterfacesRemovedRule announces removed objects.
	InterfacesRemovedRule = sysbus.MatchRule{Interface: objectManagerInterface, Member: "InterfacesRemoved"}
)

// underPrefix reports whether path lies in the namespace prefix.
func underPrefix(path dbus.ObjectPath, prefix string) bool {
	return strings.HasPrefix(string(path), prefix)
}
