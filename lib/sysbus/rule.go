// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sysbus

import (
	"fmt"

	"github.com/godbus/dbus/v5"
)

// MatchRule selects signals by interface and member.
type MatchRule struct {
	Interface string
	Member    string
}

// String renders the rule in bus daemon syntax, for logs and errors.
func (r MatchRule) String() string {
	return fmt.Sprintf("type='signal',interface='%s',member='%s'", r.Interface, r.Member)
}

// Matches reports whether signal was emitted by r's interface and
// member. godbus reports the signal name as "interface.member".
func (r MatchRule) Matches(signal *dbus.Signal) bool {
	return signal != nil && signal.Name == r.Interface+"."+r.Member
}

func (r MatchRule) options() []dbus.MatchOption {
	return []dbus.MatchOption{
		dbus.WithMatchInterface(r.Interface),
		dbus.WithMatchMember(r.Member),
	}
}

// Token identifies an installed subscription. Pass it to Unsubscribe.
type Token struct {
	ID   uint64
	Rule MatchRule
}
