////////////////////////////////////////////////////////////////////////////////
// Copyright © 2024 Tidechat                                                  //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package session

import (
	"testing"
	"time"
)

// Tests that the checksum is seeded from the config and rotated on update.
func TestState_UpdateChecksum(t *testing.T) {
	s := NewState(Config{Checksum: "bootstrap"})

	if s.Checksum() != "bootstrap" {
		t.Errorf("Checksum was not seeded from the config."+
			"\nexpected: %s\nreceived: %s", "bootstrap", s.Checksum())
	}

	s.UpdateChecksum("rotated")
	if s.Checksum() != "rotated" {
		t.Errorf("UpdateChecksum did not rotate the token."+
			"\nexpected: %s\nreceived: %s", "rotated", s.Checksum())
	}
}

// Tests that an empty checksum never erases a previously valid one.
func TestState_UpdateChecksum_Empty(t *testing.T) {
	s := NewState(Config{Checksum: "valid"})

	s.UpdateChecksum("")
	if s.Checksum() != "valid" {
		t.Errorf("An empty update overwrote a valid checksum."+
			"\nexpected: %s\nreceived: %s", "valid", s.Checksum())
	}
}

// Tests that user data is absent until assigned.
func TestState_UserData(t *testing.T) {
	s := NewState(Config{})

	if _, ok := s.UserData(); ok {
		t.Error("UserData reported present before assignment.")
	}

	expected := UserData{ID: "u1", Name: "alice", Hash: "abc"}
	s.SetUserData(expected)

	ud, ok := s.UserData()
	if !ok {
		t.Fatal("UserData reported absent after assignment.")
	}
	if ud != expected {
		t.Errorf("UserData returned the wrong identity."+
			"\nexpected: %+v\nreceived: %+v", expected, ud)
	}
}

// Unit test of State.UpdateRights.
func TestState_UpdateRights(t *testing.T) {
	s := NewState(Config{})

	expected := Rights{DeleteMessages: true, BanUsers: true}
	s.UpdateRights(expected)

	if s.Rights() != expected {
		t.Errorf("Rights returned the wrong snapshot."+
			"\nexpected: %+v\nreceived: %+v", expected, s.Rights())
	}
}

// Tests that FillDefaults only touches zero values.
func TestConfig_FillDefaults(t *testing.T) {
	c := Config{MessagesRefresh: time.Second}
	c.FillDefaults()

	if c.MessagesRefresh != time.Second {
		t.Errorf("FillDefaults overwrote a set refresh period."+
			"\nexpected: %s\nreceived: %s", time.Second, c.MessagesRefresh)
	}
	if c.MaintenanceRefresh != DefaultMaintenanceRefresh {
		t.Errorf("FillDefaults did not set the maintenance period."+
			"\nexpected: %s\nreceived: %s",
			DefaultMaintenanceRefresh, c.MaintenanceRefresh)
	}
}
