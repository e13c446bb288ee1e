package main

import (
	"strings"
	"testing"
)

func TestCreateUserRejectsInvalidRole(t *testing.T) {
	for _, role := range []string{"admin", "manager"} {
		userRole = role
		err := createUserCmd.RunE(createUserCmd, nil)
		if err == nil || !strings.Contains(err.Error(), "invalid role") {
			t.Errorf("role %q: expected invalid role error, got %v", role, err)
		}
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := map[string]bool{"serve": false, "consume": false, "create-admin": false, "create-user": false, "version": false}
	for _, cmd := range rootCmd.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestConsumeAcceptsOptionalTopic(t *testing.T) {
	if err := consumeCmd.Args(consumeCmd, []string{"task_topic"}); err != nil {
		t.Errorf("one topic: %v", err)
	}
	if err := consumeCmd.Args(consumeCmd, []string{"a", "b"}); err == nil {
		t.Error("expected error for two topics")
	}
}
