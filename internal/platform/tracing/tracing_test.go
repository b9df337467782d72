package tracing

import (
	"context"
	"testing"
)

func TestInit_disabled(t *testing.T) {
	shutdown, err := Init(context.Background(), "")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}
