package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/acqlab/instrumentd/pkg/logging"
)

func TestShutdownRunsInReverseOrder(t *testing.T) {
	m := New(time.Second, logging.New(logging.ERROR, false))

	var order []string
	for _, name := range []string{"store", "devices", "api"} {
		name := name
		m.Register(name, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	m.Shutdown()

	if len(order) != 3 || order[0] != "api" || order[2] != "store" {
		t.Errorf("Expected reverse registration order, got %v", order)
	}
}

func TestShutdownContinuesPastErrors(t *testing.T) {
	m := New(time.Second, logging.New(logging.ERROR, false))

	ran := false
	m.Register("first", func(ctx context.Context) error {
		ran = true
		return nil
	})
	m.Register("failing", func(ctx context.Context) error {
		return errors.New("boom")
	})

	m.Shutdown()

	if !ran {
		t.Error("Expected later steps to run despite an earlier error")
	}
}
