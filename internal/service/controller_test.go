package service_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/cwbrier63/canslim-monitor/internal/config"
	"github.com/cwbrier63/canslim-monitor/internal/ipc"
	"github.com/cwbrier63/canslim-monitor/internal/service"
)

const controllerYAML = `
database:
  path: %s
  profile: standard
threads:
  breakout_interval: 60s
  position_interval: 30s
  regime_interval: 300s
  maintenance_interval: 300s
server:
  host: 127.0.0.1
  port: 0
ipc:
  socket_path: %s
discord:
  enabled: false
`

func newTestController(t *testing.T) (*service.Controller, string) {
	t.Helper()
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "canslim.db")
	sockPath := filepath.Join(dir, "canslim.sock")
	cfgPath := filepath.Join(dir, "config.yaml")

	body := fmt.Sprintf(controllerYAML, dbPath, sockPath)
	if err := os.WriteFile(cfgPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}

	mgr, err := config.Load(cfgPath)
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	ctrl, err := service.NewController(zap.NewNop(), mgr)
	if err != nil {
		t.Fatalf("NewController: %v", err)
	}
	return ctrl, sockPath
}

func TestControllerRunRespondsToIPCStatusAndShutdown(t *testing.T) {
	ctrl, sockPath := newTestController(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ctrl.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("Run did not return after context cancellation")
		}
	})

	client := ipc.NewClient(sockPath)
	var reply *ipc.Reply
	var err error
	for i := 0; i < 50; i++ {
		reply, err = client.Call("GET_STATUS", nil)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET_STATUS: %v", err)
	}
	if reply.Status != ipc.StatusSuccess {
		t.Errorf("GET_STATUS status = %q, want success (error: %s)", reply.Status, reply.Error)
	}

	forceReply, err := client.Call("FORCE_CHECK", map[string]string{"thread": "maintenance"})
	if err != nil {
		t.Fatalf("FORCE_CHECK: %v", err)
	}
	if forceReply.Status != ipc.StatusQueued {
		t.Errorf("FORCE_CHECK status = %q, want queued", forceReply.Status)
	}

	badReply, err := client.Call("FORCE_CHECK", map[string]string{"thread": "nonsense"})
	if err != nil {
		t.Fatalf("FORCE_CHECK (bad thread): %v", err)
	}
	if badReply.Status != ipc.StatusError {
		t.Errorf("FORCE_CHECK with an unknown thread should reply with an error status, got %q", badReply.Status)
	}
}
