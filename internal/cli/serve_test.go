package cli

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lotbridge/internal/config"
)

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serveCmd, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	require.NotNil(t, serveCmd.Flags().Lookup("listen"))
	require.NotNil(t, serveCmd.Flags().Lookup("genesis"))
	assert.Equal(t, "30s", serveCmd.Flags().Lookup("submit-timeout").DefValue)
	assert.Equal(t, "10s", serveCmd.Flags().Lookup("shutdown-timeout").DefValue)
}

func TestServe_SubmitAndShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.DB = filepath.Join(t.TempDir(), "serve.db")
	cfg.Listen = "127.0.0.1:0"

	ready := make(chan string, 1)
	opts := &ServeOptions{
		RootOptions: &RootOptions{
			Format: "text",
			Config: cfg,
			Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
		SubmitTimeout:   5 * time.Second,
		ShutdownTimeout: 5 * time.Second,
		ready:           ready,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cmd := NewServeCommand(opts.RootOptions)
	cmd.SetContext(ctx)

	done := make(chan error, 1)
	go func() { done <- runServe(cmd, opts) }()

	var addr string
	select {
	case addr = <-ready:
	case err := <-done:
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not start")
	}
	base := "http://" + addr

	body := `{"from":"` + deployer + `","method":"legacy.transferAndCall","args":{"to":"0x0000000000000000000000000000000000000000","amount":"1","tag":"0x4d494e54"}}`
	resp, err := http.Post(base+"/v1/tx", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var entry struct {
		Receipt struct {
			Status string `json:"status"`
			Code   string `json:"code"`
			Seq    int64  `json:"seq"`
		} `json:"receipt"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entry))
	assert.Equal(t, "Reverted", entry.Receipt.Status)
	assert.Equal(t, "ZeroAddress", entry.Receipt.Code)
	assert.Equal(t, int64(1), entry.Receipt.Seq)

	metrics, err := http.Get(base + "/metrics")
	require.NoError(t, err)
	raw, err := io.ReadAll(metrics.Body)
	metrics.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(raw), "go_goroutines")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}

	// The reverted transaction was persisted before shutdown.
	out, _, err := execute(t, "replay", "--db", cfg.DB, "--format", "json")
	require.NoError(t, err)
	var report ReplayReport
	decode(t, out, &report)
	assert.Equal(t, 1, report.Reverted)
}
