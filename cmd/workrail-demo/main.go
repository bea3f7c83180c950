// Command workrail-demo drives one workflow run end to end against a
// local data directory, using a directory of YAML workflow definitions
// and the built-in linear step interpreter.
//
// # Configuration
//
// Environment variables:
//
//	WORKRAIL_DATA_DIR          - durable data root (default: $HOME/.workrail/data)
//	WORKRAIL_WORKFLOW_DIR      - directory of <workflowId>.yaml files (default: "./workflows")
//	WORKRAIL_WORKFLOW_ID       - workflow to run (default: "demo")
//	WORKRAIL_LOCK_TTL          - session lock TTL (default: "1m")
//	WORKRAIL_CONTEXT_MAX_BYTES - start_workflow context size cap (default: 262144)
//
// # Example
//
//	WORKRAIL_WORKFLOW_DIR=./cmd/workrail-demo/workflows WORKRAIL_WORKFLOW_ID=demo go run ./cmd/workrail-demo
package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"goa.design/clue/log"

	"github.com/workrail/engine/eventlog"
	"github.com/workrail/engine/fsx"
	"github.com/workrail/engine/gate"
	"github.com/workrail/engine/keyring"
	"github.com/workrail/engine/snapshot"
	"github.com/workrail/engine/statemachine"
	"github.com/workrail/engine/telemetry"
	"github.com/workrail/engine/workflowdef"
	"github.com/workrail/engine/workflowdef/linearinterp"
	"github.com/workrail/engine/workflowdef/yamlprovider"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatal(err)
	}
}

func run() error {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	workflowDir := envOr("WORKRAIL_WORKFLOW_DIR", "./workflows")
	workflowID := envOr("WORKRAIL_WORKFLOW_ID", "demo")
	lockTTL := envDurationOr("WORKRAIL_LOCK_TTL", time.Minute)
	maxContextBytes := envIntOr("WORKRAIL_CONTEXT_MAX_BYTES", 262144)

	dataDir, err := resolveDataDir()
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	fs := fsx.New()
	if err := dataDir.EnsureLayout(fs); err != nil {
		return fmt.Errorf("ensure data dir layout: %w", err)
	}

	events := eventlog.New(fs, dataDir)
	snapshots := snapshot.New(fs, dataDir.SnapshotsRoot())
	pinnedCAS := snapshot.New(fs, dataDir.PinnedWorkflowsRoot())
	pinned, err := workflowdef.NewPinnedWorkflowStore(pinnedCAS, nil)
	if err != nil {
		return fmt.Errorf("open pinned workflow store: %w", err)
	}
	kr, err := keyring.Load(fs, dataDir.KeyringPath())
	if err != nil {
		return fmt.Errorf("load keyring: %w", err)
	}
	g := gate.New(fs, dataDir, events, lockTTL, uuid.NewString())

	engine := statemachine.New(statemachine.Config{
		FS:              fs,
		DataDir:         dataDir,
		Gate:            g,
		Events:          events,
		Snapshots:       snapshots,
		Pinned:          pinned,
		Keyring:         kr,
		Provider:        yamlprovider.New(workflowDir),
		Interpreter:     linearinterp.Interpreter{},
		MaxContextBytes: maxContextBytes,
		Logger:          telemetry.NewClueLogger(),
		Metrics:         telemetry.NewClueMetrics(),
	})

	resp, err := engine.StartWorkflow(ctx, statemachine.StartInput{WorkflowID: workflowID})
	if err != nil {
		return fmt.Errorf("start workflow: %w", err)
	}
	printResponse("start_workflow", resp)

	for !resp.IsComplete {
		resp, err = engine.ContinueWorkflow(ctx, statemachine.ContinueInput{
			Intent:     statemachine.IntentAdvance,
			StateToken: resp.StateToken,
			AckToken:   resp.AckToken,
		})
		if err != nil {
			return fmt.Errorf("continue workflow: %w", err)
		}
		printResponse("continue_workflow", resp)
	}
	return nil
}

func resolveDataDir() (fsx.DataDir, error) {
	return fsx.Resolve()
}

func printResponse(op string, resp *statemachine.Response) {
	b, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		stdlog.Printf("%s: marshal response: %v", op, err)
		return
	}
	fmt.Printf("=== %s ===\n%s\n", op, b)
}

const defaultTimeout = 30 * time.Second

func envOr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envDurationOr(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func envIntOr(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}
