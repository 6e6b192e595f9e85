package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/config"
	"github.com/mtzanidakis/studioflow/internal/natsbus"
	"github.com/mtzanidakis/studioflow/internal/orchestrator"
	"github.com/mtzanidakis/studioflow/internal/provider"
	"github.com/mtzanidakis/studioflow/internal/registry"
	"github.com/mtzanidakis/studioflow/internal/store"
)

var (
	invokeData  string
	invokeLocal bool
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <agent> [text...]",
	Short: "Invoke an agent and print its response",
	Long: `Invoke sends a request to a running server over NATS and prints the
JSON response. With --local the agent runs in this process against the
configured store instead.

The payload is taken from --data (a JSON object) or built from the
remaining arguments using the agent's main text field.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		setupLogger(cfg.Log)

		name := args[0]
		payload, err := buildPayload(name, strings.Join(args[1:], " "), invokeData)
		if err != nil {
			return err
		}

		var resp orchestrator.Response
		if invokeLocal {
			resp, err = invokeInProcess(cmd.Context(), cfg, name, payload)
		} else {
			resp, err = invokeRemote(cfg, name, payload)
		}
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
		if resp.Status == orchestrator.StatusError {
			return fmt.Errorf("%s: %s", resp.ErrorKind, resp.ErrorMessage)
		}
		return nil
	},
}

func init() {
	invokeCmd.Flags().StringVarP(&invokeData, "data", "d", "", "payload as a JSON object")
	invokeCmd.Flags().BoolVar(&invokeLocal, "local", false, "run the agent in-process instead of through the server")
}

func buildPayload(name, text, data string) (agent.Payload, error) {
	if data != "" {
		var p agent.Payload
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("parse --data: %w", err)
		}
		return p, nil
	}
	if text == "" {
		return agent.Payload{}, nil
	}
	reg, err := registry.New(agent.Catalog(nil, nil)...)
	if err != nil {
		return nil, err
	}
	p, ok := reg.PayloadFromText(name, text)
	if !ok {
		return nil, fmt.Errorf("unknown agent %q (see studioflow agents)", name)
	}
	return p, nil
}

func invokeRemote(cfg *config.Config, name string, payload agent.Payload) (orchestrator.Response, error) {
	client, err := natsbus.NewClientFromURL(cfg.NATSURL())
	if err != nil {
		return orchestrator.Response{}, fmt.Errorf("%w (is studioflow serve running?)", err)
	}
	defer client.Close()

	payload["_source"] = "cli"
	req := orchestrator.Request{Agent: name, Payload: payload, RequestID: uuid.NewString()}

	var resp orchestrator.Response
	timeout := orchestrator.RequestTimeout(cfg.Orchestrator.Timeout)
	if err := client.RequestJSON(natsbus.TopicInvoke(name), req, &resp, timeout); err != nil {
		return resp, fmt.Errorf("invoke %s: %w", name, err)
	}
	return resp, nil
}

func invokeInProcess(ctx context.Context, cfg *config.Config, name string, payload agent.Payload) (orchestrator.Response, error) {
	gw, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return orchestrator.Response{}, fmt.Errorf("init store: %w", err)
	}
	defer gw.Close()

	client := provider.NewFromConfig(cfg.AI)
	reg, err := registry.New(agent.Catalog(client, nil)...)
	if err != nil {
		return orchestrator.Response{}, err
	}
	orch := orchestrator.New(reg, client, gw, orchestrator.WithTimeout(cfg.Orchestrator.Timeout))
	defer orch.Wait()

	payload["_source"] = "cli"
	return orch.Invoke(ctx, name, payload), nil
}
