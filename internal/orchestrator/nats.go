package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/apperr"
	"github.com/mtzanidakis/studioflow/internal/natsbus"
)

// ServeNATS answers invocation requests on studioflow.invoke.<agent> and
// workflow requests on studioflow.workflow until ctx is done. Message
// bodies are the JSON payload (or workflow); replies are JSON.
func (o *Orchestrator) ServeNATS(ctx context.Context, client *natsbus.Client) error {
	invokeSub, err := client.QueueSubscribe(natsbus.TopicInvokeAll, natsbus.QueueInvokers, func(msg *nats.Msg) {
		go o.handleInvokeMsg(ctx, msg)
	})
	if err != nil {
		return err
	}
	workflowSub, err := client.QueueSubscribe(natsbus.TopicWorkflow, natsbus.QueueInvokers, func(msg *nats.Msg) {
		go o.handleWorkflowMsg(ctx, msg)
	})
	if err != nil {
		_ = invokeSub.Unsubscribe()
		return err
	}
	if err := client.Flush(); err != nil {
		o.log.Warn("nats flush failed", "error", err)
	}

	go func() {
		<-ctx.Done()
		_ = invokeSub.Unsubscribe()
		_ = workflowSub.Unsubscribe()
	}()
	return nil
}

func (o *Orchestrator) handleInvokeMsg(ctx context.Context, msg *nats.Msg) {
	name, _ := natsbus.AgentFromTopic(msg.Subject)

	var payload agent.Payload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			resp := Response{Agent: name, Timestamp: o.now()}
			o.fail(&resp, apperr.Validation("payload is not a JSON object: %v", err))
			o.reply(msg, resp)
			return
		}
	}
	o.reply(msg, o.Invoke(ctx, name, payload))
}

func (o *Orchestrator) handleWorkflowMsg(ctx context.Context, msg *nats.Msg) {
	var wf Workflow
	if err := json.Unmarshal(msg.Data, &wf); err != nil {
		o.reply(msg, map[string]any{"status": StatusError, "error_message": "workflow is not valid JSON: " + err.Error()})
		return
	}
	res, err := o.RunWorkflow(ctx, wf)
	if err != nil {
		o.reply(msg, map[string]any{
			"status":        StatusError,
			"error_kind":    apperr.KindOf(err),
			"error_message": err.Error(),
		})
		return
	}
	o.reply(msg, res)
}

func (o *Orchestrator) reply(msg *nats.Msg, v any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		o.log.Error("marshal nats reply", "error", err)
		return
	}
	if err := msg.Respond(data); err != nil {
		o.log.Warn("nats reply failed", "subject", msg.Subject, "error", err)
	}
}

// RequestTimeout bounds NATS clients waiting on an invocation; it leaves
// room for the orchestrator's own timeout.
func RequestTimeout(invokeTimeout time.Duration) time.Duration {
	return invokeTimeout + 5*time.Second
}
