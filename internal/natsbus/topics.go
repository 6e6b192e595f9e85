package natsbus

import (
	"fmt"
	"strings"
)

// Topic patterns for NATS pub/sub communication.

const invokePrefix = "studioflow.invoke."

// TopicInvoke is the request-reply subject that runs one agent.
func TopicInvoke(agentName string) string {
	return invokePrefix + agentName
}

// AgentFromTopic extracts the agent name from an invoke subject.
func AgentFromTopic(subject string) (string, bool) {
	name, ok := strings.CutPrefix(subject, invokePrefix)
	return name, ok && name != "" && !strings.Contains(name, ".")
}

func TopicEventsAgent(agentName string) string {
	return fmt.Sprintf("events.agent.%s", agentName)
}

const (
	TopicInvokeAll      = invokePrefix + "*"
	TopicWorkflow       = "studioflow.workflow"
	TopicEventsAll      = "events.>"
	TopicEventsWorkflow = "events.workflow"
	TopicEventsSchedule = "events.schedule"
	TopicEventsConfig   = "events.config"

	// QueueInvokers groups invocation handlers so each request runs once.
	QueueInvokers = "studioflow-invokers"
)
