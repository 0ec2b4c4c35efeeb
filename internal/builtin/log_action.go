package builtin

import (
	"context"
	"fmt"
	"strings"

	"github.com/nerrad567/gray-logic-rules/internal/automation"
)

var logSchema = automation.TypeSchema{
	Label:       "Log",
	Description: "Writes a message and the rule's inputs to the service log",
	Parameters: []automation.ParameterDescriptor{
		{Name: "message", Type: automation.ParamText, Default: "rule fired"},
		{Name: "level", Type: automation.ParamText, Default: "info", Description: "debug, info, warn or error"},
	},
}

type logAction struct {
	logger  Logger
	message string
	level   string
}

func newLogFactory(deps Deps) automation.HandlerFactory {
	return func(m automation.Module) (automation.Handler, error) {
		message, err := m.Configuration.GetString("message", "rule fired")
		if err != nil {
			return nil, err
		}
		level, err := m.Configuration.GetString("level", "info")
		if err != nil {
			return nil, err
		}
		level = strings.ToLower(level)
		switch level {
		case "debug", "info", "warn", "error":
		default:
			return nil, fmt.Errorf("unknown log level %q", level)
		}
		return &logAction{logger: deps.Logger, message: message, level: level}, nil
	}
}

func (a *logAction) Execute(_ context.Context, inputs automation.Inputs) (automation.Outputs, error) {
	args := make([]any, 0, 2*len(inputs))
	for k, v := range inputs {
		args = append(args, k, v)
	}

	switch a.level {
	case "debug":
		a.logger.Debug(a.message, args...)
	case "warn":
		a.logger.Warn(a.message, args...)
	case "error":
		a.logger.Error(a.message, args...)
	default:
		a.logger.Info(a.message, args...)
	}
	return automation.Outputs{}, nil
}

func (a *logAction) Dispose() error { return nil }
