package terminal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"roverd/message"
	"roverd/pubsub"
	"roverd/runtime"
)

func statusCommand(ctx *CommandContext, args []string) error {
	e := ctx.Deps.Engine
	s := ctx.Deps.Safety
	ctx.write("operational_state: %s\n", e.OperationalState())
	ctx.write("classic_state:     %s\n", e.ClassicState())
	ctx.write("armed:             %v\n", s.Armed())
	ctx.write("in_error:          %v\n", s.InError())
	for _, info := range e.Executing() {
		ctx.write("executing: %+v\n", info)
	}
	return nil
}

func armCommand(ctx *CommandContext, args []string) error {
	if err := ctx.Deps.Safety.Arm(); err != nil {
		return err
	}
	ctx.write("armed\n")
	return nil
}

func disarmCommand(ctx *CommandContext, args []string) error {
	if failed := ctx.Deps.Safety.Disarm(); len(failed) > 0 {
		ctx.write("disarm completed with failures: %+v\n", failed)
		return nil
	}
	ctx.write("disarmed\n")
	return nil
}

func forceDisarmCommand(ctx *CommandContext, args []string) error {
	if err := ctx.Deps.Safety.ForceDisarm(); err != nil {
		return err
	}
	ctx.write("force disarmed\n")
	return nil
}

func executeCommand(ctx *CommandContext, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: execute <command> [json goal]")
	}
	var goal map[string]any
	if len(args) > 1 {
		raw := strings.Join(args[1:], " ")
		if err := json.Unmarshal([]byte(raw), &goal); err != nil {
			return fmt.Errorf("invalid goal json: %w", err)
		}
	}
	handle, err := ctx.Deps.Engine.Execute(args[0], goal)
	if err != nil {
		return err
	}
	ctx.write("handle: %s\n", handle)
	return nil
}

func awaitCommand(ctx *CommandContext, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: await <handle> [timeout_ms]")
	}
	result, err := ctx.Deps.Engine.Await(runtime.CommandHandle(args[0]), parseTimeout(args, 1))
	if err != nil {
		return err
	}
	ctx.write("result: %+v\n", result)
	return nil
}

func yieldCommand(ctx *CommandContext, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: yield <handle> [timeout_ms]")
	}
	result, done, err := ctx.Deps.Engine.Yield(runtime.CommandHandle(args[0]), parseTimeout(args, 1))
	if err != nil {
		return err
	}
	ctx.write("done: %v result: %+v\n", done, result)
	return nil
}

func cancelCommand(ctx *CommandContext, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: cancel <handle>")
	}
	if err := ctx.Deps.Engine.Cancel(runtime.CommandHandle(args[0])); err != nil {
		return err
	}
	ctx.write("cancelled\n")
	return nil
}

func cancelAllCommand(ctx *CommandContext, args []string) error {
	ctx.Deps.Engine.CancelAll()
	ctx.write("cancelled all\n")
	return nil
}

func getParamCommand(ctx *CommandContext, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: get <path>")
	}
	value, ok := ctx.Deps.Params.Get(splitDotted(args[0]))
	if !ok {
		return fmt.Errorf("unknown path: %s", args[0])
	}
	ctx.write("%v\n", value)
	return nil
}

func setParamCommand(ctx *CommandContext, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: set <path> <json value>")
	}
	var value any
	if err := json.Unmarshal([]byte(strings.Join(args[1:], " ")), &value); err != nil {
		return fmt.Errorf("invalid value json: %w", err)
	}
	if err := ctx.Deps.Params.Set(splitDotted(args[0]), value); err != nil {
		return err
	}
	ctx.write("ok\n")
	return nil
}

func listParamsCommand(ctx *CommandContext, args []string) error {
	var prefix []string
	if len(args) > 0 {
		prefix = splitDotted(args[0])
	}
	for _, entry := range ctx.Deps.Params.List(prefix) {
		ctx.write("%s = %v\n", strings.Join(entry.Path, "."), entry.Value)
	}
	return nil
}

func subscribeCommand(ctx *CommandContext, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: subscribe <path prefix>")
	}
	prefix := splitDotted(args[0])
	id := ctx.Deps.Router.Subscribe(prefix, pubsub.Options{}, func(path []string, env message.Envelope) {
		ctx.write("[%s] %s: %+v\n", strings.Join(path, "."), env.Payload.Kind(), env.Payload)
	})
	ctx.setSubscription(id)
	ctx.write("subscribed to %s\n", args[0])
	return nil
}

func unsubscribeCommand(ctx *CommandContext, args []string) error {
	ctx.clearSubscription()
	ctx.write("unsubscribed\n")
	return nil
}

func publishCommand(ctx *CommandContext, args []string) error {
	return fmt.Errorf("publish is not supported from the terminal: commands are executed via 'execute'")
}

func stopCommand(ctx *CommandContext, args []string) error {
	if len(args) == 0 || args[0] != "program" {
		return fmt.Errorf("usage: stop program")
	}
	if ctx.Cancel != nil {
		ctx.Cancel()
	}
	ctx.write("stopping\n")
	return nil
}

func helpCommand(ctx *CommandContext, args []string) error {
	if len(args) == 0 {
		for _, info := range DefaultRegistry.ListCommands() {
			ctx.write("%-12s %s\n", info.Name, info.Description)
		}
		return nil
	}
	info, ok := DefaultRegistry.GetCommand(args[0])
	if !ok {
		return fmt.Errorf("unknown command: %s", args[0])
	}
	ctx.write("%s\n", info.Usage)
	return nil
}

func exitCommand(ctx *CommandContext, args []string) error {
	return errExit
}

func parseTimeout(args []string, idx int) time.Duration {
	if idx >= len(args) {
		return 0
	}
	ms, err := strconv.Atoi(args[idx])
	if err != nil || ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

func splitDotted(raw string) []string {
	raw = strings.Trim(raw, ".")
	if raw == "" {
		return nil
	}
	return strings.Split(raw, ".")
}
