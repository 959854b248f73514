package terminal

func init() {
	RegisterCommand("status", "show operational state, armed status, and live commands", "status", statusCommand)
	RegisterCommand("arm", "arm the robot", "arm", armCommand)
	RegisterCommand("disarm", "disarm the robot, running disarm callbacks", "disarm", disarmCommand)
	RegisterCommand("force_disarm", "clear the error state to disarmed without running callbacks (error state only)", "force_disarm", forceDisarmCommand)
	RegisterCommand("execute", "execute a command with an optional JSON goal", "execute <command> [json goal]", executeCommand)
	RegisterCommand("await", "block until a command finishes", "await <handle> [timeout_ms]", awaitCommand)
	RegisterCommand("yield", "poll a command once, non-blocking beyond timeout_ms", "yield <handle> [timeout_ms]", yieldCommand)
	RegisterCommand("cancel", "cancel one executing command", "cancel <handle>", cancelCommand)
	RegisterCommand("cancel_all", "cancel every executing command", "cancel_all", cancelAllCommand)
	RegisterCommand("get", "get a parameter value", "get <dotted.path>", getParamCommand)
	RegisterCommand("set", "set a parameter value", "set <dotted.path> <json value>", setParamCommand)
	RegisterCommand("list", "list parameters under a prefix", "list [dotted.prefix]", listParamsCommand)
	RegisterCommand("subscribe", "stream pubsub events under a path prefix to this connection", "subscribe <dotted.prefix>", subscribeCommand)
	RegisterCommand("unsubscribe", "stop streaming this connection's subscription", "unsubscribe", unsubscribeCommand)
	RegisterCommand("publish", "not supported; commands are triggered with execute", "publish", publishCommand)
	RegisterCommand("stop", "stop the roverd process", "stop program", stopCommand)
	RegisterCommand("help", "list commands, or show one command's usage", "help [command]", helpCommand)
	RegisterCommand("exit", "close this terminal session", "exit", exitCommand)
	RegisterCommand("quit", "alias for exit", "quit", exitCommand)
}
