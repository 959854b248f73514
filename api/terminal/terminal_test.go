package terminal

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"roverd/description"
	"roverd/param"
	"roverd/pubsub"
	"roverd/runtime"
	"roverd/safety"
	"roverd/state"
)

func testDeps(t *testing.T) Deps {
	t.Helper()
	robot, err := description.NewBuilder("arm").
		AddLink(description.Link{Name: "base"}).
		AddCommand(description.CommandDef{
			Name:          "wave",
			Category:      "motion",
			CategoryLimit: 1,
			AllowedStates: []string{"idle"},
		}).
		Build()
	if err != nil {
		t.Fatalf("build robot: %v", err)
	}

	router := pubsub.New(16)
	st := state.New()
	params := param.New(router, nil)
	safetyCtl := safety.New(router)
	engine := runtime.New(robot, st, params, safetyCtl, router, time.Second, time.Second)
	engine.RegisterHandlers("wave", runtime.Handlers{
		HandleCommand: func(goal map[string]any, ctx *runtime.CommandContext, st any) runtime.Step {
			return runtime.Stop("done", st)
		},
		Result: func(st any) runtime.Result { return runtime.Result{OK: true} },
	})

	return Deps{Engine: engine, Params: params, Safety: safetyCtl, Router: router}
}

func dialTerminal(t *testing.T, addr string) net.Conn {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			return conn
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out dialing terminal")
	return nil
}

func TestStatusAndArmOverConnection(t *testing.T) {
	deps := testDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	go Start(ctx, addr, deps, cancel)

	conn := dialTerminal(t, addr)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	readUntilPrompt(t, reader)

	conn.Write([]byte("arm\n"))
	line := readLine(t, reader)
	if !strings.Contains(line, "armed") {
		t.Errorf("expected armed confirmation, got %q", line)
	}
	readUntilPrompt(t, reader)

	conn.Write([]byte("status\n"))
	statusLine := readLine(t, reader)
	if !strings.Contains(statusLine, "operational_state") {
		t.Errorf("expected status output, got %q", statusLine)
	}
}

func TestExitClosesConnection(t *testing.T) {
	deps := testDeps(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	go Start(ctx, addr, deps, cancel)

	conn := dialTerminal(t, addr)
	defer conn.Close()

	reader := bufio.NewReader(conn)
	readUntilPrompt(t, reader)

	conn.Write([]byte("exit\n"))

	conn.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 64)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		if n == 0 {
			return
		}
	}
}

func readUntilPrompt(t *testing.T, r *bufio.Reader) {
	t.Helper()
	for {
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if b == '>' {
			r.ReadByte() // consume trailing space
			return
		}
	}
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read line: %v", err)
	}
	return line
}
