// Command roverd is the process entry point for the robotics runtime:
// it loads configuration, builds a robot description, constructs the
// supervision tree, starts the admin/debug APIs, and coordinates
// graceful shutdown.
//
// Grounded on main.go end to end: godotenv-loaded config, a
// sync.WaitGroup tracking one goroutine per server, SIGINT/SIGTERM
// handling via signal.Notify, and a timeout-bounded wait for graceful
// shutdown before forcing exit.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	apihttp "roverd/api/http"
	"roverd/api/terminal"
	"roverd/api/ws"
	"roverd/component"
	"roverd/config"
	"roverd/description"
	"roverd/diag"
	"roverd/param"
	"roverd/param/store/memstore"
	"roverd/param/store/mongostore"
	"roverd/robots"
	"roverd/supervisor"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(".env"); err != nil {
		diag.Printf("no .env file loaded: %v", err)
	}
	cfg := config.Load()
	diag.SetEnabledFunc(func() bool { return cfg.Debug })

	types := component.NewTypeRegistry()
	robots.Register(types)

	robot, err := buildDefaultRobot()
	if err != nil {
		panic(fmt.Sprintf("failed to build robot description: %v", err))
	}

	store, closeStore := buildParamStore(ctx, cfg)
	if closeStore != nil {
		defer closeStore()
	}

	opts := supervisor.DefaultBuildOptions()
	opts.PubSubMailbox = cfg.PubSubMailboxSize
	opts.ResultRetention = cfg.ResultCacheRetention
	opts.ParamStore = store

	tree, err := supervisor.Build(robot, types, opts)
	if err != nil {
		panic(fmt.Sprintf("failed to build supervision tree: %v", err))
	}

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := tree.Run(ctx); err != nil {
			diag.Printf("supervision tree exited: %v", err)
			cancel()
		}
	}()

	httpServer := apihttp.NewServer(tree.Engine, tree.Params, tree.Safety)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := httpServer.Start(ctx, ":"+cfg.HTTPPort); err != nil {
			diag.Printf("api/http: %v", err)
			cancel()
		}
	}()

	wsHandler := ws.NewHandler(tree.Router)
	wsAddr := ":" + cfg.WSPort
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := startWS(ctx, wsAddr, wsHandler); err != nil {
			diag.Printf("api/ws: %v", err)
			cancel()
		}
	}()

	terminalDeps := terminal.Deps{Engine: tree.Engine, Params: tree.Params, Safety: tree.Safety, Router: tree.Router}
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := terminal.Start(ctx, ":"+cfg.TerminalPort, terminalDeps, cancel); err != nil {
			diag.Printf("api/terminal: %v", err)
			cancel()
		}
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-ctx.Done():
		diag.Printf("context cancelled, shutting down")
	case <-sigs:
		diag.Printf("received termination signal, shutting down")
	}

	cancel()
	if err := tree.Stop(); err != nil {
		diag.Printf("error stopping supervision tree: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		diag.Printf("all servers shut down gracefully")
	case <-time.After(60 * time.Second):
		diag.Printf("timeout waiting for servers to shut down, forcing exit")
	}
}

// buildParamStore picks a durable backend per cfg: MongoDB if a URI is
// configured, an in-process map otherwise. The returned close func may
// be nil when there's nothing to close.
func buildParamStore(ctx context.Context, cfg config.Config) (param.Store, func()) {
	if cfg.MongoURI == "" {
		return memstore.New(), nil
	}
	store, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		diag.Printf("param store: failed to connect to mongo, falling back to memstore: %v", err)
		return memstore.New(), nil
	}
	return store, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		store.Close(closeCtx)
	}
}

// startWS serves the websocket stream at /ws on addr until ctx is
// cancelled, mirroring api/http.Server.Start's ListenAndServe/Shutdown
// pairing.
func startWS(ctx context.Context, addr string, handler *ws.Handler) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", handler)
	srv := &http.Server{Addr: addr, Handler: mux}

	serverErr := make(chan error, 1)
	go func() {
		diag.Printf("api/ws: listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("api/ws: %w", err)
		}
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// buildDefaultRobot constructs the two-link, one-joint, one-sensor,
// one-actuator fixture this process runs absent a richer description
// source. main does not load a description file (description.LoadFile
// offers that path to library callers); a DSL front end is out of
// scope per spec.md's Non-goals.
func buildDefaultRobot() (*description.Robot, error) {
	return description.NewBuilder("default_robot").
		AddLink(description.Link{Name: "base"}).
		AddJoint(description.Joint{Name: "shoulder", Kind: description.JointRevolute, ParentLink: "base", ChildLink: "upper_arm"}).
		AddLink(description.Link{Name: "upper_arm", ParentJoint: "shoulder"}).
		AddSensor(description.SensorSpec{Name: "range_front", Type: "proximity_sensor", AttachedTo: "base"}).
		AddActuator(description.ActuatorSpec{Name: "shoulder_motor", Type: "mock_actuator", AttachedTo: "shoulder"}).
		AddCommand(description.CommandDef{
			Name:          "move_shoulder",
			Category:      "motion",
			CategoryLimit: 1,
			AllowedStates: []string{"idle"},
		}).
		Build()
}
