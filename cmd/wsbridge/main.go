package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/wsbridge/wsbridge/internal/core/engine"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to yaml config file")
		mode       = flag.String("mode", "server", "server or client")
		url        = flag.String("url", "ws://127.0.0.1:8765", "server url (client mode)")
		reconnect  = flag.Bool("reconnect", true, "auto-reconnect on connection loss (client mode)")
		serverKey  = flag.String("server-key", "", "32-byte server encryption key")
		clientKey  = flag.String("client-key", "", "32-byte client encryption key")
		logLevel   = flag.Int("log-level", 2, "log level: 0=error 1=warn 2=info 3=debug")
		logFile    = flag.String("log-file", "", "optional append-only log file")
	)
	flag.Parse()

	cfg := engine.DefaultConfig()
	if *configPath != "" {
		f, err := os.Open(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "open config:", err)
			os.Exit(1)
		}
		cfg, err = engine.LoadYAML(f)
		_ = f.Close()
		if err != nil {
			fmt.Fprintln(os.Stderr, "load config:", err)
			os.Exit(1)
		}
	}

	// Events go to stdout as JSON lines, one per event.
	sink := engine.SinkFunc(func(ev engine.Event) {
		line, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Println(string(line))
	})

	svc, err := engine.NewService(cfg, sink)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create service:", err)
		os.Exit(1)
	}

	svc.SetLogLevel(*logLevel)
	if *logFile != "" {
		svc.SetLogFile(*logFile)
	}
	if *serverKey != "" {
		if err = svc.SetServerKey([]byte(*serverKey)); err != nil {
			fmt.Fprintln(os.Stderr, "server key:", err)
			os.Exit(1)
		}
		svc.EnableEncryption(true)
	}
	if *clientKey != "" {
		if err = svc.SetClientKey([]byte(*clientKey)); err != nil {
			fmt.Fprintln(os.Stderr, "client key:", err)
			os.Exit(1)
		}
		svc.EnableEncryption(true)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch *mode {
	case "server":
		if err = svc.StartServer(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "start server:", err)
			os.Exit(1)
		}
	case "client":
		if err = svc.Connect(ctx, *url, *reconnect); err != nil {
			fmt.Fprintln(os.Stderr, "connect:", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown mode:", *mode)
		os.Exit(1)
	}

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, os.Interrupt, syscall.SIGTERM)
	<-stopCh

	cancel()
	svc.Stop(context.Background())
}
