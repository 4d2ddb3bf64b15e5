// pulsectl is the interactive pulse client. It drives the client's public
// send operations from stdin, which also makes it the traffic harness for a
// running pulsed: every line becomes a data message, /ping and /keepalive
// exercise the control types, /acks prints the acknowledgement record.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/danmuck/pulsectl/internal/client"
	"github.com/danmuck/pulsectl/internal/config"
	"github.com/danmuck/pulsectl/internal/observability"
	"github.com/danmuck/pulsectl/internal/protocol"
	"github.com/rs/zerolog/log"
)

func main() {
	host := flag.String("host", "localhost", "server host")
	port := flag.Int("port", 7600, "server port")
	configPath := flag.String("config", "", "optional client config.toml (overrides host/port flags)")
	interval := flag.Duration("keepalive-interval", 0, "keepalive probe interval (0 = default)")
	timeout := flag.Duration("keepalive-timeout", 0, "inactivity timeout (0 = default)")
	flag.Parse()

	observability.InitLogger("pulsectl")

	cfg := client.DefaultConfig()
	cfg.Host = *host
	cfg.Port = *port
	cfg.Liveness.KeepaliveInterval = *interval
	cfg.Liveness.KeepaliveTimeout = *timeout

	if *configPath != "" {
		fileCfg, err := config.LoadClientConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pulsectl: %v\n", err)
			os.Exit(1)
		}
		cfg.Host = fileCfg.Host
		cfg.Port = fileCfg.Port
		cfg.Liveness = fileCfg.Liveness()
		cfg.MaxConnectAttempts = fileCfg.MaxConnectAttempts
	}

	cfg.OnData = func(msg protocol.Message) {
		payload := "null"
		if len(msg.Payload) > 0 {
			payload = string(msg.Payload)
		}
		fmt.Printf("<< data id=%s payload=%s\n", msg.ID, payload)
	}

	c, err := client.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pulsectl: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := c.Connect(ctx); err != nil {
		cancel()
		fmt.Fprintf(os.Stderr, "pulsectl: connect: %v\n", err)
		os.Exit(1)
	}
	cancel()
	defer func() {
		_ = c.Disconnect()
	}()

	fmt.Println("connected; type a line to send data, /ping, /keepalive, /acks, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/acks":
			acks := c.Acks()
			fmt.Printf(
				"pongs=%d last_pong_id=%s keepalive_acks=%d\n",
				acks.PongCount, acks.LastPongID, acks.KeepaliveAckCount,
			)
		case line == "/ping":
			id, err := c.Ping("")
			if err != nil {
				log.Warn().Err(err).Msg("ping_failed")
				continue
			}
			fmt.Printf(">> ping id=%s\n", id)
		case line == "/keepalive":
			id, err := c.Keepalive("")
			if err != nil {
				log.Warn().Err(err).Msg("keepalive_failed")
				continue
			}
			fmt.Printf(">> keepalive id=%s\n", id)
		default:
			id, err := c.SendData(map[string]string{"text": line}, "")
			if err != nil {
				log.Warn().Err(err).Msg("send_failed")
				continue
			}
			fmt.Printf(">> data id=%s\n", id)
		}
		if !c.Connected() {
			fmt.Println("connection closed")
			return
		}
	}
}
