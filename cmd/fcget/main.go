// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command fcget is a thin CLI front-end over the FCOM runtime: it loads
// a config file, subscribes to one or more ids given on the command
// line, and prints every update received until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/gops/agent"
	"github.com/joho/godotenv"

	"github.com/fcom-rt/fcom/internal/natsbridge"
	"github.com/fcom-rt/fcom/internal/store"
	"github.com/fcom-rt/fcom/internal/wire"
	"github.com/fcom-rt/fcom/pkg/config"
	"github.com/fcom-rt/fcom/pkg/log"
)

func main() {
	var (
		flagConfigFile string
		flagIds        string
		flagTimeoutMs  int
		flagGops       bool
		flagLogLevel   string
	)

	flag.StringVar(&flagConfigFile, "config", "./fcom.json", "Path to the FCOM JSON config file")
	flag.StringVar(&flagIds, "ids", "", "Comma-separated gid:sid pairs to subscribe to, e.g. '12:8,12:9'")
	flag.IntVar(&flagTimeoutMs, "timeout-ms", 5000, "get-blob timeout in milliseconds")
	flag.BoolVar(&flagGops, "gops", false, "Listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "debug, info, notice, warn, err, crit")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("fcget: could not load .env: %v", err)
	}

	log.SetLogLevel(flagLogLevel)

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("fcget: gops/agent.Listen failed: %s", err.Error())
		}
	}

	cfg, err := config.Load(flagConfigFile)
	if err != nil {
		log.Fatalf("fcget: %s", err.Error())
	}

	rt, err := store.Init(cfg)
	if err != nil {
		log.Fatalf("fcget: %s", err.Error())
	}
	defer rt.Shutdown()

	var bridge *natsbridge.Bridge
	if cfg.Nats != nil {
		bridge, err = natsbridge.Dial(cfg.Nats.Address, cfg.Nats.Subject, rt)
		if err != nil {
			log.Fatalf("fcget: nats bridge: %s", err.Error())
		}
		defer bridge.Close()
	}

	ids, err := parseIds(flagIds)
	if err != nil {
		log.Fatalf("fcget: %s", err.Error())
	}
	for _, id := range ids {
		if err := rt.Subscribe(id, store.Sync); err != nil {
			log.Fatalf("fcget: subscribe %08x: %s", uint32(id), err.Error())
		}
		log.Infof("fcget: subscribed to %08x (gid=%d sid=%d)", uint32(id), id.GID(), id.SID())
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	timeout := time.Duration(flagTimeoutMs) * time.Millisecond
	for {
		select {
		case <-sigs:
			log.Infof("fcget: shutting down")
			return
		default:
		}
		for _, id := range ids {
			ref, err := rt.GetBlob(id, timeout)
			if err != nil {
				continue
			}
			fmt.Printf("%08x upd=%d type=%s count=%d\n", uint32(id), ref.UpdateCount(), ref.Header().Type, ref.Header().Count)
			ref.Release()
		}
	}
}

func parseIds(spec string) ([]wire.BlobId, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil, fmt.Errorf("no --ids given")
	}
	var ids []wire.BlobId
	for _, part := range strings.Split(spec, ",") {
		gidSid := strings.SplitN(strings.TrimSpace(part), ":", 2)
		if len(gidSid) != 2 {
			return nil, fmt.Errorf("bad id %q, want gid:sid", part)
		}
		gid, err := strconv.Atoi(gidSid[0])
		if err != nil {
			return nil, fmt.Errorf("bad gid in %q: %w", part, err)
		}
		sid, err := strconv.Atoi(gidSid[1])
		if err != nil {
			return nil, fmt.Errorf("bad sid in %q: %w", part, err)
		}
		ids = append(ids, wire.MakeID(uint32(gid), uint32(sid)))
	}
	return ids, nil
}
