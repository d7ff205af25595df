// Command gossipnode runs a single UDP gossip dissemination node. Flags
// mirror the original C reference's getopt set (-p/-f/-t/-b), extended
// with the SPEC_FULL additions (pull reconciliation, PoW/cluster auth,
// observability, and an optional YAML config file).
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gossipnode/internal/config"
	"gossipnode/internal/gossip"
	"gossipnode/internal/logging"
	"gossipnode/internal/obshttp"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	logging.Init()
	if err := run(); err != nil {
		logging.Error("%v", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		port          = flag.Int("p", 0, "UDP port to listen on (required)")
		fanout        = flag.Int("f", 0, "push/pull fanout (default 3)")
		ttl           = flag.Int("t", 0, "message TTL (default 5)")
		bootstrap     = flag.String("b", "", "bootstrap peer address, ip:port")
		peerLimit     = flag.Int("peer-limit", 0, "max membership view size (default 20)")
		pingIntervalS = flag.Int("ping-interval-s", 0, "failure detector ping interval, seconds (default 2)")
		peerTimeoutS  = flag.Int("peer-timeout-s", 0, "peer expiry timeout, seconds (default 6)")
		pullIntervalS = flag.Int("pull-interval-s", 0, "pull reconciliation interval, seconds (0 disables)")
		maxIHaveIDs   = flag.Int("max-ihave-ids", 0, "max ids advertised per IHAVE (default 32)")
		powDifficulty = flag.Int("pow-difficulty", 0, "required PoW leading hex zero nibbles (0 disables)")
		seed          = flag.Int64("seed", 0, "membership sampling PRNG seed (default 42)")
		logDir        = flag.String("log-dir", "", "directory for node_<port>.log (default \".\")")
		clusterSecret = flag.String("cluster-secret", "", "shared secret enabling the cluster HMAC admission gate")
		clusterSalt   = flag.String("cluster-salt", "", "PBKDF2 salt for cluster-secret")
		advertiseAddr = flag.String("advertise-addr", "", "host portion of the address advertised to peers (default 127.0.0.1)")
		obsAddr       = flag.String("obs-addr", "", "observability HTTP listen address, e.g. :9101 (empty disables)")
		configPath    = flag.String("config", "", "optional YAML config file")
		inject        = flag.String("msg", "", "inject one GOSSIP message at startup, skip the REPL, and run until signaled")
	)
	flag.Parse()

	var file *config.File
	if *configPath != "" {
		f, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		file = f
	}
	merged := config.Merge(file, overridesFromFlags(*fanout, *ttl, *peerLimit, *pingIntervalS, *peerTimeoutS,
		*pullIntervalS, *maxIHaveIDs, *powDifficulty, *seed, *logDir, *clusterSecret, *clusterSalt, *advertiseAddr, *obsAddr))

	if *port == 0 {
		flag.Usage()
		return fmt.Errorf("gossipnode: -p is required")
	}

	cfg := gossip.Config{
		Port:          *port,
		Fanout:        config.IntOr(merged.Fanout, 0),
		TTL:           config.IntOr(merged.TTL, 0),
		PeerLimit:     config.IntOr(merged.PeerLimit, 0),
		PingIntervalS: config.IntOr(merged.PingIntervalS, 0),
		PeerTimeoutS:  config.IntOr(merged.PeerTimeoutS, 0),
		PullIntervalS: config.IntOr(merged.PullIntervalS, 0),
		MaxIHaveIDs:   config.IntOr(merged.MaxIHaveIDs, 0),
		PowDifficulty: config.IntOr(merged.PowDifficulty, 0),
		Seed:          config.Int64Or(merged.Seed, 0),
		Bootstrap:     *bootstrap,
		LogDir:        config.StringOr(merged.LogDir, ""),
		ClusterSecret: config.StringOr(merged.ClusterSecret, ""),
		ClusterSalt:   config.StringOr(merged.ClusterSalt, ""),
		AdvertiseAddr: config.StringOr(merged.AdvertiseAddr, ""),
	}

	node, err := gossip.New(cfg)
	if err != nil {
		return fmt.Errorf("gossipnode: init: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	node.Start(ctx)
	if err := node.Bootstrap(); err != nil {
		logging.Warn("bootstrap: %v", err)
	}

	resolvedObsAddr := config.StringOr(merged.ObsAddr, "")
	if resolvedObsAddr != "" {
		obs := obshttp.New(node, resolvedObsAddr, prometheus.NewRegistry())
		obs.Start(ctx)
		logging.Info("observability surface listening on %s", resolvedObsAddr)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	if *inject != "" {
		msgID, err := node.InjectGossip(*inject)
		if err != nil {
			return fmt.Errorf("gossipnode: inject: %w", err)
		}
		logging.Info("injected gossip %s", msgID)
		<-sigCh
		return shutdown(node)
	}

	fmt.Printf("Gossip Node started on port %d. Type 'msg <text>' to gossip.\n", *port)
	replDone := make(chan struct{})
	go runREPL(node, replDone)

	select {
	case <-sigCh:
		logging.Info("received shutdown signal")
	case <-replDone:
		logging.Info("stdin closed")
	}
	return shutdown(node)
}

// runREPL mirrors the reference implementation's fgets loop: lines
// beginning with "msg " inject a new GOSSIP message, everything else is
// ignored. Closes replDone when stdin is exhausted (EOF).
func runREPL(node *gossip.Node, done chan<- struct{}) {
	defer close(done)
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Print("> ")
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "msg ") {
			if _, err := node.InjectGossip(strings.TrimPrefix(line, "msg ")); err != nil {
				logging.Error("inject: %v", err)
			}
		}
		fmt.Print("> ")
	}
}

func shutdown(node *gossip.Node) error {
	if err := node.Shutdown(); err != nil {
		return fmt.Errorf("gossipnode: shutdown: %w", err)
	}
	return nil
}

func overridesFromFlags(fanout, ttl, peerLimit, pingIntervalS, peerTimeoutS, pullIntervalS, maxIHaveIDs, powDifficulty int,
	seed int64, logDir, clusterSecret, clusterSalt, advertiseAddr, obsAddr string) config.Overrides {
	var o config.Overrides
	setIntIfNonZero(&o.Fanout, fanout)
	setIntIfNonZero(&o.TTL, ttl)
	setIntIfNonZero(&o.PeerLimit, peerLimit)
	setIntIfNonZero(&o.PingIntervalS, pingIntervalS)
	setIntIfNonZero(&o.PeerTimeoutS, peerTimeoutS)
	setIntIfNonZero(&o.PullIntervalS, pullIntervalS)
	setIntIfNonZero(&o.MaxIHaveIDs, maxIHaveIDs)
	setIntIfNonZero(&o.PowDifficulty, powDifficulty)
	if seed != 0 {
		o.Seed = &seed
	}
	setStringIfNonEmpty(&o.LogDir, logDir)
	setStringIfNonEmpty(&o.ClusterSecret, clusterSecret)
	setStringIfNonEmpty(&o.ClusterSalt, clusterSalt)
	setStringIfNonEmpty(&o.AdvertiseAddr, advertiseAddr)
	setStringIfNonEmpty(&o.ObsAddr, obsAddr)
	return o
}

func setIntIfNonZero(dst **int, v int) {
	if v != 0 {
		dst2 := v
		*dst = &dst2
	}
}

func setStringIfNonEmpty(dst **string, v string) {
	if v != "" {
		dst2 := v
		*dst = &dst2
	}
}
