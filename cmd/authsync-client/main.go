package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	authsync "github.com/zhangweimingit/AuthSyncServer"
)

func main() {
	var (
		addr     = flag.String("addr", "127.0.0.1:7001", "Gateway address")
		secret   = flag.String("secret", "", "Shared secret")
		mac      = flag.String("mac", "00:00:00:00:00:00", "MAC address this client announces")
		attr     = flag.Uint("attr", 0, "Device attribute")
		group    = flag.Uint("group", 0, "Synchronization group")
		publish  = flag.String("publish", "", "MAC address to publish as authorized")
		duration = flag.Uint("duration", 3600, "Authorization lifetime in seconds")
		query    = flag.String("query", "", "MAC address to query")
		watch    = flag.Bool("watch", false, "Stay connected and print pushed records")
		timeout  = flag.Duration("timeout", 30*time.Second, "Connection timeout")
	)
	flag.Parse()

	if *secret == "" {
		slog.Error("a shared secret is required")
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	client := authsync.NewClient(*addr,
		authsync.WithSecret(*secret),
		authsync.WithClientID(*mac, uint16(*attr)),
		authsync.WithGroupID(uint32(*group)),
		authsync.WithTimeout(*timeout),
		authsync.WithClientLogger(logger),
		authsync.WithRecordHandler(func(rec authsync.AuthRecord) {
			logger.Info("record received",
				"mac", rec.MAC,
				"attr", rec.Attr,
				"group", rec.GroupID,
				"remaining", rec.Remaining(time.Now()),
			)
		}),
	)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	if *publish != "" {
		if err := client.Publish(*publish, uint16(*attr), uint32(*duration)); err != nil {
			logger.Error("publish failed", "error", err)
			os.Exit(1)
		}
		logger.Info("record published", "mac", *publish, "duration", *duration)
	}

	if *query != "" {
		if err := client.Query(*query); err != nil {
			logger.Error("query failed", "error", err)
			os.Exit(1)
		}
		// An answer, if any, arrives on the record handler.
		time.Sleep(time.Second)
	}

	if *watch {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
	}
}
