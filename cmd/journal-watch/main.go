package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"bitbucket.org/mmdatafocus/factory_backend/config"
	"bitbucket.org/mmdatafocus/factory_backend/journal"
)

// journal-watch is a headless journal client: it keeps a live store in sync
// via Redis events plus the periodic refresh and prints the order list on an
// interval. Useful for shop-floor displays and for smoke testing the engine
// against a running server.
func main() {
	printEvery := flag.Duration("print-every", 30*time.Second, "how often to print the journal")
	userId := flag.Int("user-id", 0, "acting user id (for notices about other users' changes)")
	flag.Parse()

	logger := config.GetLogger()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	apiKey := strings.TrimSpace(os.Getenv("JOURNAL_API_TOKEN"))
	client, err := journal.NewHTTPClient(apiKey)
	if err != nil {
		fmt.Fprintln(os.Stderr, "client setup failed: "+err.Error())
		os.Exit(1)
	}

	store := journal.NewStore(logger, client, *userId)
	go func() {
		if err := store.Run(sigCtx); err != nil && sigCtx.Err() == nil {
			logger.WithFields(logrus.Fields{"field": "store"}).Error("store stopped: " + err.Error())
		}
	}()

	config.ConnectRedisWithRetry()
	if rdb := config.GetRedisDB(); rdb != nil {
		distributor := journal.NewDistributor(logger, rdb, store)
		go func() {
			if err := distributor.Run(sigCtx); err != nil && sigCtx.Err() == nil {
				logger.WithFields(logrus.Fields{"field": "distributor"}).Error("distributor stopped: " + err.Error())
			}
		}()
	} else {
		logger.WithFields(logrus.Fields{"field": "distributor"}).Warn("redis not available; relying on polling only")
	}

	poller := journal.NewPoller(store)
	go func() { _ = poller.Run(sigCtx) }()

	ticker := time.NewTicker(*printEvery)
	defer ticker.Stop()
	for {
		select {
		case <-sigCtx.Done():
			return
		case <-ticker.C:
			printJournal(store.Snapshot())
		}
	}
}

func printJournal(view journal.View) {
	fmt.Printf("--- journal @ %s ---\n", time.Now().Format("15:04:05"))
	for _, order := range view.Orders {
		action := journal.IssueActionFor(order)
		fmt.Printf("%-8d %-12s due %s items %d action %q\n",
			order.Id, order.Status, order.DueDate.Format("2006-01-02"), len(order.Items), action.Kind)
	}
}
