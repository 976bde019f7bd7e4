package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"conciliar/internal/config"
	"conciliar/internal/listener"
	"conciliar/internal/storage"
)

func main() {
	once := flag.Bool("once", false, "run a single fetch/import cycle and exit")
	flag.Parse()

	cfg, err := config.Load()
	must(err)

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	log := config.NewLogger()
	log.WithFields(logrus.Fields{
		"mailbox":       cfg.MailLabel,
		"intervalSec":   cfg.ListenerIntervalSec,
		"autoReconcile": cfg.ListenerAutoReconcile,
	}).Info("mail listener starting")

	svc := listener.NewService(db, cfg, log)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if *once {
		must(svc.RunOnce(ctx))
		return
	}
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
