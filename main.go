/*
Dispatch is a real-time hospital patient-transport dispatcher. It assigns a
stream of transport requests to a pool of human transporters and drives each
transporter step-by-step along shortest paths through a weighted hospital
graph, re-optimizing the whole-fleet plan whenever the world changes:
requests arrive, transporters come and go, workers enter or leave mandatory
rest. Commands arrive over a small HTTP API; state and progress stream out
over a websocket so a UI can animate the floor in real time.
*/
package main

import (
	"flag"
	"os"

	"github.com/sirupsen/logrus"

	"dispatch/config"
	"dispatch/engine"
	"dispatch/event"
	"dispatch/server"
)

var (
	dbg      = flag.Bool("debug", false, "debug logging")
	host     = flag.String("host", "", "the host ip")
	port     = flag.String("port", "8080", "the host port")
	confPath = flag.String("config", "./config.yaml", "engine config file")
)

func runApp() error {
	flag.Parse()
	if *dbg {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.FromYaml(*confPath)
	if err != nil {
		logrus.WithError(err).Warn("config load failed, using defaults")
		cfg = config.Default()
	}
	cfg.Merge(config.Default())

	g, err := cfg.BuildGraph()
	if err != nil {
		return err
	}

	hub := event.NewHub(logrus.StandardLogger())
	d, err := engine.New(g, hub, engine.Options{
		SpeedFactor:      cfg.SpeedFactor,
		CoalesceInterval: cfg.CoalesceInterval.Std(),
		SolverTimeout:    cfg.SolverTimeout.Std(),
		RestThreshold:    cfg.RestThreshold,
		RestDuration:     cfg.RestDuration,
		Strategy:         cfg.Strategy,
		SimInterval:      cfg.SimInterval.Std(),
	})
	if err != nil {
		return err
	}
	defer d.Close()

	// Seed the initial world before opening the doors.
	for _, name := range cfg.Transporters {
		if _, err := d.AddWorker(name); err != nil {
			return err
		}
	}
	for _, r := range cfg.Requests {
		if _, err := d.CreateRequest(r.Origin, r.Destination, r.Type, r.Urgent); err != nil {
			return err
		}
	}

	srv := server.NewServer(*host+":"+*port, d, hub)
	return srv.Serve()
}

func main() {
	if err := runApp(); err != nil {
		logrus.WithError(err).Error("dispatcher exited")
		os.Exit(1)
	}
}
