package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"FlowSentry/internal/alert"
	"FlowSentry/internal/config"
	"FlowSentry/internal/detlog"
	"FlowSentry/internal/engine/flowtable"
	"FlowSentry/internal/engine/protocol"
	"FlowSentry/internal/ensemble"
	"FlowSentry/internal/pipeline"
	"FlowSentry/internal/sink"
)

// fs-replay runs the full detection chain over a recorded pcap file instead
// of a live interface. Every flow still in the table at EOF is flushed and
// scored, so short captures produce complete results.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: fs-replay [-config <file>] <path_to_pcap_file>")
		os.Exit(1)
	}
	pcapFilePath := flag.Arg(0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ens, err := ensemble.Load(cfg.Detector.ModelsDir)
	if err != nil {
		log.Fatalf("Failed to load model ensemble: %v", err)
	}
	log.Printf("Ensemble ready with models: %v", ens.Models())

	logger, err := detlog.New(cfg.Log.Path)
	if err != nil {
		log.Fatalf("Failed to open detection log: %v", err)
	}

	// Replay never exports to remote sinks; results land in the CSV log.
	dispatcher := sink.NewDispatcher(nil, cfg.Sinks.QueueSize)
	dispatcher.Start()

	alerter := alert.New(cfg.AlertCooldown(), nil)
	table := flowtable.New(cfg.Detector.NumShards, flowtable.ParseProtocolFilter(cfg.Capture.Protocol))

	pipe := pipeline.New(pipeline.Options{
		Threshold:       cfg.Threshold(),
		VoteK:           cfg.Detector.VoteK,
		SelectedModels:  cfg.SelectedModels(),
		FlowTimeout:     cfg.FlowTimeout(),
		ExpireInterval:  cfg.ExpireInterval(),
		FinalizeWorkers: cfg.Detector.FinalizeWorkers,
		Verbose:         cfg.Detector.Verbose,
	}, table, ens, alerter, logger, dispatcher)
	pipe.Start()

	handle, err := pcap.OpenOffline(pcapFilePath)
	if err != nil {
		log.Fatalf("Failed to open pcap file: %v", err)
	}
	defer handle.Close()
	log.Printf("Reading packets from '%s'...", pcapFilePath)

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	packetsRead := 0
	for packet := range packetSource.Packets() {
		info, err := protocol.ParsePacket(packet)
		if err != nil {
			continue
		}
		pipe.Input() <- info
		packetsRead++
	}
	log.Printf("Finished reading %d packets from pcap file.", packetsRead)

	pipe.Stop()
	if err := logger.Close(); err != nil {
		log.Printf("Warning: closing detection log: %v", err)
	}

	stats := pipe.Stats()
	log.Printf("Replay complete: %d flows finalized, %d flagged as attacks.", stats.FlowsFinalized, stats.Attacks)
}
