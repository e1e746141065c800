package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/chase3718/lou-shaker/internal/app"
	"github.com/chase3718/lou-shaker/internal/config"
	"github.com/chase3718/lou-shaker/internal/control"
	"github.com/chase3718/lou-shaker/internal/instrument"
	"github.com/chase3718/lou-shaker/internal/motion"
	"github.com/chase3718/lou-shaker/internal/sensor"
	"github.com/chase3718/lou-shaker/internal/trigger"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file (optional)")
		debug      = flag.Bool("debug", false, "enable debug logging (adds source location)")
		source     = flag.String("source", config.SourceSerial, "sensor source: serial, sim or none")
		serialDev  = flag.String("serial", "/dev/ttyACM0", "serial port device of the IMU")
		baud       = flag.Int("baud", 115200, "serial baud rate")
		soundBank  = flag.String("soundbank", "piano.sf2", "SF2 sound bank loaded by the synth")
		port       = flag.String("port", "", "MIDI output port of the synth (default: auto)")
		program    = flag.Int("program", 0, "program to load from the melodic bank")
		record     = flag.String("record", "", "also write played notes to this .mid file")
		noKeyboard = flag.Bool("no-keyboard", false, "disable space/enter triggers")
		midiIn     = flag.Bool("midi-in", false, "trigger on note-ons from a MIDI controller")
		wsAddr     = flag.String("ws", "", "serve websocket triggers on this address (e.g. :8080)")
		logLevel   = flag.String("log-level", "info", "log level: error, warn, info, debug")
		listPorts  = flag.Bool("list-ports", false, "list serial and MIDI ports and exit")
	)
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	var o config.FlagOverrides
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "source":
			o.Source = source
		case "serial":
			o.Device = serialDev
		case "baud":
			o.Baud = baud
		case "soundbank":
			o.SoundBank = soundBank
		case "port":
			o.Port = port
		case "program":
			o.Program = program
		case "record":
			o.Record = record
		case "no-keyboard":
			o.NoKeyboard = noKeyboard
		case "midi-in":
			o.MIDIInput = midiIn
		case "ws":
			o.Websocket = wsAddr
		case "log-level":
			o.LogLevel = logLevel
		}
	})
	o.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	level, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	initLogger(level, *debug)
	logger.Info("lou-shaker starting",
		"source", cfg.Sensor.Source,
		"history", cfg.Sensor.History,
		"soundbank", cfg.Instrument.SoundBank,
		"program", cfg.Instrument.Program,
		"channel", cfg.Instrument.Channel,
		"hold_ms", cfg.Instrument.HoldMS,
		"keyboard", cfg.Controls.Keyboard,
		"midi_input", cfg.Controls.MIDIInput,
		"websocket", cfg.Controls.WebsocketAddr,
	)

	// A missing MIDI driver disables the synth and the controller input;
	// the rest keeps running.
	drv, err := rtmididrv.New()
	if err != nil {
		logger.Error("midi: driver init failed", "err", err)
		drv = nil
	} else {
		defer drv.Close()
	}

	if *listPorts {
		printPorts(drv)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	inst, closeInst := buildInstrument(cfg, drv)
	defer closeInst()

	triggers := make(chan struct{}, 16)

	var hub *control.Hub
	if cfg.Controls.WebsocketAddr != "" {
		hub = control.NewHub(triggers, logger)
		go func() {
			if err := hub.ListenAndServe(ctx, cfg.Controls.WebsocketAddr); err != nil {
				logger.Error("ws: server stopped", "err", err)
			}
		}()
	}

	queue := trigger.NewQueue(nil)
	player := trigger.NewPlayer(trigger.Config{
		Instrument: inst,
		Scheduler:  queue,
		Buffer:     motion.NewBuffer(cfg.Sensor.History),
		Hold:       cfg.Hold(),
		Channel:    uint8(cfg.Instrument.Channel),
		Logger:     logger,
		OnFire: func(ev trigger.Event) {
			if hub != nil {
				hub.Broadcast(ev)
			}
		},
	})

	samples := startSensor(ctx, cfg)

	if cfg.Controls.Keyboard {
		restored, err := control.Keyboard(ctx, triggers, stop, logger)
		if err != nil {
			logger.Error("keyboard: unavailable", "err", err)
		} else {
			defer func() { <-restored }()
		}
	}
	if cfg.Controls.MIDIInput {
		if drv == nil {
			logger.Error("midi: controller input disabled, no driver")
		} else {
			watcher := control.NewMIDIWatcher(drv, triggers, logger)
			defer watcher.Close()
			go watchMIDI(ctx, watcher)
		}
	}

	logger.Info("running, waiting for triggers")
	if err := app.New(player, queue, logger).Run(ctx, samples, triggers); err != nil {
		logger.Error("app: stopped with error", "err", err)
	}
}

// buildInstrument constructs the synth and the optional recorder. Construction
// failures are logged once; triggers then run without that instrument.
func buildInstrument(cfg config.Config, drv *rtmididrv.Driver) (instrument.Instrument, func()) {
	var (
		insts   instrument.Multi
		closers []func()
	)
	channel := uint8(cfg.Instrument.Channel)

	if cfg.Instrument.Enabled {
		if drv == nil {
			logger.Error("instrument: unavailable", "err", instrument.ErrEngineStart)
		} else {
			s, err := instrument.NewSampler(drv, instrument.SamplerConfig{
				SoundBank: config.ExpandPath(cfg.Instrument.SoundBank),
				Port:      cfg.Instrument.Port,
			}, logger)
			switch {
			case errors.Is(err, instrument.ErrSoundAssetMissing):
				logger.Error("instrument: sound bank missing, notes will not sound", "err", err)
			case err != nil:
				logger.Error("instrument: synth unavailable, notes will not sound", "err", err)
			default:
				if err := s.SetPatch(uint8(cfg.Instrument.Program), channel); err != nil {
					logger.Warn("instrument: patch not loaded, synth may stay silent", "err", err)
				}
				insts = append(insts, s)
				closers = append(closers, func() {
					if err := s.Close(channel); err != nil {
						logger.Warn("instrument: close failed", "err", err)
					}
				})
			}
		}
	}

	if cfg.Instrument.Record != "" {
		path := config.ExpandPath(cfg.Instrument.Record)
		r := instrument.NewRecorder(path)
		insts = append(insts, r)
		closers = append(closers, func() {
			if err := r.Close(); err != nil {
				logger.Error("recorder: write failed", "err", err)
				return
			}
			logger.Info("recorder: take written", "path", path, "events", r.Events())
		})
	}

	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	switch len(insts) {
	case 0:
		return nil, closeAll
	case 1:
		return insts[0], closeAll
	}
	return insts, closeAll
}

// startSensor opens the configured sample source. Failure is reported once
// and yields a nil channel: the window then never receives samples.
func startSensor(ctx context.Context, cfg config.Config) <-chan motion.Sample {
	out := make(chan motion.Sample, 64)

	switch cfg.Sensor.Source {
	case config.SourceNone:
		return nil

	case config.SourceSim:
		sim := sensor.NewSimulator(cfg.SampleInterval(), uint64(time.Now().UnixNano()))
		logger.Info("sensor: simulator running", "interval", cfg.SampleInterval())
		go func() {
			defer close(out)
			_ = sim.Run(ctx, out)
		}()
		return out
	}

	sp, err := sensor.OpenSerial(cfg.Sensor.Device, cfg.Sensor.Baud, logger)
	if err != nil {
		logger.Error("sensor: unavailable, velocity will use the default peak", "err", err)
		return nil
	}
	go func() {
		defer close(out)
		defer sp.Close()
		if err := sp.Run(ctx, out); err != nil {
			logger.Error("sensor: stream stopped", "err", err)
		}
	}()
	return out
}

func watchMIDI(ctx context.Context, w *control.MIDIWatcher) {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	w.Tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick()
		}
	}
}

func printPorts(drv *rtmididrv.Driver) {
	fmt.Println("serial ports:")
	if ports, err := sensor.ListPorts(); err != nil {
		fmt.Println("  error:", err)
	} else {
		for _, p := range ports {
			fmt.Println("  " + p)
		}
	}
	if drv == nil {
		return
	}

	fmt.Println("midi outputs:")
	if outs, err := instrument.ListOutputs(drv); err != nil {
		fmt.Println("  error:", err)
	} else {
		for _, o := range outs {
			fmt.Println("  " + o)
		}
	}

	fmt.Println("midi inputs:")
	if ins, err := drv.Ins(); err != nil {
		fmt.Println("  error:", err)
	} else {
		for _, in := range ins {
			fmt.Println("  " + in.String())
		}
	}
}
