// Command interlockd watches the print head cartridges, heated bed and
// pneumatics of a multi-material printer and stops the machine when one of
// them is removed or misbehaves.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/voxel8/interlockd/internal/command"
	"github.com/voxel8/interlockd/internal/gpio"
	"github.com/voxel8/interlockd/internal/interlock"
	"github.com/voxel8/interlockd/internal/journal"
	"github.com/voxel8/interlockd/internal/mqtt"
	"github.com/voxel8/interlockd/internal/periph"
	"github.com/voxel8/interlockd/internal/printer"
	"github.com/voxel8/interlockd/internal/safety"
	"github.com/voxel8/interlockd/internal/status"
	"github.com/voxel8/interlockd/internal/supervisor"
	"github.com/voxel8/interlockd/internal/web"
)

// config holds every command-line setting.
type config struct {
	poll          time.Duration
	errorInterval time.Duration
	heartbeat     time.Duration
	hysteresis    int

	chip      string
	pinFFF    int
	pinSilver int
	pinDeploy int
	pinBed    int

	bedMode    string // "pin", "sensor" or "off"
	bedMinTemp float64

	regulator bool
	reg       interlock.RegulatorConfig

	i2cDevice  string
	adcAddr    uint
	dacAddr    uint
	chOutput   int
	chSupply   int // negative when no supply sensor is fitted
	chBed      int
	psiPerMv   float64
	psiOffset  float64
	degCPerMv  float64
	degCOffset float64

	serial   string
	baud     int
	broker   string
	clientID string
	buffer   int
	httpAddr string
	journal  string

	printState bool
}

func main() {
	cfg := config{reg: interlock.DefaultRegulatorConfig()}
	cart := interlock.DefaultCartridgeConfig()
	bed := interlock.DefaultBedConfig()

	flag.DurationVar(&cfg.poll, "poll", 10*time.Millisecond, "Control cycle interval")
	flag.DurationVar(&cfg.errorInterval, "error-interval", safety.DefaultErrorInterval, "Minimum spacing between pauses from one interlock")
	flag.DurationVar(&cfg.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.IntVar(&cfg.hysteresis, "hysteresis", interlock.DefaultHysteresisCount, "Cycles a reinserted cartridge still reports removed")

	flag.StringVar(&cfg.chip, "chip", "gpiochip0", "GPIO character device")
	flag.IntVar(&cfg.pinFFF, "pin-fff", cart.Slots[interlock.FFFSlot].SensePin, "Line offset of the FFF cartridge sense pin")
	flag.IntVar(&cfg.pinSilver, "pin-silver", cart.Slots[interlock.SilverSlot].SensePin, "Line offset of the silver cartridge sense pin")
	flag.IntVar(&cfg.pinDeploy, "pin-deploy", cart.Slots[interlock.SilverSlot].DeployPin, "Line offset of the silver cartridge deploy output")
	flag.IntVar(&cfg.pinBed, "pin-bed", bed.AvailPin, "Line offset of the heated bed availability pin")

	flag.StringVar(&cfg.bedMode, "bed-mode", string(interlock.BedModePin), `Heated bed detection: "pin", "sensor" or "off"`)
	flag.Float64Var(&cfg.bedMinTemp, "bed-min-temp", bed.MinTempC, "Lowest plausible bed temperature in sensor mode (C)")

	flag.BoolVar(&cfg.regulator, "regulator", false, "Pressure regulator fitted")
	flag.Float64Var(&cfg.reg.BitsPerPSI, "reg-bits-per-psi", cfg.reg.BitsPerPSI, "DAC codes per psi")
	flag.Float64Var(&cfg.reg.OffsetPSI, "reg-offset", cfg.reg.OffsetPSI, "Regulator deadband offset (psi)")
	flag.Float64Var(&cfg.reg.HysteresisPSI, "reg-hysteresis", cfg.reg.HysteresisPSI, "Regulator hysteresis (psi)")
	flag.Float64Var(&cfg.reg.BandCrossoverPSI, "reg-band-crossover", cfg.reg.BandCrossoverPSI, "Target above which the wide band applies (psi)")
	flag.Float64Var(&cfg.reg.BandLowPSI, "reg-band-low", cfg.reg.BandLowPSI, "Allowed deviation at low targets (psi)")
	flag.Float64Var(&cfg.reg.BandHighPSI, "reg-band-high", cfg.reg.BandHighPSI, "Allowed deviation at high targets (psi)")
	flag.DurationVar(&cfg.reg.ProtectionTime, "reg-protection-time", cfg.reg.ProtectionTime, "How long the output may stay out of band")
	flag.Float64Var(&cfg.reg.NotPresentPSI, "reg-not-present", cfg.reg.NotPresentPSI, "Reading above which the regulator counts as disconnected (psi)")
	flag.Float64Var(&cfg.reg.MinSupplyPSI, "reg-min-supply", cfg.reg.MinSupplyPSI, "Supply pressure below which the above-supply rule is skipped (psi)")

	flag.StringVar(&cfg.i2cDevice, "i2c", "/dev/i2c-1", "I2C bus device for the ADC and DAC")
	flag.UintVar(&cfg.adcAddr, "adc-addr", periph.DefaultADS1115Address, "ADS1115 address")
	flag.UintVar(&cfg.dacAddr, "dac-addr", periph.DefaultMCP4725Address, "MCP4725 address")
	flag.IntVar(&cfg.chOutput, "ch-output", 0, "ADC channel of the regulator output transducer")
	flag.IntVar(&cfg.chSupply, "ch-supply", 1, "ADC channel of the supply transducer (-1 if not fitted)")
	flag.IntVar(&cfg.chBed, "ch-bed", 2, "ADC channel of the bed temperature sensor")
	flag.Float64Var(&cfg.psiPerMv, "psi-per-mv", 0.0375, "Pressure transducer scale (psi/mV)")
	flag.Float64Var(&cfg.psiOffset, "psi-offset", -18.75, "Pressure transducer offset (psi)")
	flag.Float64Var(&cfg.degCPerMv, "degc-per-mv", 0.1, "Bed temperature sensor scale (C/mV)")
	flag.Float64Var(&cfg.degCOffset, "degc-offset", -50, "Bed temperature sensor offset (C)")

	flag.StringVar(&cfg.serial, "serial", "/dev/ttyACM0", "Printer firmware serial port")
	flag.IntVar(&cfg.baud, "baud", printer.DefaultBaud, "Printer firmware baud rate")
	flag.StringVar(&cfg.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&cfg.clientID, "client-id", "interlockd", "MQTT client id")
	flag.IntVar(&cfg.buffer, "mqtt-buffer", 256, "Messages held while the broker is unreachable")
	flag.StringVar(&cfg.httpAddr, "http", ":80", "HTTP status address (empty to disable)")
	flag.StringVar(&cfg.journal, "journal", "/var/lib/interlockd/faults.db", "Fault journal database (empty to disable)")

	flag.BoolVar(&cfg.printState, "print-state", false, "Print current interlock state and exit")

	flag.Parse()

	if err := run(cfg); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// hardware is the set of primitives the interlocks consume.
// dac and the sensors are nil when the matching part is not fitted.
type hardware struct {
	pins    interlock.Pins
	dac     interlock.DAC
	output  interlock.Sensor
	supply  interlock.Sensor
	bedTemp interlock.Sensor
}

func (c config) needsI2C() bool {
	return c.regulator || c.bedMode == string(interlock.BedModeSensor)
}

func (c config) gpioInputs() []gpio.Input {
	in := []gpio.Input{
		{Offset: c.pinFFF, Pull: gpio.PullDown},
		{Offset: c.pinSilver, Pull: gpio.PullUp},
	}
	if c.bedMode == string(interlock.BedModePin) {
		in = append(in, gpio.Input{Offset: c.pinBed, Pull: gpio.PullDown})
	}
	return in
}

func (c config) gpioOutputs() []int {
	if c.pinDeploy == interlock.NoPin {
		return nil
	}
	return []int{c.pinDeploy}
}

func (c config) statusConfig() status.Config {
	sc := status.Config{
		PollMs:          c.poll.Milliseconds(),
		ErrorIntervalMs: c.errorInterval.Milliseconds(),
		HeartbeatMs:     c.heartbeat.Milliseconds(),
		HysteresisCount: c.hysteresis,
		Regulator:       c.regulator,
		Serial:          c.serial,
		Broker:          c.broker,
		HTTPAddr:        c.httpAddr,
	}
	if c.bedMode != "off" {
		sc.BedMode = c.bedMode
	}
	return sc
}

// newSupervisor builds the interlocks over hw and composes them with a
// dispatcher driving machine.
func newSupervisor(cfg config, hw hardware, machine safety.Machine, host safety.Notifier) (*supervisor.Supervisor, error) {
	cartCfg := interlock.DefaultCartridgeConfig()
	cartCfg.HysteresisCount = cfg.hysteresis
	cartCfg.Slots[interlock.FFFSlot].SensePin = cfg.pinFFF
	cartCfg.Slots[interlock.SilverSlot].SensePin = cfg.pinSilver
	cartCfg.Slots[interlock.SilverSlot].DeployPin = cfg.pinDeploy
	cart := interlock.NewCartridge(cartCfg, hw.pins)

	var bed *interlock.Bed
	if cfg.bedMode != "off" {
		b, err := interlock.NewBed(interlock.BedConfig{
			Mode:     interlock.BedMode(cfg.bedMode),
			AvailPin: cfg.pinBed,
			MinTempC: cfg.bedMinTemp,
		}, hw.pins, hw.bedTemp)
		if err != nil {
			return nil, fmt.Errorf("init bed interlock: %w", err)
		}
		bed = b
	}

	var reg *interlock.Regulator
	if cfg.regulator {
		if hw.dac == nil || hw.output == nil {
			return nil, errors.New("init regulator: no DAC or output sensor")
		}
		reg = interlock.NewRegulator(cfg.reg, hw.dac, hw.output, hw.supply)
	}

	flags := safety.NewFlags()
	disp := safety.NewDispatcher(machine, host, flags, cfg.errorInterval)
	return supervisor.New(cart, bed, reg, disp, flags, host), nil
}

// openAnalog opens the I2C bus and attaches the ADC and DAC channels the
// configuration needs. The returned closer must be closed by the caller.
func openAnalog(cfg config, hw *hardware) (io.Closer, error) {
	bus, err := periph.OpenBus(cfg.i2cDevice)
	if err != nil {
		return nil, fmt.Errorf("open i2c: %w", err)
	}
	adc, err := periph.NewADS1115(bus, uint16(cfg.adcAddr))
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("open adc: %w", err)
	}

	if cfg.regulator {
		hw.dac = periph.NewMCP4725(bus, uint16(cfg.dacAddr))
		hw.output = &periph.LinearSensor{ADC: adc, Channel: cfg.chOutput, Scale: cfg.psiPerMv, Offset: cfg.psiOffset}
		if cfg.chSupply >= 0 {
			hw.supply = &periph.LinearSensor{ADC: adc, Channel: cfg.chSupply, Scale: cfg.psiPerMv, Offset: cfg.psiOffset}
		}
	}
	if cfg.bedMode == string(interlock.BedModeSensor) {
		hw.bedTemp = &periph.LinearSensor{ADC: adc, Channel: cfg.chBed, Scale: cfg.degCPerMv, Offset: cfg.degCOffset}
	}
	return analog{adc: adc, bus: bus}, nil
}

// analog halts the ADC channels, then releases the bus.
type analog struct {
	adc *periph.ADS1115
	bus io.Closer
}

func (a analog) Close() error {
	return errors.Join(a.adc.Close(), a.bus.Close())
}

func run(cfg config) error {
	switch cfg.bedMode {
	case string(interlock.BedModePin), string(interlock.BedModeSensor), "off":
	default:
		return fmt.Errorf("invalid -bed-mode %q", cfg.bedMode)
	}

	// Initialize GPIO
	pins, err := gpio.NewRealPins(cfg.chip, cfg.gpioInputs(), cfg.gpioOutputs())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer pins.Close()

	hw := hardware{pins: pins}
	if cfg.needsI2C() {
		bus, err := openAnalog(cfg, &hw)
		if err != nil {
			return err
		}
		defer bus.Close()
	}

	// Print state mode
	if cfg.printState {
		return printState(cfg, hw)
	}

	// Initialize printer link
	link, err := printer.Open(cfg.serial, cfg.baud)
	if err != nil {
		return fmt.Errorf("init printer: %w", err)
	}
	defer link.Close()

	// Initialize MQTT
	publisher := mqtt.NewRealPublisher(cfg.broker, cfg.clientID, cfg.buffer)
	defer publisher.Close()

	// Initialize fault journal
	var faults *journal.Journal
	if cfg.journal != "" {
		faults, err = journal.Open(cfg.journal)
		if err != nil {
			return fmt.Errorf("init journal: %w", err)
		}
		defer faults.Close()
	}

	// Broker and journal work runs off the control goroutine
	out := newOutbox(defaultOutboxSize)
	defer out.close(drainTimeout)

	host := hostLines{link, asyncPublisher{out: out, pub: publisher}}
	sup, err := newSupervisor(cfg, hw, link, host)
	if err != nil {
		return err
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), cfg.statusConfig())
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	// Start HTTP status server
	if cfg.httpAddr != "" {
		var lister web.FaultLister
		if faults != nil {
			lister = faults
		}
		srv := web.New(cfg.httpAddr, tracker, lister)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.httpAddr)
	}

	log.Printf("started: poll=%v hysteresis=%d error-interval=%v bed=%s regulator=%v serial=%s broker=%s",
		cfg.poll, cfg.hysteresis, cfg.errorInterval, cfg.bedMode, cfg.regulator, cfg.serial, cfg.broker)

	ticker := time.NewTicker(cfg.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var rec recorder
	if faults != nil {
		rec = faults
	}
	return runLoop(sup, publisher, publisher, publisher.Commands(), rec, tracker, out, cfg.heartbeat, time.Now, ticker.C, sigCh)
}

// recorder persists dispatched faults.
type recorder interface {
	Record(ts time.Time, out safety.Outcome) (journal.Entry, error)
}

// hostLines sends every host line to each notifier in turn.
type hostLines []safety.Notifier

func (h hostLines) Notify(line string) error {
	var errs []error
	for _, n := range h {
		if err := n.Notify(line); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// publishFault journals a dispatched fault and publishes it under the
// journal's incident id. It runs on the outbox worker.
func publishFault(faults recorder, publisher mqtt.Publisher, t time.Time, out safety.Outcome) error {
	fe := mqtt.FaultEvent{Timestamp: t, Outcome: out}
	if faults != nil {
		entry, err := faults.Record(t, out)
		if err != nil {
			log.Printf("journal error: %v", err)
		} else {
			fe.ID = entry.ID
		}
	}
	if fe.ID == "" {
		fe.ID = uuid.NewString()
	}
	return publisher.PublishFault(fe)
}

// runLoop owns the control cycle. Broker and journal work is handed to out,
// which runLoop drains before returning.
func runLoop(sup *supervisor.Supervisor, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, commands <-chan string, faults recorder, tracker *status.Tracker, out *outbox, heartbeat time.Duration, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	startTime := now()
	lastHeartbeat := startTime
	async := asyncPublisher{out: out, pub: publisher}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			if tracker != nil {
				if mqttStatus != nil {
					tracker.SetMQTTConnected(mqttStatus.IsConnected())
				}
				snap := tracker.Snapshot()
				event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			}
			err := out.submit("publish SHUTDOWN", func() error {
				if err := publisher.PublishSystem(event); err != nil {
					return err
				}
				log.Printf("published shutdown event")
				return nil
			})
			if err != nil {
				log.Printf("failed to queue shutdown event: %v", err)
			}
			if err := out.close(drainTimeout); err != nil {
				log.Printf("shutdown: %v", err)
			}
			return nil

		case line, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			reply, err := command.Execute(sup, line)
			if err != nil {
				reply = "error: " + err.Error()
			}
			log.Printf("command: %q -> %s", line, reply)
			if err := async.Notify(reply); err != nil {
				log.Printf("command reply publish error: %v", err)
			}
			if tracker != nil {
				tracker.Update(sup.State())
			}

		case <-tick:
			t := now()
			rep := sup.Tick(safety.MillisAt(startTime, t))

			for _, err := range rep.Errs {
				log.Printf("cycle error: %v", err)
			}

			for _, ev := range rep.Events {
				if err := async.PublishEvent(t, ev); err != nil {
					log.Printf("publish error: %v", err)
				}
			}

			for _, o := range rep.Outcomes {
				if o.Action != safety.ActionPaused && o.Action != safety.ActionKilled {
					continue
				}
				if tracker != nil {
					tracker.SetLastFault(o.Fault.Message)
				}
				err := out.submit("publish fault", func() error {
					return publishFault(faults, publisher, t, o)
				})
				if err != nil {
					log.Printf("publish error: %v", err)
				}
			}

			if tracker == nil {
				continue
			}

			// Update status tracker for HTTP consumers
			tracker.Update(sup.State())
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}

			// Check for heartbeat
			if heartbeat > 0 && t.Sub(lastHeartbeat) >= heartbeat {
				lastHeartbeat = t
				// Refresh network info for heartbeat
				if net := readNetworkInfo(); net != nil {
					tracker.SetNetwork(net)
				}
				snap := tracker.Snapshot()
				log.Printf("heartbeat: uptime=%v cycles=%d faults=%d suppressed=%d",
					t.Sub(startTime).Truncate(time.Second), snap.Interlock.Cycles, snap.Interlock.Faults, snap.Interlock.Suppressed)

				hbEvent := mqtt.SystemEvent{
					Timestamp:  t,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := async.PublishSystem(hbEvent); err != nil {
					log.Printf("heartbeat publish error: %v", err)
				}
			}
		}
	}
}

// printState samples every interlock once and prints its presence.
func printState(cfg config, hw hardware) error {
	sup, err := newSupervisor(cfg, hw, nopMachine{}, nopMachine{})
	if err != nil {
		return err
	}
	sup.Tick(0)
	fmt.Println(formatState(sup.State()))
	return nil
}

func formatState(st supervisor.State) string {
	parts := make([]string, 0, len(st.Slots)+2)
	for _, s := range st.Slots {
		parts = append(parts, fmt.Sprintf("%s: %s", s.Label, presentString(s.Present)))
	}
	if st.Bed.Fitted {
		parts = append(parts, "Heated Bed: "+presentString(st.Bed.Present))
	}
	if st.Regulator.Fitted {
		parts = append(parts, fmt.Sprintf("Pressure: %.2f psi (supply %.2f psi)", st.Regulator.MeasuredPSI, st.Regulator.SupplyPSI))
	}
	return strings.Join(parts, ", ")
}

func presentString(present bool) string {
	if present {
		return "PRESENT"
	}
	return "ABSENT"
}

// nopMachine discards machine primitives and host lines.
type nopMachine struct{}

func (nopMachine) QuickStop() error          { return nil }
func (nopMachine) DisableAllHeaters() error  { return nil }
func (nopMachine) DisableAllSteppers() error { return nil }
func (nopMachine) Kill(string) error         { return nil }
func (nopMachine) Notify(string) error       { return nil }

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
