package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bathyx/bathyx/common"
	"github.com/felixge/pidctrl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stianeikeland/go-rpio/v4"
	"github.com/takama/daemon"
)

// Initialize Prometheus metrics.
var (
	currentDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "depthhold_current_depth_meters",
		Help: "Depth reported by bathyd.",
	})

	targetDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "depthhold_target_depth_meters",
		Help: "Depth setpoint.",
	})

	thrusterPulse = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "depthhold_thruster_pulse_us",
		Help: "Current ESC pulse width.",
	})

	totalUptime = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "depthhold_total_uptime",
			Help: "Total uptime.",
		},
		[]string{"all"},
	)
)

const (
	configLocation = "/etc/bathyx-depthhold.conf"

	// Default depth setpoint, meters.
	defaultDepthTarget = 5.0

	/* BlueRobotics Basic ESC pulse widths, microseconds. 1500 is */
	/* neutral, 1100 full reverse, 1900 full forward. */
	pulseNeutral = 1500
	pulseMin     = 1100
	pulseMax     = 1900

	// 50 Hz servo frame, microseconds.
	escCycleLen = 20000
	escPWMFreq  = 50 * escCycleLen

	// Readings older than this put the thruster in neutral.
	staleAfter = 5 * time.Second

	// how often to update
	updateDelayMS = 500

	// GPIO-1/BCM "18"/Pin 12 on a Rev 2 and 3,4 Raspberry Pi
	defaultPin = 18

	// Where bathyd serves the current dive data.
	defaultDiveURL = "http://localhost/getDive"

	// name of the service
	name        = "depthhold"
	description = "station keeping depth control for the vehicle thruster"

	// Address on which daemon should be listen.
	addr = ":9978"
)

type DepthHold struct {
	DepthTarget  float64
	DepthCurrent float64
	Kp           float64
	Ki           float64
	Kd           float64
	PulseCurrent uint32
	ESCPin       int
	Inverted     bool // flip thrust direction for an inverted motor
	DiveURL      string
}

var myDepthHold DepthHold

var configChan = make(chan bool, 1)
var shutdownChan = make(chan chan bool, 1)

// Keep the control loop from wedging on a dead bathyd.
var diveClient = &http.Client{Timeout: 2 * time.Second}

var stdlog, errlog *log.Logger

func updateStats() {
	updateTicker := time.NewTicker(1 * time.Second)
	for {
		<-updateTicker.C
		totalUptime.With(prometheus.Labels{"all": "all"}).Inc()
		currentDepth.Set(myDepthHold.DepthCurrent)
		targetDepth.Set(myDepthHold.DepthTarget)
		thrusterPulse.Set(float64(myDepthHold.PulseCurrent))
	}
}

// diveReading is the slice of bathyd's /getDive response the controller needs.
type diveReading struct {
	Depth               float64
	LastMeasurementTime time.Time
}

func fetchDepth() (float64, error) {
	resp, err := diveClient.Get(myDepthHold.DiveURL)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	var d diveReading
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return 0, err
	}
	if d.LastMeasurementTime.IsZero() {
		return 0, fmt.Errorf("no measurement yet")
	}
	return d.Depth, nil
}

func depthHold() {
	myDepthHold.PulseCurrent = pulseNeutral
	updateControlDelay := time.NewTicker(updateDelayMS * time.Millisecond)

	// Open Raspberry GPIO pins
	err := rpio.Open()
	if err != nil {
		errlog.Println("Error: ", err)
		os.Exit(1)
	}
	defer rpio.Close()

	// Set PWM Mode
	pin := rpio.Pin(myDepthHold.ESCPin)
	pin.Mode(rpio.Pwm)
	pin.Freq(escPWMFreq)

	setPulse := func(pulse uint32) {
		myDepthHold.PulseCurrent = pulse
		pin.DutyCycle(pulse, escCycleLen)
	}

	// ESCs arm on a second of neutral signal.
	setPulse(pulseNeutral)
	time.Sleep(1 * time.Second)

	// Start Prometheus
	prometheus.MustRegister(currentDepth)
	prometheus.MustRegister(targetDepth)
	prometheus.MustRegister(thrusterPulse)
	prometheus.MustRegister(totalUptime)
	go updateStats()

	// Create a PID controller. Positive output pushes the vehicle deeper.
	pidControl := pidctrl.NewPIDController(myDepthHold.Kp, myDepthHold.Ki, myDepthHold.Kd)
	pidControl.SetOutputLimits(-100, 100)
	pidControl.Set(myDepthHold.DepthTarget)

	lastGoodReading := time.Time{}
	for {
		depth, err := fetchDepth()
		if err == nil {
			myDepthHold.DepthCurrent = depth
			lastGoodReading = time.Now()

			pidValueOut := pidControl.UpdateDuration(depth, updateDelayMS*time.Millisecond)
			if myDepthHold.Inverted {
				pidValueOut = -pidValueOut
			}
			setPulse(uint32(common.LinearScale(pidValueOut, -100, 100, pulseMin, pulseMax)))
			log.Println(myDepthHold.DepthCurrent, " ", myDepthHold.DepthTarget, " ", pidValueOut, " ", myDepthHold.PulseCurrent)
		} else if time.Since(lastGoodReading) > staleAfter {
			// No usable depth - hold the thruster in neutral rather than
			// fly blind.
			setPulse(pulseNeutral)
			log.Println("no depth data:", err)
		}

		select {
		case <-updateControlDelay.C:
		case <-configChan:
			pidControl.Set(myDepthHold.DepthTarget)
			pidControl.SetPID(myDepthHold.Kp, myDepthHold.Ki, myDepthHold.Kd)
		case done := <-shutdownChan:
			// Leave the thruster in neutral, never at the last command.
			setPulse(pulseNeutral)
			done <- true
			return
		}
	}
}

// Service has embedded daemon
type Service struct {
	daemon.Daemon
}

// Manage by daemon commands or run the daemon
func (service *Service) Manage() (string, error) {

	depthTarget := flag.Float64("depth", defaultDepthTarget, "Depth setpoint, meters")
	kp := flag.Float64("kp", 40.0, "PID proportional gain")
	ki := flag.Float64("ki", 2.0, "PID integral gain")
	kd := flag.Float64("kd", 15.0, "PID derivative gain")
	pin := flag.Int("pin", defaultPin, "ESC PWM pin (BCM numbering)")
	flag.Parse()

	usage := "Usage: " + name + " install | remove | start | stop | status"
	// if received any kind of command, do it
	if flag.NArg() > 0 {
		command := os.Args[flag.NFlag()+1]
		switch command {
		case "install":
			return service.Install()
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			return usage, nil
		}
	}

	if !common.IsRunningAsRoot() {
		return "", fmt.Errorf("GPIO access requires root")
	}

	myDepthHold.DepthTarget = *depthTarget
	myDepthHold.Kp = *kp
	myDepthHold.Ki = *ki
	myDepthHold.Kd = *kd
	myDepthHold.ESCPin = *pin
	myDepthHold.DiveURL = defaultDiveURL

	readSettings()

	go depthHold()

	// Set up channel on which to send signal notifications.
	// We must use a buffered channel or risk missing the signal
	// if we're not ready to receive when the signal is sent.
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1)

	http.HandleFunc("/", handleStatusRequest)
	http.Handle("/metrics", promhttp.Handler())
	go http.ListenAndServe(addr, nil)

	// interrupt by system signal
	for {
		killSignal := <-interrupt
		log.Println("Got signal:", killSignal)
		if killSignal == syscall.SIGUSR1 {
			readSettings()
			configChan <- true
			continue
		}
		done := make(chan bool)
		shutdownChan <- done
		<-done
		if killSignal == syscall.SIGINT {
			return "Daemon was interrupted by system signal", nil
		}
		return "Daemon was killed", nil
	}
}

func readSettings() {
	fd, err := os.Open(configLocation)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", configLocation, err.Error())
		return
	}
	defer fd.Close()
	buf := make([]byte, 4096)
	count, err := fd.Read(buf)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", configLocation, err.Error())
		return
	}
	err = json.Unmarshal(buf[0:count], &myDepthHold)
	if err != nil {
		log.Printf("can't read settings %s: %s\n", configLocation, err.Error())
		return
	}
	log.Printf("read in settings.\n")
}

func handleStatusRequest(w http.ResponseWriter, r *http.Request) {
	statusJSON, _ := json.Marshal(&myDepthHold)
	w.Write(statusJSON)
}

func init() {
	stdlog = log.New(os.Stdout, "", 0)
	errlog = log.New(os.Stderr, "", 0)
}

func main() {
	srv, err := daemon.New(name, description, daemon.SystemDaemon)
	if err != nil {
		errlog.Println("Error: ", err)
		os.Exit(1)
	}
	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		errlog.Println(status, "\nError: ", err)
		os.Exit(1)
	}
	fmt.Println(status)
}
