package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/exp/slices"
	"golang.org/x/net/websocket"
)

// Initialize Prometheus metrics.
var (
	currentDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bathyx_depth_meters",
		Help: "Current depth below surface.",
	})

	currentPressure = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bathyx_pressure_bar",
		Help: "Current pressure at the transducer.",
	})

	currentWaterTemp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bathyx_water_temp_celsius",
		Help: "Current water temperature at the transducer.",
	})

	currentCPUTemp = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "bathyx_cpu_temp_celsius",
		Help: "Current CPU temp.",
	})

	measurementsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bathyx_measurements_total",
		Help: "Total completed measurement cycles.",
	})

	measurementErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bathyx_measurement_errors_total",
		Help: "Total failed measurement cycles.",
	})

	measurementTimeouts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bathyx_measurement_timeouts_total",
		Help: "Measurement cycles that timed out waiting on the sensor.",
	})
)

func updateStats() {
	updateTicker := time.NewTicker(1 * time.Second)
	for {
		<-updateTicker.C
		diveMutex.Lock()
		currentDepth.Set(myDive.Depth)
		currentPressure.Set(myDive.Pressure)
		currentWaterTemp.Set(myDive.Temperature)
		diveMutex.Unlock()
		currentCPUTemp.Set(float64(globalStatus.CPUTemp))
	}
}

type SettingMessage struct {
	Setting string `json:"setting"`
	Value   bool   `json:"state"`
}

// Settings the web client may flip over the control socket.
var boolSettings = []string{"Keller_Enabled", "NMEA_Enabled", "MQTT_Enabled", "DiveLog", "DEBUG"}

type InfoMessage struct {
	*status
	*settings
}

func statusSender(conn *websocket.Conn) {
	timer := time.NewTicker(1 * time.Second)
	for {
		<-timer.C

		update, _ := json.Marshal(InfoMessage{status: &globalStatus, settings: &globalSettings})
		_, err := conn.Write(update)

		if err != nil {
			break
		}
	}
}

func handleManagementConnection(conn *websocket.Conn) {
	go statusSender(conn)

	for {
		var msg SettingMessage
		err := websocket.JSON.Receive(conn, &msg)
		if err == io.EOF {
			break
		} else if err != nil {
			log.Printf("handleManagementConnection: %s\n", err.Error())
		} else {
			if !slices.Contains(boolSettings, msg.Setting) {
				log.Printf("handleManagementConnection: unknown setting %s\n", msg.Setting)
				continue
			}
			switch msg.Setting {
			case "Keller_Enabled":
				globalSettings.Keller_Enabled = msg.Value
			case "NMEA_Enabled":
				globalSettings.NMEA_Enabled = msg.Value
			case "MQTT_Enabled":
				globalSettings.MQTT_Enabled = msg.Value
			case "DiveLog":
				globalSettings.DiveLog = msg.Value
			case "DEBUG":
				globalSettings.DEBUG = msg.Value
			}

			saveSettings()
		}
	}
}

// Streams every completed measurement to the client as a JSON object.
func handleMeasurementConnection(conn *websocket.Conn) {
	measurementUpdate.AddSocket(conn)

	// Hold the connection open until the client goes away.
	buf := make([]byte, 64)
	for {
		if _, err := conn.Read(buf); err != nil {
			break
		}
	}
}

// AJAX call - /getDive. Responds with the current dive data (depth/pressure/temperature/ascent rate).
func handleDiveRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	diveMutex.Lock()
	diveJSON, _ := json.Marshal(&myDive)
	diveMutex.Unlock()
	fmt.Fprintf(w, "%s\n", diveJSON)
}

// AJAX call - /getStatus. Responds with the daemon status.
func handleStatusRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	statusJSON, _ := json.Marshal(&globalStatus)
	fmt.Fprintf(w, "%s\n", statusJSON)
}

// AJAX call - /getSettings. Responds with all bathyx.conf data.
func handleSettingsGetRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	settingsJSON, _ := json.Marshal(&globalSettings)
	fmt.Fprintf(w, "%s\n", settingsJSON)
}

// AJAX call - /resetLog. Truncates the debug log in place.
func handleResetLogRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	clearDebugLogFile()
	globalStatus.Logfile_Size = logFileSize()
	handleStatusRequest(w, r)
}

// AJAX call - /setSettings. Receives via POST command, any/all bathyx.conf data.
func handleSettingsSetRequest(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if r.Method != http.MethodPost {
		http.Error(w, "bad method", http.StatusMethodNotAllowed)
		return
	}
	newSettings := globalSettings
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&newSettings); err != nil {
		log.Printf("handleSettingsSetRequest: %s\n", err.Error())
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	globalSettings = newSettings
	saveSettings()
	settingsJSON, _ := json.Marshal(&globalSettings)
	fmt.Fprintf(w, "%s\n", settingsJSON)
}

func managementInterface() {
	prometheus.MustRegister(currentDepth)
	prometheus.MustRegister(currentPressure)
	prometheus.MustRegister(currentWaterTemp)
	prometheus.MustRegister(currentCPUTemp)
	prometheus.MustRegister(measurementsTotal)
	prometheus.MustRegister(measurementErrors)
	prometheus.MustRegister(measurementTimeouts)
	go updateStats()

	http.Handle("/", http.FileServer(http.Dir("/var/www")))
	http.Handle("/logs/", http.StripPrefix("/logs/", http.FileServer(http.Dir(logDirf))))
	http.Handle("/metrics", promhttp.Handler())
	http.HandleFunc("/control",
		func(w http.ResponseWriter, req *http.Request) {
			s := websocket.Server{
				Handler: websocket.Handler(handleManagementConnection)}
			s.ServeHTTP(w, req)
		})
	http.HandleFunc("/measurements",
		func(w http.ResponseWriter, req *http.Request) {
			s := websocket.Server{
				Handler: websocket.Handler(handleMeasurementConnection)}
			s.ServeHTTP(w, req)
		})

	http.HandleFunc("/getDive", handleDiveRequest)
	http.HandleFunc("/getStatus", handleStatusRequest)
	http.HandleFunc("/getSettings", handleSettingsGetRequest)
	http.HandleFunc("/setSettings", handleSettingsSetRequest)
	http.HandleFunc("/resetLog", handleResetLogRequest)

	err := http.ListenAndServe(managementAddr, nil)

	if err != nil {
		log.Printf("managementInterface ListenAndServe: %s\n", err.Error())
	}
}
