package main

import (
	"fmt"
	"html/template"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/miretskiy/budgetfair/scheduler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var indexTemplate = template.Must(template.New("index").Parse(indexHTML))

// indexHTML is a minimal control page: start/pause/reset buttons and a live
// dump of the scheduler state and per-stream shares over the websocket.
const indexHTML = `<!DOCTYPE html>
<html>
<head><title>budgetfair scheduler</title></head>
<body>
<h1>budgetfair scheduler simulation</h1>
<button onclick="send('start')">Start</button>
<button onclick="send('pause')">Pause</button>
<button onclick="send('reset')">Reset</button>
<pre id="out"></pre>
<script>
var ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = function(ev) {
  document.getElementById("out").textContent = JSON.stringify(JSON.parse(ev.data), null, 2);
};
function send(type) { ws.send(JSON.stringify({type: type})); }
</script>
</body>
</html>
`

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		return true
	},
}

// Client message types
type ClientMessage struct {
	Type   string               `json:"type"`
	Config *scheduler.SimConfig `json:"config,omitempty"`
}

// Server message types
type ServerMessage struct {
	Type    string                 `json:"type"`
	Running *bool                  `json:"running,omitempty"`
	Config  *scheduler.SimConfig   `json:"config,omitempty"`
	Results *scheduler.Results     `json:"results,omitempty"`
	State   map[string]interface{} `json:"state,omitempty"`
}

// simState manages the simulation state and UI pacing
type simState struct {
	harness *scheduler.Harness
	running bool
	paused  bool
	mu      sync.Mutex
	stopCh  chan struct{}
}

func newSimState(config scheduler.SimConfig) (*simState, error) {
	harness, err := scheduler.NewHarness(config)
	if err != nil {
		return nil, err
	}
	return &simState{
		harness: harness,
		stopCh:  make(chan struct{}),
	}, nil
}

// start begins the simulation (sets running flag)
func (s *simState) start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.paused = false
}

// pause pauses the simulation
func (s *simState) pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
}

// reset resets the simulation
func (s *simState) reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	s.paused = false
	return s.harness.Reset()
}

// updateConfig updates the configuration and restarts the run
func (s *simState) updateConfig(config scheduler.SimConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.harness.UpdateConfig(config)
}

// isRunning returns true if simulation is running and not paused
func (s *simState) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running && !s.paused
}

// step advances simulation by delta virtual milliseconds (called by UI ticker)
func (s *simState) step(delta scheduler.Ticks) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running && !s.paused {
		if err := s.harness.Step(delta); err != nil {
			log.Printf("Error stepping simulation: %v", err)
			s.running = false
		}
	}
}

// results returns the accounting so far
func (s *simState) results() *scheduler.Results {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.harness.Snapshot()
}

// state returns the scheduler's live state plus harness-level counters
func (s *simState) state() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.harness.Scheduler().State()
	st["virtualTimeMs"] = int64(s.harness.Now())
	st["pendingArrivals"] = s.harness.PendingArrivals()
	if until, busy := s.harness.DeviceBusyUntil(); busy {
		st["deviceBusyUntilMs"] = int64(until)
	}
	return st
}

// stop signals the UI loop to stop
func (s *simState) stop() {
	close(s.stopCh)
}

// uiUpdateLoop periodically calls Step() and sends updates to the client
// This runs in its own goroutine and controls UI pacing
func uiUpdateLoop(conn *safeConn, state *simState) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-state.stopCh:
			log.Println("UI update loop stopping")
			return

		case <-ticker.C:
			if state.isRunning() {
				// Advance simulation by 1 virtual second
				state.step(1000)

				results := state.results()
				resultsMsg := ServerMessage{
					Type:    "results",
					Results: results,
				}
				if err := conn.WriteJSON(resultsMsg); err != nil {
					log.Printf("Error sending results: %v", err)
					return
				}

				schedState := state.state()
				stateMsg := ServerMessage{
					Type:  "state",
					State: schedState,
				}
				if err := conn.WriteJSON(stateMsg); err != nil {
					log.Printf("Error sending state: %v", err)
					return
				}

				updatePrometheusMetrics(results, schedState)
			}
		}
	}
}

// safeConn wraps a WebSocket connection with a mutex to prevent concurrent writes
type safeConn struct {
	*websocket.Conn
	writeMu sync.Mutex
}

func (sc *safeConn) WriteJSON(v interface{}) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	return sc.Conn.WriteJSON(v)
}

func handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Error upgrading connection: %v", err)
		return
	}
	defer conn.Close()

	// Wrap connection with mutex for safe concurrent writes
	safeConn := &safeConn{Conn: conn}

	log.Println("Client connected")

	config := scheduler.DefaultSimConfig()
	state, err := newSimState(config)
	if err != nil {
		log.Printf("Error creating simulation: %v", err)
		return
	}

	// Send initial status
	running := false
	statusMsg := ServerMessage{
		Type:    "status",
		Running: &running,
		Config:  &config,
	}
	if err := safeConn.WriteJSON(statusMsg); err != nil {
		log.Printf("Error sending status: %v", err)
		return
	}

	// Start UI update loop
	go uiUpdateLoop(safeConn, state)

	// Handle messages from client
	for {
		var msg ClientMessage
		err := conn.ReadJSON(&msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("Error reading message: %v", err)
			}
			break
		}

		log.Printf("Received command: %s", msg.Type)

		switch msg.Type {
		case "start":
			state.start()
			log.Println("Simulation started")
			running := true
			statusMsg := ServerMessage{
				Type:    "status",
				Running: &running,
			}
			safeConn.WriteJSON(statusMsg)

		case "pause":
			state.pause()
			log.Println("Simulation paused")
			running := false
			statusMsg := ServerMessage{
				Type:    "status",
				Running: &running,
			}
			safeConn.WriteJSON(statusMsg)

		case "reset":
			if err := state.reset(); err != nil {
				log.Printf("Error resetting simulation: %v", err)
				break
			}
			log.Println("Simulation reset")
			running := false
			statusMsg := ServerMessage{
				Type:    "status",
				Running: &running,
			}
			safeConn.WriteJSON(statusMsg)

		case "config_update":
			if msg.Config != nil {
				if err := state.updateConfig(*msg.Config); err != nil {
					log.Printf("Error updating config: %v", err)
				} else {
					log.Printf("Config updated")
					running := state.isRunning()
					statusMsg := ServerMessage{
						Type:    "status",
						Running: &running,
						Config:  msg.Config,
					}
					safeConn.WriteJSON(statusMsg)
				}
			}
		}
	}

	// Clean up
	state.stop()
	log.Println("Client disconnected")
}

func serveHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, nil); err != nil {
		log.Printf("Error executing template: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func quitHandler(w http.ResponseWriter, r *http.Request) {
	log.Println("Shutdown requested via /quitquitquit")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "Server shutting down...")

	go func() {
		time.Sleep(100 * time.Millisecond)
		log.Println("Server stopped")
		os.Exit(0)
	}()
}

func main() {
	initPrometheusMetrics()

	http.HandleFunc("/", serveHome)
	http.HandleFunc("/ws", handleWebSocket)
	http.HandleFunc("/quitquitquit", quitHandler)
	http.Handle("/metrics", promhttp.Handler())

	addr := ":8080"
	log.Printf("Server starting on http://localhost%s", addr)
	log.Printf("WebSocket endpoint: ws://localhost%s/ws", addr)
	log.Printf("Prometheus endpoint: http://localhost%s/metrics", addr)
	log.Fatal(http.ListenAndServe(addr, nil))
}
