package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn stages, used as the "stage" label
const (
	StageCapture    = "capture"
	StageTranscribe = "transcribe"
	StageDialogue   = "dialogue"
	StageSynthesize = "synthesize"
	StagePlayback   = "playback"
)

var (
	// Turn metrics
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_turns_total",
		Help: "Total number of turns by outcome",
	}, []string{"outcome"})

	turnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "voice_assistant_turn_duration_seconds",
		Help:    "Duration of a turn from wake word to end of playback",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120},
	})

	orchestratorState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voice_assistant_state",
		Help: "Current orchestrator state (0=listening, 1=capturing, 2=transcribing, 3=dialoguing, 4=synthesizing, 5=playing)",
	})

	// Stage metrics
	stageLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voice_assistant_stage_latency_seconds",
		Help:    "Latency of each turn stage in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"stage"})

	stageRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_stage_requests_total",
		Help: "Total number of stage executions by status",
	}, []string{"stage", "status"})

	// Error metrics
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_errors_total",
		Help: "Total number of errors",
	}, []string{"type", "component"})

	// Wake word metrics
	wakewordTriggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_wakeword_triggers_total",
		Help: "Total number of wake word triggers",
	}, []string{"keyword"})

	// Synthesis metrics
	synthesisChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_tts_chunks_total",
		Help: "Total number of synthesized text chunks by status",
	}, []string{"status"})

	// Tool metrics
	toolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_tool_calls_total",
		Help: "Total number of tool invocations",
	}, []string{"tool", "status"})

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "voice_assistant_circuit_breaker_state",
		Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
	}, []string{"service"})

	circuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_circuit_breaker_failures_total",
		Help: "Total circuit breaker failures",
	}, []string{"service"})

	// Audio metrics
	audioSeconds = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voice_assistant_audio_seconds_total",
		Help: "Total audio seconds processed",
	}, []string{"direction"}) // direction: "in" or "out"
)

// TurnMetrics tracks metrics for a single turn
type TurnMetrics struct {
	turnID     string
	startTime  time.Time
	stageStart map[string]time.Time
	mu         sync.Mutex
}

// NewTurnMetrics creates a new metrics tracker for a turn
func NewTurnMetrics(turnID string) *TurnMetrics {
	return &TurnMetrics{
		turnID:     turnID,
		startTime:  time.Now(),
		stageStart: make(map[string]time.Time),
	}
}

// TurnID returns the turn this tracker belongs to.
func (m *TurnMetrics) TurnID() string {
	return m.turnID
}

// RecordStageStart marks the beginning of a stage
func (m *TurnMetrics) RecordStageStart(stage string) {
	m.mu.Lock()
	m.stageStart[stage] = time.Now()
	m.mu.Unlock()
}

// RecordStageEnd records latency and status of a stage
func (m *TurnMetrics) RecordStageEnd(stage string, success bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if start, ok := m.stageStart[stage]; ok {
		stageLatency.WithLabelValues(stage).Observe(time.Since(start).Seconds())
		delete(m.stageStart, stage)
	}

	status := "success"
	if !success {
		status = "error"
	}
	stageRequests.WithLabelValues(stage, status).Inc()
}

// RecordTurnEnd records the outcome and total duration of the turn
func (m *TurnMetrics) RecordTurnEnd(outcome string) {
	turnsTotal.WithLabelValues(outcome).Inc()
	turnDuration.Observe(time.Since(m.startTime).Seconds())
}

// RecordError records an error
func (m *TurnMetrics) RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordAudioSeconds records audio processed in either direction
func (m *TurnMetrics) RecordAudioSeconds(direction string, seconds float64) {
	audioSeconds.WithLabelValues(direction).Add(seconds)
}

// SetState publishes the orchestrator state
func SetState(state int) {
	orchestratorState.Set(float64(state))
}

// RecordWakewordTrigger counts a wake word trigger
func RecordWakewordTrigger(keyword string) {
	wakewordTriggers.WithLabelValues(keyword).Inc()
}

// RecordSynthesisChunk counts a synthesized chunk by status
func RecordSynthesisChunk(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	synthesisChunks.WithLabelValues(status).Inc()
}

// RecordToolCall counts a tool invocation by status
func RecordToolCall(tool, status string) {
	toolCalls.WithLabelValues(tool, status).Inc()
}

// RecordError records an error outside of a turn
func RecordError(errorType, component string) {
	errorsTotal.WithLabelValues(errorType, component).Inc()
}

// UpdateCircuitBreakerState updates circuit breaker state metric
func UpdateCircuitBreakerState(service string, state int) {
	circuitBreakerState.WithLabelValues(service).Set(float64(state))
}

// IncrementCircuitBreakerFailures increments circuit breaker failure counter
func IncrementCircuitBreakerFailures(service string) {
	circuitBreakerFailures.WithLabelValues(service).Inc()
}
