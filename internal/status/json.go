package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Link          string     `json:"link"`
	Session       string     `json:"session"`
	Relay         string     `json:"relay"`
	Address       string     `json:"address,omitempty"`
	Ready         bool       `json:"ready"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"event_counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports the broker session.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	ClientID  string `json:"client_id"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Presses       int `json:"presses"`
	Dropped       int `json:"dropped"`
	QueueDepth    int `json:"queue_depth"`
	Published     int `json:"published"`
	PublishErrors int `json:"publish_errors"`
	Received      int `json:"received"`
	LinkConnects  int `json:"link_connects"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Interface       string `json:"interface"`
	QoS             int    `json:"qos"`
	IdentifierTopic string `json:"identifier_topic"`
	AddressTopic    string `json:"address_topic"`
	PollMs          int64  `json:"poll_ms"`
	DebounceMs      int64  `json:"debounce_ms"`
	BlinkMs         int64  `json:"blink_ms"`
	QueueCapacity   int    `json:"queue_capacity"`
	HTTPAddr        string `json:"http_addr"`
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	inner := StatusInner{
		Link:          orUnknown(snap.Link),
		Session:       orUnknown(snap.Session),
		Relay:         orUnknown(snap.Relay),
		Address:       snap.Address,
		Ready:         snap.SessionUp(),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.SessionUp(),
			Broker:    snap.Config.Broker,
			ClientID:  snap.Config.ClientID,
		},
		Counts: CountsJSON{
			Presses:       snap.Counts.Presses,
			Dropped:       snap.Counts.Dropped,
			QueueDepth:    snap.Counts.QueueDepth,
			Published:     snap.Counts.Published,
			PublishErrors: snap.Counts.PublishErrors,
			Received:      snap.Counts.Received,
			LinkConnects:  snap.Counts.LinkConnects,
		},
		Config: ConfigJSON{
			Interface:       snap.Config.Interface,
			QoS:             snap.Config.QoS,
			IdentifierTopic: snap.Config.IdentifierTopic,
			AddressTopic:    snap.Config.AddressTopic,
			PollMs:          snap.Config.PollMs,
			DebounceMs:      snap.Config.DebounceMs,
			BlinkMs:         snap.Config.BlinkMs,
			QueueCapacity:   snap.Config.QueueCapacity,
			HTTPAddr:        snap.Config.HTTPAddr,
		},
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
