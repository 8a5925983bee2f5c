// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"

	"eqplayer/internal/log"
)

// LoggingTransport implements the Transport interface by logging data at
// debug level. It is the fallback when no network transport is enabled.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	log.Debug("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the received data. Encoding is skipped unless debug output is on.
func (lt *LoggingTransport) Send(data any) error {
	if !log.Enabled(log.LevelDebug) {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Debugf("LOG_TRANSPORT: Received (%T): %+v (JSON marshal error: %v)", data, data, err)
		return nil
	}
	log.Debugf("LOG_TRANSPORT: Received (%T): %s", data, jsonData)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	log.Debug("LOG_TRANSPORT: Close called.")
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
