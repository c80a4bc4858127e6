package protocol

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTraceID returns an id of the form trace_<UTC yyyymmddHHMMSS>_<10 hex>.
func NewTraceID() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "trace_" + time.Now().UTC().Format("20060102150405") + "_" + hex[:10]
}
