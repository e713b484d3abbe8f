package realtime

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Frame commands.
const (
	CommandConnect     = "CONNECT"
	CommandConnected   = "CONNECTED"
	CommandSubscribe   = "SUBSCRIBE"
	CommandUnsubscribe = "UNSUBSCRIBE"
	CommandDisconnect  = "DISCONNECT"
	CommandMessage     = "MESSAGE"
	CommandError       = "ERROR"
)

// TopicPrefix is the prefix of every subscribable destination.
const TopicPrefix = "/topic/"

const companyTopicPrefix = TopicPrefix + "company/"

// Frame is one JSON message on the socket.
type Frame struct {
	Command     string            `json:"command"`
	Destination string            `json:"destination,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Body        json.RawMessage   `json:"body,omitempty"`
}

func errorFrame(msg string) Frame {
	return Frame{Command: CommandError, Headers: map[string]string{"message": msg}}
}

// header returns the value of a frame header, matching the name
// case-insensitively.
func (f Frame) header(name string) string {
	if v, ok := f.Headers[name]; ok {
		return v
	}
	for k, v := range f.Headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

// CompanyOf returns the company a destination belongs to. Destinations
// outside /topic/company/{id} report false.
func CompanyOf(destination string) (int64, bool) {
	rest, ok := strings.CutPrefix(destination, companyTopicPrefix)
	if !ok {
		return 0, false
	}
	idPart, _, _ := strings.Cut(rest, "/")
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// ValidDestination reports whether destination may be subscribed or
// published to at all.
func ValidDestination(destination string) bool {
	if !strings.HasPrefix(destination, TopicPrefix) || len(destination) == len(TopicPrefix) {
		return false
	}
	if strings.Contains(destination, "//") || strings.Contains(destination, "..") {
		return false
	}
	if strings.HasPrefix(destination, companyTopicPrefix) {
		_, ok := CompanyOf(destination)
		return ok
	}
	return true
}
