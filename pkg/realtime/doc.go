// Package realtime is the websocket side-channel through which screens and
// dashboards receive commands.
//
// A client connects to /ws/connect and must send a CONNECT frame carrying
// a bearer token before anything else. It may then SUBSCRIBE to topic
// destinations. Destinations under /topic/company/{id}/ are visible only
// to callers whose tenant scope allows that company. The Registry tracks
// which sessions listen on which destination; /ws/status reports it.
package realtime
