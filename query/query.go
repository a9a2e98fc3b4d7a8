package query

import (
	"net/http"

	"github.com/Sarthakshelke9895/Cloud/blobs"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("logger", "query")

var wsupgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSSHandler serves a websocket feed of blob events from stream
func WSSHandler(stream *blobs.EventStream, w http.ResponseWriter, r *http.Request) {
	conn, err := wsupgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("Failed to set websocket upgrade: %+v", err)
		return
	}

	wsWorker := newWorker(conn, stream)
	log.Debugf("Subscribing %v to stream", conn.RemoteAddr())
	wsWorker.Run()
}
