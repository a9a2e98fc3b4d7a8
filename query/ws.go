package query

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Sarthakshelke9895/Cloud/blobs"
	"github.com/Sarthakshelke9895/Cloud/model"
	"github.com/gorilla/websocket"
)

const (
	// AllBlobs subscribes to events of every blob
	AllBlobs = "*"

	msgTypeSubscribed   = "subscribed"
	msgTypeUnsubscribed = "unsubscribed"

	outboxSize   = 64
	writeTimeout = 10 * time.Second
)

type subscribeBlob struct {
	BlobID string `json:"blob_id"`
}

type unSubscribeBlob struct {
	BlobID string `json:"blob_id"`
}

func subscriptionKey(blobID string) (string, error) {
	if blobID == AllBlobs {
		return AllBlobs, nil
	}
	return model.ParseBlobID(blobID)
}

func (sb *subscribeBlob) Action(l *wsWorker) error {
	key, err := subscriptionKey(sb.BlobID)
	if err != nil {
		return err
	}
	if _, ok := l.subscriptions[key]; ok {
		// already subscribed nop
		return nil
	}

	log.WithField("conn", l.conn.LocalAddr().String()).WithField("blob_id", key).Info("Subscribed to blob events")
	l.subscriptions[key] = l.stream.Subscribe(func(evt *blobs.BlobEvent) {
		if key == AllBlobs || evt.BlobID == key {
			l.SendBlobMessage(evt, key)
		}
	})
	l.sendControl(msgTypeSubscribed, key)
	return nil
}

func (sb *unSubscribeBlob) Action(l *wsWorker) error {
	key, err := subscriptionKey(sb.BlobID)
	if err != nil {
		return err
	}
	if sub, ok := l.subscriptions[key]; ok {
		delete(l.subscriptions, key)
		l.stream.Unsubscribe(sub)
	}
	l.sendControl(msgTypeUnsubscribed, key)
	return nil
}

type jsonCommand struct {
	Command string `json:"command"`
}

var cmds = map[string](func() wsCommandHandler){
	"subscribe":   func() wsCommandHandler { return &subscribeBlob{} },
	"unsubscribe": func() wsCommandHandler { return &unSubscribeBlob{} },
}

func extractCommand(data []byte) (wsCommandHandler, error) {
	cmd := jsonCommand{}
	err := json.Unmarshal(data, &cmd)
	if err != nil {
		return nil, err
	}
	if cmdFactory, ok := cmds[cmd.Command]; ok {
		cmdObj := cmdFactory()
		err = json.Unmarshal(data, cmdObj)
		if err != nil {
			return nil, err
		}
		return cmdObj, nil
	}
	return nil, fmt.Errorf("unsupported command type %s", cmd.Command)
}

type wsCommandHandler interface {
	Action(listener *wsWorker) error
}

// wsWorker owns one websocket connection. Commands are handled on the read
// loop, events are queued by stream subscribers and written by a single writer.
type wsWorker struct {
	conn          *websocket.Conn
	stream        *blobs.EventStream
	subscriptions map[string]*blobs.Subscription
	outbox        chan []byte
	done          chan struct{}
}

type rawEventMsg struct {
	Type string          `json:"type"`
	Sub  string          `json:"sub"`
	Data json.RawMessage `json:"data,omitempty"`
}

type deletedBlob struct {
	ID string `json:"id"`
}

// SendBlobMessage queues an event for the client, dropping it if the client is not keeping up
func (l *wsWorker) SendBlobMessage(event *blobs.BlobEvent, subscriptionID string) {
	var body interface{} = &deletedBlob{ID: event.BlobID}
	if event.Blob != nil {
		body = event.Blob
	}
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		log.Warnf("Failed to convert to JSON: %s", err)
		return
	}
	l.enqueue(&rawEventMsg{Type: string(event.Type), Sub: subscriptionID, Data: bodyJSON})
}

func (l *wsWorker) sendControl(msgType string, subscriptionID string) {
	l.enqueue(&rawEventMsg{Type: msgType, Sub: subscriptionID})
}

func (l *wsWorker) enqueue(msg *rawEventMsg) {
	msgJSON, err := json.Marshal(msg)
	if err != nil {
		log.Warnf("Failed to convert to JSON: %s", err)
		return
	}
	select {
	case l.outbox <- msgJSON:
	case <-l.done:
	default:
		log.WithField("conn", l.conn.RemoteAddr().String()).WithField("type", msg.Type).Warn("Dropping event for slow websocket client")
	}
}

func (l *wsWorker) writeLoop() {
	for {
		select {
		case <-l.done:
			return
		case msg := <-l.outbox:
			l.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := l.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.WithError(err).Debug("Failed to write to websocket")
				l.conn.Close()
				return
			}
		}
	}
}

// Run handles commands until the client goes away
func (l *wsWorker) Run() {
	defer l.conn.Close()
	defer l.Close()

	go l.writeLoop()

	// main cmd loop
	for {
		msgType, msg, err := l.conn.ReadMessage()
		if err != nil || msgType == websocket.CloseMessage {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		cmd, err := extractCommand(msg)
		if err != nil {
			log.WithError(err).Errorf("Invalid command")
			break
		}
		if err = cmd.Action(l); err != nil {
			log.WithError(err).Errorf("Command Failed")
			break
		}
	}
}

// Close drops every subscription and stops the writer
func (l *wsWorker) Close() {
	for id, s := range l.subscriptions {
		log.Debugf("Unsubscribing %v from stream %s", l.conn.RemoteAddr(), id)
		l.stream.Unsubscribe(s)
	}
	l.subscriptions = make(map[string]*blobs.Subscription)
	close(l.done)
}

func newWorker(conn *websocket.Conn, stream *blobs.EventStream) *wsWorker {
	return &wsWorker{conn: conn,
		stream:        stream,
		subscriptions: make(map[string]*blobs.Subscription),
		outbox:        make(chan []byte, outboxSize),
		done:          make(chan struct{}),
	}
}
