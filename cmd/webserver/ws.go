package main

import (
	"time"

	"pdfquiz"

	"github.com/gin-gonic/gin"
)

const writeWait = 10 * time.Second

type inboundMessage struct {
	Action string `json:"action"`
	Option *int   `json:"option,omitempty"`
}

type outboundMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type errorPayload struct {
	Kind    pdfquiz.ErrorKind `json:"kind,omitempty"`
	Message string            `json:"message"`
}

// serveWS streams a view after every state change and accepts workflow events.
func (s *Server) serveWS(c *gin.Context) {
	ctrl := controllerFrom(c)

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnw("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	views, cancel := ctrl.Subscribe()
	defer cancel()

	send := make(chan outboundMessage, 16)
	closing := make(chan struct{})
	writerDone := make(chan struct{})
	forwardDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.log.Debugw("ws write failed", "error", err)
				// unblock the read loop
				conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(forwardDone)
		for {
			select {
			case v, ok := <-views:
				if !ok {
					// session evicted
					conn.Close()
					return
				}
				select {
				case send <- outboundMessage{Type: "view", Payload: v}:
				case <-writerDone:
					return
				case <-closing:
					return
				}
			case <-closing:
				return
			}
		}
	}()

	for {
		var in inboundMessage
		if err := conn.ReadJSON(&in); err != nil {
			break
		}
		if err := dispatch(ctrl, in); err != nil {
			msg := outboundMessage{Type: "error", Payload: errorPayload{Kind: pdfquiz.KindOf(err), Message: pdfquiz.Message(err)}}
			select {
			case send <- msg:
			case <-writerDone:
			}
		}
	}

	close(closing)
	<-forwardDone
	close(send)
	<-writerDone
}

func dispatch(ctrl *pdfquiz.Controller, in inboundMessage) error {
	switch in.Action {
	case "select":
		if in.Option == nil {
			return pdfquiz.InvalidInput("please select one of the options")
		}
		return ctrl.SelectOption(*in.Option)
	case "timer":
		if in.Option == nil {
			return pdfquiz.InvalidInput("please enter a valid time between %d and %d minutes", pdfquiz.MinTimeLimit, pdfquiz.MaxTimeLimit)
		}
		return ctrl.ConfirmTimeLimit(*in.Option)
	}
	action, ok := actions[in.Action]
	if !ok {
		return pdfquiz.InvalidInput("unsupported action %q", in.Action)
	}
	return action(ctrl)
}
