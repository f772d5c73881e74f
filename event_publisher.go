package main

import (
	"context"

	"github.com/pebbe/zmq4"
)

// eventPublisher republishes hub events on a ZeroMQ PUB socket as
// two-frame messages: [kind, json].
type eventPublisher struct {
	addr string
	hub  *EventHub
}

func newEventPublisher(addr string, hub *EventHub) *eventPublisher {
	return &eventPublisher{addr: addr, hub: hub}
}

func encodePublishedEvent(ev Event) (string, []byte, error) {
	payload, err := fastJSONMarshal(ev.published())
	if err != nil {
		return "", nil, err
	}
	return ev.Kind.String(), payload, nil
}

func (p *eventPublisher) Run(ctx context.Context) error {
	sock, err := zmq4.NewSocket(zmq4.PUB)
	if err != nil {
		return err
	}
	defer sock.Close()
	_ = sock.SetLinger(0)
	_ = sock.SetSndhwm(1000)
	if err := sock.Bind(p.addr); err != nil {
		return err
	}
	logger.Info("publishing events", "addr", p.addr)

	ch := p.hub.Subscribe(256)
	defer p.hub.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			topic, payload, err := encodePublishedEvent(ev)
			if err != nil {
				logger.Warn("event encode failed", "kind", ev.Kind.String(), "error", err)
				continue
			}
			if _, err := sock.SendMessageDontwait(topic, payload); err != nil && debugLogging {
				logger.Debug("event publish dropped", "kind", topic, "error", err)
			}
		}
	}
}
