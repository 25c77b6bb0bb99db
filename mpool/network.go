package mpool

import "errors"

var errSendOnClosedChannel = errors.New("mpool: network receiver is gone")

// PubsubMsgTopicPrefix is prefixed to the genesis network name to form the
// gossip topic pending messages are published on.
const PubsubMsgTopicPrefix = "/fil/msgs"

// Topic is a gossip topic name.
type Topic string

// PubsubMessage is a message ready to publish on the gossip network.
type PubsubMessage struct {
	Topic   Topic
	Message []byte
}

// NetworkMessage is the union of outbound messages the pool can hand to its
// network sender. Only PubsubMessage is produced by this package; the type
// exists so the sender channel's type can grow other variants without the
// pool needing to change.
type NetworkMessage struct {
	Pubsub *PubsubMessage
}

// NetworkSender is satisfied by whatever transport carries the pool's
// outbound gossip; this package treats it as an opaque typed channel
// rather than depending on libp2p directly.
type NetworkSender interface {
	Send(NetworkMessage) error
}

// ChanNetworkSender adapts a buffered channel to NetworkSender. Send
// returns an error if the channel's receiver has gone away (the channel is
// closed) rather than blocking forever.
type ChanNetworkSender chan NetworkMessage

func (c ChanNetworkSender) Send(m NetworkMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errSendOnClosedChannel
		}
	}()
	c <- m
	return nil
}
