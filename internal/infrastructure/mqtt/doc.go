// Package mqtt connects tcplink to an MQTT broker.
//
// The broker is an optional side channel:
//   - publish commands received by the peer server are forwarded to
//     {prefix}/topics/{topic} (PeerForwarder)
//   - stream client events are mirrored to {prefix}/events/{client_id}
//     (EventPublisher)
//   - messages on {prefix}/commands/{client_id}/{send|subscribe|publish}
//     become writes on the stream client (CommandIntake)
//   - a retained status on {prefix}/system/status reports online, graceful
//     shutdown, or (through the Last Will) an unexpected disconnect
//
// The Client wraps paho.mqtt.golang, validates topics, QoS and payload size,
// and restores subscriptions when paho reconnects.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	fwd := mqtt.NewPeerForwarder(client, client.Topics(), byte(cfg.MQTT.QoS))
//	srv := peer.NewServer(peerCfg, store, fwd)
package mqtt
