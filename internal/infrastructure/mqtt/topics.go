package mqtt

import "strings"

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "tcplink"

// Topics builds the topic names used on the broker.
//
// Layout:
//
//	{prefix}/topics/{topic}       publish commands forwarded from peers
//	{prefix}/events/{client_id}   stream client lifecycle events
//	{prefix}/commands/{client_id}/{verb}  writes requested for a stream client
//	{prefix}/system/status        retained online/offline status
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	p := strings.Trim(t.Prefix, "/")
	if p == "" {
		return DefaultTopicPrefix
	}
	return p
}

// PeerTopic returns the broker topic for a peer-level topic name.
//
// Peer topics are free text; MQTT wildcard and separator characters are
// replaced so one peer topic always maps to one broker topic level.
func (t Topics) PeerTopic(topic string) string {
	return t.prefix() + "/topics/" + sanitizeLevel(topic)
}

// ClientEvents returns the topic carrying events for one stream client.
func (t Topics) ClientEvents(clientID string) string {
	return t.prefix() + "/events/" + sanitizeLevel(clientID)
}

// ClientCommand returns the command topic for one verb of one stream client.
func (t Topics) ClientCommand(clientID, verb string) string {
	return t.prefix() + "/commands/" + sanitizeLevel(clientID) + "/" + sanitizeLevel(verb)
}

// ClientCommands matches every command topic of one stream client.
func (t Topics) ClientCommands(clientID string) string {
	return t.prefix() + "/commands/" + sanitizeLevel(clientID) + "/+"
}

// SystemStatus returns the retained status topic.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// AllPeerTopics matches every forwarded peer topic.
func (t Topics) AllPeerTopics() string {
	return t.prefix() + "/topics/+"
}

// AllEvents matches the events of every stream client.
func (t Topics) AllEvents() string {
	return t.prefix() + "/events/+"
}

var levelReplacer = strings.NewReplacer("/", "_", "+", "_", "#", "_")

// sanitizeLevel makes s safe to use as a single topic level.
func sanitizeLevel(s string) string {
	if s == "" {
		return "_"
	}
	return levelReplacer.Replace(s)
}

// validPublishTopic reports whether topic may be published to.
func validPublishTopic(topic string) bool {
	return topic != "" && !strings.ContainsAny(topic, "+#")
}
