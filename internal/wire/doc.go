// Package wire implements the textual subscribe/publish convention that
// tcplink peers exchange over a raw TCP byte stream.
//
// # Message Forms
//
// The client sends two forms, delimited by '#':
//
//	subscribe#<topic>
//	publish#<topic>#<message>
//
// The legacy server form is also understood when parsing:
//
//	-sub|<topic>
//	-pub|<topic>|<message>
//
// Neither form escapes its delimiter. A topic containing '#' is ambiguous;
// Parse takes the first delimiter as the topic boundary and leaves the rest
// of the text in the message.
//
// # Framing
//
// A TCP stream has no message boundaries. With FramingNone (the default,
// compatible with existing peers) every send is written as-is and a reader
// cannot recover individual messages from a merged or split read. With
// FramingLine every send is terminated by '\n' and LineSplitter recovers
// complete messages from arbitrary read chunks.
package wire
