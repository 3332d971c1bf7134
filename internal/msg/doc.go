// Package msg defines the messages exchanged between register nodes, the
// coordinator and the completion monitor. Messages are plain data; every
// message travels inside an Envelope that names its sender and receiver
// explicitly so that quorum counting never depends on connection identity.
package msg
