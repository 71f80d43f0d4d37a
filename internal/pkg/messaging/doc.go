// Package messaging publishes and consumes broker messages behind one small
// interface, so the delivery worker does not care whether events travel over
// NATS, NSQ, Kafka, Google Pub/Sub or the in-process memory broker.
//
// Every driver turns received messages into the same delivery type and runs
// handlers through one dispatcher, which recovers panics and, with
// WithAutoAck, acks on success and nacks on error.
package messaging
